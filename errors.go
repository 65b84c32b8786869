// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunked

import "errors"

// Errors.
var (
	// ErrClosed is raised on operations against a closed Container.
	ErrClosed = errors.New("container is closed")

	// ErrReadOnly is raised on mutating operations against a Container
	// opened with Open.
	ErrReadOnly = errors.New("container is read-only")

	// ErrShrinkExtent is raised when SetExtent is asked to make the
	// logical extent smaller.
	ErrShrinkExtent = errors.New("extent can only grow")

	// ErrUnalignedOffset is raised when a chunk offset is not a multiple
	// of the chunk size.
	ErrUnalignedOffset = errors.New("chunk offset is not chunk-aligned")

	// ErrBeyondExtent is raised when a chunk lies outside the current
	// logical extent; the extent must be grown before the chunk is written.
	ErrBeyondExtent = errors.New("chunk is beyond the current extent")

	// ErrChunkTooLarge is raised when a chunk payload exceeds the chunk
	// byte capacity.
	ErrChunkTooLarge = errors.New("chunk payload exceeds chunk capacity")

	// ErrCorrupt is raised when the file header or a chunk record fails
	// validation.
	ErrCorrupt = errors.New("container file is corrupt")
)
