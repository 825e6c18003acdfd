package memory

import "errors"

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("memory session store closed")
