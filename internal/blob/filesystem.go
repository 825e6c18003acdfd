package blob

import (
	"smartloan/internal/infra/blob/fs"
)

// DefaultFilesystemRoot is the archive directory used when none is configured.
const DefaultFilesystemRoot = fs.DefaultRoot

// NewFilesystem constructs a filesystem-backed blob.Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
