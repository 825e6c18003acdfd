package blob

import (
	"context"
	"fmt"
)

// Options selects and configures a blob driver. The zero value opens a
// filesystem store at DefaultFilesystemRoot.
type Options struct {
	Driver Driver   `yaml:"driver" validate:"omitempty,oneof=fs s3 memory"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// Open constructs the Store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(opts.FSRoot)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", opts.Driver)
	}
}
