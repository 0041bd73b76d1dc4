package imagebuild

import (
	"context"
	"fmt"
	"io"
)

// Toolchain binds an image file to an addressable block device so the
// partition can be formatted and mounted. Different implementations use
// different mechanisms (loop devices and host tools, or pure-Go
// filesystem code); the build state machine and its cleanup guarantees
// are the same either way.
type Toolchain interface {
	// Bind attaches the backing file and returns the device handle.
	// Exactly one handle may exist per image path at a time, and the
	// caller must Detach it exactly once.
	Bind(ctx context.Context, imagePath string) (BlockDevice, error)
}

// BlockDevice is the ownership token for a bound backing file. It
// exposes partition 1 for formatting and mounting.
type BlockDevice interface {
	// Format writes a FAT32 filesystem onto partition 1.
	Format(ctx context.Context, label string) error

	// Mount attaches partition 1's filesystem at dir and returns the
	// volume handle for staged writes. The caller must Unmount before
	// removing dir.
	Mount(ctx context.Context, dir string) (Volume, error)

	// Detach releases the device binding. Must be called on every exit
	// path; calling it twice is an error.
	Detach() error
}

// Volume is a mounted (or directly addressable) filesystem that staged
// content is written into. Paths are relative to the filesystem root.
type Volume interface {
	// Mkdir creates a directory, including missing parents.
	Mkdir(relPath string) error

	// WriteFile creates or truncates a file and fills it from r.
	WriteFile(relPath string, r io.Reader, size int64) error

	// Exists reports whether a file or directory is present.
	Exists(relPath string) (bool, error)

	// Unmount releases the volume. Must run before the mount directory
	// is removed.
	Unmount() error
}

// NewToolchain returns the toolchain named by kind: "host" for the
// losetup/mkfs/mount tools, "embedded" for the pure-Go implementation,
// or "" for the platform default (host on Linux, embedded elsewhere).
func NewToolchain(kind string) (Toolchain, error) {
	switch kind {
	case "":
		return newPlatformToolchain(), nil
	case "host":
		return NewHostToolchain(), nil
	case "embedded":
		return NewEmbeddedToolchain(), nil
	}
	return nil, fmt.Errorf("unknown toolchain %q (want \"host\" or \"embedded\")", kind)
}
