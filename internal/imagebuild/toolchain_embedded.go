package imagebuild

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
)

// EmbeddedToolchain formats and writes the image entirely in-process
// with go-diskfs. It needs no privileges and no host tools, so it also
// backs the test suite. There is no host-level device slot to leak:
// the bind is an exclusive open of the backing file.
type EmbeddedToolchain struct{}

// NewEmbeddedToolchain returns the pure-Go toolchain.
func NewEmbeddedToolchain() *EmbeddedToolchain {
	return &EmbeddedToolchain{}
}

// Bind opens the image read-write-exclusive. The open handle is the
// ownership token.
func (t *EmbeddedToolchain) Bind(ctx context.Context, imagePath string) (BlockDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}
	d, err := diskfs.Open(imagePath, diskfs.WithOpenMode(diskfs.ReadWriteExclusive))
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrBind, imagePath, err)
	}
	return &embeddedDevice{disk: d}, nil
}

type embeddedDevice struct {
	disk     *disk.Disk
	fs       filesystem.FileSystem
	detached bool
}

func (d *embeddedDevice) Format(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	fs, err := d.disk.CreateFilesystem(disk.FilesystemSpec{
		Partition:   1,
		FSType:      filesystem.TypeFat32,
		VolumeLabel: label,
	})
	if err != nil {
		return fmt.Errorf("%w: creating FAT32 on partition 1: %v", ErrFormat, err)
	}
	d.fs = fs
	return nil
}

// Mount returns a volume over the in-process filesystem. The mount
// directory is accepted for lifecycle symmetry with the host toolchain
// but nothing is written into it.
func (d *embeddedDevice) Mount(ctx context.Context, dir string) (Volume, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMount, err)
	}
	fs := d.fs
	if fs == nil {
		var err error
		fs, err = d.disk.GetFilesystem(1)
		if err != nil {
			return nil, fmt.Errorf("%w: reading filesystem on partition 1: %v", ErrMount, err)
		}
		d.fs = fs
	}
	return &embeddedVolume{fs: fs}, nil
}

func (d *embeddedDevice) Detach() error {
	if d.detached {
		return fmt.Errorf("%w: device already detached", ErrResourceLeak)
	}
	d.detached = true
	err := d.disk.Close()
	d.disk = nil
	d.fs = nil
	if err != nil {
		return fmt.Errorf("%w: closing backing file: %v", ErrResourceLeak, err)
	}
	return nil
}

type embeddedVolume struct {
	fs       filesystem.FileSystem
	released bool
}

// normalizePath roots and cleans a staged path.
func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// splitPath breaks a path into its components.
func splitPath(p string) []string {
	var parts []string
	for {
		dir, file := path.Split(p)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		if dir == "" || dir == "/" {
			break
		}
		p = path.Clean(dir)
	}
	return parts
}

func (v *embeddedVolume) Mkdir(relPath string) error {
	if v.fs == nil {
		return fmt.Errorf("%w: volume released", ErrMount)
	}
	parts := splitPath(normalizePath(relPath))
	currentPath := "/"
	for _, part := range parts {
		currentPath = path.Join(currentPath, part)
		// Mkdir on an existing directory is fine.
		if err := v.fs.Mkdir(currentPath); err != nil && !os.IsExist(err) {
			if isOutOfSpace(err) {
				return fmt.Errorf("%w: creating directory %s", ErrDiskFull, currentPath)
			}
			return fmt.Errorf("creating directory %s: %w", currentPath, err)
		}
	}
	return nil
}

func (v *embeddedVolume) WriteFile(relPath string, r io.Reader, size int64) error {
	if v.fs == nil {
		return fmt.Errorf("%w: volume released", ErrMount)
	}
	p := normalizePath(relPath)
	if dir := path.Dir(p); dir != "/" && dir != "." {
		if err := v.Mkdir(dir); err != nil {
			return err
		}
	}

	file, err := v.fs.OpenFile(p, os.O_CREATE|os.O_RDWR|os.O_TRUNC)
	if err != nil {
		if isOutOfSpace(err) {
			return fmt.Errorf("%w: creating %s", ErrDiskFull, p)
		}
		return fmt.Errorf("creating %s: %w", p, err)
	}
	defer file.Close()

	if _, err := io.CopyN(file, r, size); err != nil && err != io.EOF {
		if isOutOfSpace(err) {
			return fmt.Errorf("%w: writing %s", ErrDiskFull, p)
		}
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}

// Exists scans the parent directory for the entry. FAT32 name matching
// is case-insensitive.
func (v *embeddedVolume) Exists(relPath string) (bool, error) {
	if v.fs == nil {
		return false, fmt.Errorf("%w: volume released", ErrMount)
	}
	p := normalizePath(relPath)
	if p == "/" {
		return true, nil
	}
	entries, err := v.fs.ReadDir(path.Dir(p))
	if err != nil {
		// A missing parent means the entry is absent; anything else is
		// a real read failure and must not masquerade as one.
		if os.IsNotExist(err) || strings.Contains(err.Error(), "does not exist") {
			return false, nil
		}
		return false, fmt.Errorf("reading directory %s: %w", path.Dir(p), err)
	}
	base := path.Base(p)
	for _, entry := range entries {
		if strings.EqualFold(entry.Name(), base) {
			return true, nil
		}
	}
	return false, nil
}

func (v *embeddedVolume) Unmount() error {
	if v.released {
		return fmt.Errorf("%w: volume already unmounted", ErrResourceLeak)
	}
	v.released = true
	v.fs = nil
	return nil
}
