package imagebuild

import (
	"fmt"
	"os"
	"path/filepath"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
)

// Allocate creates a zero-filled backing file of exactly sizeBytes at
// path, destroying any file already there. The parent directory must
// exist and carry enough free space. The returned disk stays open for
// the partitioning stage.
func Allocate(path string, sizeBytes int64) (*disk.Disk, error) {
	parent := filepath.Dir(path)
	info, err := os.Stat(parent)
	if err != nil {
		return nil, fmt.Errorf("%w: parent directory %s: %v", ErrAllocation, parent, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrAllocation, parent)
	}

	if avail, known := freeSpace(parent); known && avail < uint64(sizeBytes) {
		return nil, fmt.Errorf("%w: %s has %d bytes free, need %d", ErrAllocation, parent, avail, sizeBytes)
	}

	// A fresh image must not inherit stale bytes from a previous run.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: removing stale image %s: %v", ErrAllocation, path, err)
	}

	d, err := diskfs.Create(path, sizeBytes, diskfs.SectorSizeDefault)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrAllocation, path, err)
	}
	return d, nil
}
