package imagebuild

import (
	"fmt"
	"math"
	"strings"
)

const (
	// SectorSize is the logical sector size used for partition geometry.
	SectorSize = 512

	// MiB is one mebibyte in bytes.
	MiB = 1024 * 1024

	// MinFilesystemBytes is the smallest partition the FAT32 formatter
	// will accept.
	MinFilesystemBytes = 8 * MiB

	// DefaultSizeBytes is the default image size (64 MiB).
	DefaultSizeBytes = 64 * MiB

	// DefaultPartitionStart is the default partition offset (1 MiB),
	// aligned for block-device tooling.
	DefaultPartitionStart = 1 * MiB

	// DefaultVolumeLabel is stamped onto the FAT32 volume.
	DefaultVolumeLabel = "BOOT"
)

// Spec describes one disk image build: where the image lives, its
// geometry, and which artifacts must end up inside it. The filesystem
// type is fixed to FAT32 and the single partition is always flagged
// bootable.
type Spec struct {
	// TargetPath is the backing file for the image. Any existing file
	// at this path is overwritten.
	TargetPath string

	// SizeBytes is the total image size. Must be a whole-MiB multiple.
	SizeBytes int64

	// PartitionStart is the byte offset of partition 1. Must be a
	// whole-MiB multiple greater than zero.
	PartitionStart int64

	// VolumeLabel is the FAT32 volume label.
	VolumeLabel string

	// Manifest lists the artifacts that must exist in the source tree
	// before staging and in the image afterwards.
	Manifest Manifest
}

// DefaultSpec returns a Spec for the given target path with default
// geometry and the default boot artifact manifest.
func DefaultSpec(targetPath string) Spec {
	return Spec{
		TargetPath:     targetPath,
		SizeBytes:      DefaultSizeBytes,
		PartitionStart: DefaultPartitionStart,
		VolumeLabel:    DefaultVolumeLabel,
		Manifest:       DefaultManifest(),
	}
}

// Validate checks the spec's geometry invariants before any file is
// touched.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.TargetPath) == "" {
		return fmt.Errorf("target path is empty")
	}
	if s.SizeBytes <= 0 || s.SizeBytes%MiB != 0 {
		return fmt.Errorf("image size %d is not a positive whole-MiB multiple", s.SizeBytes)
	}
	if s.PartitionStart <= 0 || s.PartitionStart%MiB != 0 {
		return fmt.Errorf("partition offset %d is not a positive whole-MiB multiple", s.PartitionStart)
	}
	// MBR entries address sectors with 32 bits.
	if s.SizeBytes/SectorSize > math.MaxUint32 {
		return fmt.Errorf("%w: image size %d exceeds the MBR-addressable maximum of %d sectors",
			ErrPartition, s.SizeBytes, uint32(math.MaxUint32))
	}
	if s.SizeBytes < s.PartitionStart+MinFilesystemBytes {
		return fmt.Errorf("%w: image size %d leaves no room for a %d byte filesystem after a %d byte offset",
			ErrPartition, s.SizeBytes, MinFilesystemBytes, s.PartitionStart)
	}
	return nil
}
