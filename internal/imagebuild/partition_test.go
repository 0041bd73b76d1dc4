package imagebuild

import (
	"errors"
	"path/filepath"
	"testing"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/mbr"
)

// TestWritePartitionTable tests that the MBR encodes exactly one
// bootable FAT32 partition with the configured geometry
func TestWritePartitionTable(t *testing.T) {
	tempDir := t.TempDir()
	imgPath := filepath.Join(tempDir, "test.img")

	spec := DefaultSpec(imgPath)
	spec.SizeBytes = 32 * MiB

	d, err := Allocate(imgPath, spec.SizeBytes)
	if err != nil {
		t.Fatalf("Failed to allocate image: %v", err)
	}
	if err := WritePartitionTable(d, spec); err != nil {
		t.Fatalf("Failed to write partition table: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Failed to close allocator handle: %v", err)
	}

	// Read the table back through an independent handle.
	check, err := diskfs.Open(imgPath)
	if err != nil {
		t.Fatalf("Failed to reopen image: %v", err)
	}
	table, err := check.GetPartitionTable()
	if err != nil {
		t.Fatalf("Failed to read partition table: %v", err)
	}
	mbrTable, ok := table.(*mbr.Table)
	if !ok {
		t.Fatalf("Expected an MBR table, got %T", table)
	}

	var defined []*mbr.Partition
	for _, p := range mbrTable.Partitions {
		if p != nil && p.Type != mbr.Empty {
			defined = append(defined, p)
		}
	}
	if len(defined) != 1 {
		t.Fatalf("Expected exactly 1 partition entry, got %d", len(defined))
	}

	part := defined[0]
	if !part.Bootable {
		t.Error("Partition is not flagged bootable")
	}
	if part.Type != mbr.Fat32LBA {
		t.Errorf("Expected partition type Fat32LBA, got 0x%02x", byte(part.Type))
	}
	wantStart := uint32(spec.PartitionStart / SectorSize)
	if part.Start != wantStart {
		t.Errorf("Expected partition start sector %d, got %d", wantStart, part.Start)
	}
	wantSize := uint32((spec.SizeBytes - spec.PartitionStart) / SectorSize)
	if part.Size != wantSize {
		t.Errorf("Expected partition size %d sectors, got %d", wantSize, part.Size)
	}
}

// TestWritePartitionTableTooSmall tests the partition-fit check
func TestWritePartitionTableTooSmall(t *testing.T) {
	tempDir := t.TempDir()
	imgPath := filepath.Join(tempDir, "test.img")

	spec := DefaultSpec(imgPath)
	spec.SizeBytes = 16 * MiB
	spec.PartitionStart = 12 * MiB

	d, err := Allocate(imgPath, spec.SizeBytes)
	if err != nil {
		t.Fatalf("Failed to allocate image: %v", err)
	}

	err = WritePartitionTable(d, spec)
	if err == nil {
		t.Fatal("Expected error for undersized partition, got nil")
	}
	if !errors.Is(err, ErrPartition) {
		t.Errorf("Expected ErrPartition, got: %v", err)
	}
}
