package imagebuild

import (
	"fmt"

	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/partition/mbr"
)

// WritePartitionTable writes a legacy MBR table with a single bootable
// FAT32 partition running from the spec's offset to the end of the
// device. Nothing past the table region is touched; the formatter owns
// those bytes.
func WritePartitionTable(d *disk.Disk, spec Spec) error {
	if spec.SizeBytes < spec.PartitionStart+MinFilesystemBytes {
		return fmt.Errorf("%w: partition of %d bytes at offset %d does not fit a filesystem",
			ErrPartition, spec.SizeBytes-spec.PartitionStart, spec.PartitionStart)
	}

	table := &mbr.Table{
		LogicalSectorSize:  SectorSize,
		PhysicalSectorSize: SectorSize,
		Partitions: []*mbr.Partition{
			{
				Bootable: true,
				Type:     mbr.Fat32LBA,
				Start:    uint32(spec.PartitionStart / SectorSize),
				Size:     uint32((spec.SizeBytes - spec.PartitionStart) / SectorSize),
			},
		},
	}

	if err := d.Partition(table); err != nil {
		return fmt.Errorf("%w: writing MBR table: %v", ErrPartition, err)
	}
	return nil
}
