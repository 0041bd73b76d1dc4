package imagebuild

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// State tracks a build's progress through the pipeline. Done and
// Failed are terminal; no resource handle outlives either.
type State int

const (
	StateUnallocated State = iota
	StateAllocated
	StatePartitioned
	StateFormatted
	StateStaged
	StateReleased
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnallocated:
		return "unallocated"
	case StateAllocated:
		return "allocated"
	case StatePartitioned:
		return "partitioned"
	case StateFormatted:
		return "formatted"
	case StateStaged:
		return "staged"
	case StateReleased:
		return "released"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Builder runs one image build from allocation through staging. It is
// single-use and not safe for concurrent builds against the same
// target path; callers wanting that must serialize externally.
type Builder struct {
	// Source is the filesystem holding the build-output tree.
	// Defaults to the host filesystem.
	Source afero.Fs

	// LiminePath, when set, names the limine executable used to
	// install the BIOS boot stages after staging.
	LiminePath string

	spec      Spec
	toolchain Toolchain
	state     State
	log       *logrus.Entry
}

// NewBuilder returns a Builder for the given spec and toolchain.
func NewBuilder(spec Spec, toolchain Toolchain) *Builder {
	return &Builder{
		Source:    afero.NewOsFs(),
		spec:      spec,
		toolchain: toolchain,
		log:       logrus.WithField("image", spec.TargetPath),
	}
}

// State reports how far the build progressed.
func (b *Builder) State() State {
	return b.state
}

// Build runs the full pipeline: allocate, partition, bind and format,
// stage, release. On any failure every resource acquired so far is
// released in reverse order, the partial image file is removed, and
// the returned error wraps the failed stage's sentinel.
func (b *Builder) Build(ctx context.Context, sourceDir string) (err error) {
	defer func() {
		if err != nil {
			// A partial image must not be mistaken for a built one.
			// Failures before allocation never touched the target, so
			// leave whatever was there alone.
			if b.state != StateUnallocated {
				if rerr := os.Remove(b.spec.TargetPath); rerr != nil && !os.IsNotExist(rerr) {
					b.log.WithError(rerr).Warn("could not remove partial image")
				}
			}
			b.state = StateFailed
		}
	}()

	if err := b.spec.Validate(); err != nil {
		return err
	}
	if err := b.spec.Manifest.Check(b.Source, sourceDir); err != nil {
		return err
	}

	b.log.WithFields(logrus.Fields{"stage": "allocate", "size": b.spec.SizeBytes}).Info("allocating backing file")
	d, err := Allocate(b.spec.TargetPath, b.spec.SizeBytes)
	if err != nil {
		return err
	}
	b.state = StateAllocated

	b.log.WithFields(logrus.Fields{"stage": "partition", "offset": b.spec.PartitionStart}).Info("writing partition table")
	if err := WritePartitionTable(d, b.spec); err != nil {
		return err
	}
	// The allocator's handle is done; the bind below takes its own.
	if err := d.Close(); err != nil {
		return fmt.Errorf("%w: closing backing file after partitioning: %v", ErrResourceLeak, err)
	}
	b.state = StatePartitioned

	b.log.WithField("stage", "bind").Info("binding block device")
	dev, err := b.toolchain.Bind(ctx, b.spec.TargetPath)
	if err != nil {
		return err
	}

	// The device must be detached exactly once on every path from
	// here on; leaving it bound leaks a host device slot.
	detached := false
	defer func() {
		if detached {
			return
		}
		if derr := dev.Detach(); derr != nil {
			b.log.WithError(derr).Error("device detach failed during teardown")
			if err == nil {
				err = derr
			}
		}
	}()

	b.log.WithFields(logrus.Fields{"stage": "format", "label": b.spec.VolumeLabel}).Info("formatting FAT32 volume")
	if err := dev.Format(ctx, b.spec.VolumeLabel); err != nil {
		return err
	}
	b.state = StateFormatted

	b.log.WithFields(logrus.Fields{"stage": "stage", "source": sourceDir}).Info("staging build outputs")
	if err := stageContents(ctx, dev, b.Source, sourceDir, b.spec.Manifest, b.log); err != nil {
		return err
	}
	b.state = StateStaged

	detached = true
	if err := dev.Detach(); err != nil {
		return err
	}
	b.state = StateReleased

	if b.LiminePath != "" {
		b.log.WithField("stage", "bootloader").Info("installing limine boot stages")
		if err := InstallBootloader(ctx, b.LiminePath, b.spec.TargetPath); err != nil {
			return err
		}
	}

	b.state = StateDone
	b.log.Info("image build complete")
	return nil
}
