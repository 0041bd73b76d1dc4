package imagebuild

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

// newEmbeddedVolume allocates, partitions, formats, and mounts a small
// image through the pure-Go toolchain
func newEmbeddedVolume(t *testing.T) (BlockDevice, Volume) {
	t.Helper()
	imgPath := filepath.Join(t.TempDir(), "test.img")

	spec := DefaultSpec(imgPath)
	spec.SizeBytes = 16 * MiB

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

	ctx := context.Background()
	dev, err := NewEmbeddedToolchain().Bind(ctx, imgPath)
	if err != nil {
		t.Fatalf("Failed to bind device: %v", err)
	}
	if err := dev.Format(ctx, spec.VolumeLabel); err != nil {
		t.Fatalf("Failed to format partition: %v", err)
	}
	vol, err := dev.Mount(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("Failed to mount volume: %v", err)
	}
	return dev, vol
}

// TestEmbeddedVolumeExists tests presence checks for files, nested
// directories, and absent parents
func TestEmbeddedVolumeExists(t *testing.T) {
	dev, vol := newEmbeddedVolume(t)
	defer dev.Detach()
	defer vol.Unmount()

	content := "TIMEOUT=0\n"
	if err := vol.WriteFile("boot/limine/limine.cfg", strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Failed to write staged file: %v", err)
	}

	cases := []struct {
		path string
		want bool
	}{
		{"boot/limine/limine.cfg", true},
		{"boot/limine", true},
		{"boot", true},
		{"boot/limine/missing.cfg", false},
		// An absent parent directory is a plain miss, not an error.
		{"no/such/dir/file.bin", false},
	}
	for _, tc := range cases {
		got, err := vol.Exists(tc.path)
		if err != nil {
			t.Errorf("Exists(%q) returned error: %v", tc.path, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Exists(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

// TestEmbeddedDeviceDetachExactlyOnce tests the double-release guard
func TestEmbeddedDeviceDetachExactlyOnce(t *testing.T) {
	dev, vol := newEmbeddedVolume(t)

	if err := vol.Unmount(); err != nil {
		t.Fatalf("Unmount failed: %v", err)
	}
	if err := dev.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if err := dev.Detach(); err == nil {
		t.Fatal("Expected second detach to fail")
	}
}
