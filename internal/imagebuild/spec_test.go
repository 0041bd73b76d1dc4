package imagebuild

import (
	"errors"
	"testing"
)

// TestValidateDefaults tests that the default spec passes validation
func TestValidateDefaults(t *testing.T) {
	spec := DefaultSpec("boot.img")
	if err := spec.Validate(); err != nil {
		t.Fatalf("Default spec failed validation: %v", err)
	}
}

// TestValidateRejectsBadGeometry tests geometry invariant enforcement
func TestValidateRejectsBadGeometry(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(*Spec)
		wantGeomy bool // expect ErrPartition specifically
	}{
		{
			name:   "empty target path",
			mutate: func(s *Spec) { s.TargetPath = " " },
		},
		{
			name:   "size not MiB multiple",
			mutate: func(s *Spec) { s.SizeBytes = 64*MiB + 512 },
		},
		{
			name:   "zero size",
			mutate: func(s *Spec) { s.SizeBytes = 0 },
		},
		{
			name:   "zero offset",
			mutate: func(s *Spec) { s.PartitionStart = 0 },
		},
		{
			name:   "offset not MiB aligned",
			mutate: func(s *Spec) { s.PartitionStart = 1536 * 1024 },
		},
		{
			name:      "no room for filesystem",
			mutate:    func(s *Spec) { s.SizeBytes = 8 * MiB; s.PartitionStart = 1 * MiB },
			wantGeomy: true,
		},
		{
			name:      "offset past end",
			mutate:    func(s *Spec) { s.SizeBytes = 16 * MiB; s.PartitionStart = 32 * MiB },
			wantGeomy: true,
		},
		{
			name:      "beyond MBR sector addressing",
			mutate:    func(s *Spec) { s.SizeBytes = 3 * 1024 * 1024 * MiB },
			wantGeomy: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := DefaultSpec("boot.img")
			tc.mutate(&spec)
			err := spec.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if tc.wantGeomy && !errors.Is(err, ErrPartition) {
				t.Errorf("Expected ErrPartition, got: %v", err)
			}
		})
	}
}

// TestValidateMinimumSize tests the smallest acceptable image
func TestValidateMinimumSize(t *testing.T) {
	spec := DefaultSpec("boot.img")
	spec.SizeBytes = DefaultPartitionStart + MinFilesystemBytes
	if err := spec.Validate(); err != nil {
		t.Fatalf("Minimum-size spec failed validation: %v", err)
	}
}
