package imagebuild

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
)

// TestManifestCheck tests the source-tree precondition check
func TestManifestCheck(t *testing.T) {
	src := afero.NewMemMapFs()
	if err := afero.WriteFile(src, "build/kernel.bin", []byte("elf"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(src, "build/boot/limine/limine.cfg", []byte("TIMEOUT=0"), 0644); err != nil {
		t.Fatal(err)
	}

	manifest := DefaultManifest()
	if err := manifest.Check(src, "build"); err != nil {
		t.Fatalf("Check failed on a complete tree: %v", err)
	}
}

// TestManifestCheckMissingArtifact tests that a missing artifact is a
// verification-class failure
func TestManifestCheckMissingArtifact(t *testing.T) {
	src := afero.NewMemMapFs()
	if err := afero.WriteFile(src, "build/kernel.bin", []byte("elf"), 0644); err != nil {
		t.Fatal(err)
	}

	manifest := DefaultManifest()
	err := manifest.Check(src, "build")
	if err == nil {
		t.Fatal("Expected error for missing boot config, got nil")
	}
	if !errors.Is(err, ErrVerification) {
		t.Errorf("Expected ErrVerification, got: %v", err)
	}
}

// TestManifestCheckDirectoryEntry tests that directory entries satisfy
// the manifest
func TestManifestCheckDirectoryEntry(t *testing.T) {
	src := afero.NewMemMapFs()
	if err := src.MkdirAll("build/boot/limine", 0755); err != nil {
		t.Fatal(err)
	}

	manifest := Manifest{"boot/limine"}
	if err := manifest.Check(src, "build"); err != nil {
		t.Fatalf("Check failed on a directory entry: %v", err)
	}
}
