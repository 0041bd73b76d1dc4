package imagebuild

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Manifest is the list of artifacts, as paths relative to the source
// tree root, that a bootable image must carry. Entries may name files
// or directories.
type Manifest []string

// DefaultManifest covers a Limine-style boot layout: the boot
// configuration under boot/limine and the kernel binary at the root.
func DefaultManifest() Manifest {
	return Manifest{
		"boot/limine/limine.cfg",
		"kernel.bin",
	}
}

// Check confirms every manifest entry exists in the source tree. A
// missing entry is a precondition failure: the external build did not
// deliver what it promised, and staging must not start.
func (m Manifest) Check(fsys afero.Fs, root string) error {
	for _, rel := range m {
		if _, err := fsys.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			return fmt.Errorf("%w: required artifact %q missing from source tree: %v", ErrVerification, rel, err)
		}
	}
	return nil
}

// Verify confirms every manifest entry made it into the staged volume.
// Called after the copy completes; a miss here means the copy silently
// dropped something and the image must not be treated as valid.
func (m Manifest) Verify(vol Volume) error {
	for _, rel := range m {
		ok, err := vol.Exists(rel)
		if err != nil {
			return fmt.Errorf("%w: checking staged artifact %q: %v", ErrVerification, rel, err)
		}
		if !ok {
			return fmt.Errorf("%w: required artifact %q missing from image after copy", ErrVerification, rel)
		}
	}
	return nil
}
