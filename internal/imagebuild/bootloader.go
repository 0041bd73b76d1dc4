package imagebuild

import (
	"context"
	"fmt"
	"os/exec"
)

// InstallBootloader writes the Limine BIOS stages into the image's
// reserved sectors by invoking the limine tool. It runs after the
// device is detached, against the raw backing file, and is optional: a
// build without it still produces a valid partitioned filesystem
// image.
func InstallBootloader(ctx context.Context, liminePath, imagePath string) error {
	out, err := exec.CommandContext(ctx, liminePath, "bios-install", imagePath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s bios-install %s: %v (output: %s)", ErrInstall, liminePath, imagePath, err, out)
	}
	return nil
}
