package imagebuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// stageContents mounts the formatted partition at a fresh temporary
// directory, copies the whole source tree into it preserving relative
// paths, verifies the manifest in the destination, and unmounts. The
// unmount-before-remove ordering holds on every exit path: a mount
// directory is never removed while the filesystem is still attached.
func stageContents(ctx context.Context, dev BlockDevice, src afero.Fs, srcDir string, manifest Manifest, log *logrus.Entry) (err error) {
	mountDir, err := os.MkdirTemp("", "mkbootimg-mount-*")
	if err != nil {
		return fmt.Errorf("%w: creating mount point: %v", ErrMount, err)
	}

	vol, err := dev.Mount(ctx, mountDir)
	if err != nil {
		os.RemoveAll(mountDir)
		return err
	}

	defer func() {
		if uerr := vol.Unmount(); uerr != nil {
			if err == nil {
				err = uerr
			} else {
				log.WithError(uerr).Error("unmount failed during teardown")
			}
			// Still mounted; removing the directory now would delete
			// staged content through the mount.
			return
		}
		if rerr := os.RemoveAll(mountDir); rerr != nil {
			log.WithError(rerr).Warn("could not remove mount point directory")
		}
	}()

	if err := copyTree(ctx, vol, src, srcDir); err != nil {
		return err
	}

	log.WithField("artifacts", len(manifest)).Info("verifying staged artifacts")
	return manifest.Verify(vol)
}

// copyTree replicates every file and directory under srcDir into the
// volume at the same relative paths.
func copyTree(ctx context.Context, vol Volume, src afero.Fs, srcDir string) error {
	walkErr := afero.Walk(src, srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("%w: walking %s: %v", ErrCopy, p, err)
		}
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("%w: %v", ErrCopy, cerr)
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return fmt.Errorf("%w: resolving %s: %v", ErrCopy, p, err)
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if err := vol.Mkdir(rel); err != nil {
				return fmt.Errorf("%w: %v", ErrCopy, err)
			}
			return nil
		}

		file, err := src.Open(p)
		if err != nil {
			return fmt.Errorf("%w: opening %s: %v", ErrCopy, p, err)
		}
		defer file.Close()

		if err := vol.WriteFile(rel, file, info.Size()); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCopy, rel, err)
		}
		return nil
	})
	return walkErr
}
