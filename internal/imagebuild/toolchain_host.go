package imagebuild

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// HostToolchain drives the host's block-device tools: losetup to bind
// the image, mkfs.fat to format, and kernel mounts for staging. It
// needs root (or equivalent capabilities) and a Linux host.
type HostToolchain struct{}

// NewHostToolchain returns the losetup/mkfs/mount based toolchain.
func NewHostToolchain() *HostToolchain {
	return &HostToolchain{}
}

// Bind attaches the image to a free loop device with partition
// scanning enabled, so partition 1 appears as <loop>p1.
func (t *HostToolchain) Bind(ctx context.Context, imagePath string) (BlockDevice, error) {
	out, err := exec.CommandContext(ctx, "losetup", "--show", "--find", "--partscan", imagePath).Output()
	if err != nil {
		return nil, fmt.Errorf("%w: losetup %s: %v%s", ErrBind, imagePath, err, stderrOf(err))
	}
	loopPath := strings.TrimSpace(string(out))
	if loopPath == "" {
		return nil, fmt.Errorf("%w: losetup returned no device for %s", ErrBind, imagePath)
	}
	return &loopDevice{loopPath: loopPath}, nil
}

type loopDevice struct {
	loopPath string
	detached bool
}

func (d *loopDevice) partitionPath() string {
	return d.loopPath + "p1"
}

func (d *loopDevice) Format(ctx context.Context, label string) error {
	args := []string{"-F", "32"}
	if label != "" {
		args = append(args, "-n", label)
	}
	args = append(args, d.partitionPath())
	if out, err := exec.CommandContext(ctx, "mkfs.fat", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%w: mkfs.fat %s: %v (output: %s)", ErrFormat, d.partitionPath(), err, out)
	}
	return nil
}

func (d *loopDevice) Mount(ctx context.Context, dir string) (Volume, error) {
	if out, err := exec.CommandContext(ctx, "mount", d.partitionPath(), dir).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: mounting %s at %s: %v (output: %s)", ErrMount, d.partitionPath(), dir, err, out)
	}
	return &hostVolume{mountDir: dir}, nil
}

// Detach releases the loop device. Deliberately not run under the
// build context: teardown must proceed even after cancellation.
func (d *loopDevice) Detach() error {
	if d.detached {
		return fmt.Errorf("%w: loop device %s already detached", ErrResourceLeak, d.loopPath)
	}
	if out, err := exec.Command("losetup", "--detach", d.loopPath).CombinedOutput(); err != nil {
		return fmt.Errorf("%w: losetup --detach %s: %v (output: %s)", ErrResourceLeak, d.loopPath, err, out)
	}
	d.detached = true
	return nil
}

type hostVolume struct {
	mountDir string
	released bool
}

func (v *hostVolume) hostPath(relPath string) string {
	return filepath.Join(v.mountDir, filepath.FromSlash(normalizePath(relPath)))
}

func (v *hostVolume) Mkdir(relPath string) error {
	if v.released {
		return fmt.Errorf("%w: volume released", ErrMount)
	}
	if err := os.MkdirAll(v.hostPath(relPath), 0755); err != nil {
		if isOutOfSpace(err) {
			return fmt.Errorf("%w: creating directory %s", ErrDiskFull, relPath)
		}
		return fmt.Errorf("creating directory %s: %w", relPath, err)
	}
	return nil
}

func (v *hostVolume) WriteFile(relPath string, r io.Reader, size int64) error {
	if v.released {
		return fmt.Errorf("%w: volume released", ErrMount)
	}
	target := v.hostPath(relPath)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", relPath, err)
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		if isOutOfSpace(err) {
			return fmt.Errorf("%w: creating %s", ErrDiskFull, relPath)
		}
		return fmt.Errorf("creating %s: %w", relPath, err)
	}
	defer file.Close()

	w := bufio.NewWriterSize(file, 1024*1024)
	if _, err := io.Copy(w, r); err != nil {
		if isOutOfSpace(err) {
			return fmt.Errorf("%w: writing %s", ErrDiskFull, relPath)
		}
		return fmt.Errorf("writing %s: %w", relPath, err)
	}
	if err := w.Flush(); err != nil {
		if isOutOfSpace(err) {
			return fmt.Errorf("%w: flushing %s", ErrDiskFull, relPath)
		}
		return fmt.Errorf("flushing %s: %w", relPath, err)
	}
	return nil
}

func (v *hostVolume) Exists(relPath string) (bool, error) {
	if v.released {
		return false, fmt.Errorf("%w: volume released", ErrMount)
	}
	if _, err := os.Stat(v.hostPath(relPath)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Unmount releases the kernel mount. Like Detach, it runs outside the
// build context so cancellation cannot skip it.
func (v *hostVolume) Unmount() error {
	if v.released {
		return fmt.Errorf("%w: volume already unmounted", ErrResourceLeak)
	}
	if out, err := exec.Command("umount", v.mountDir).CombinedOutput(); err != nil {
		return fmt.Errorf("%w: umount %s: %v (output: %s)", ErrResourceLeak, v.mountDir, err, out)
	}
	v.released = true
	return nil
}

// isOutOfSpace reports whether err is a "no space left on device"
// condition, from either an errno or a go-diskfs message.
func isOutOfSpace(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, unix.ENOSPC) {
		return true
	}
	return strings.Contains(err.Error(), "no space left on device")
}

// stderrOf pulls captured stderr out of an exec.ExitError for
// diagnostics.
func stderrOf(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return " (stderr: " + strings.TrimSpace(string(exitErr.Stderr)) + ")"
	}
	return ""
}
