//go:build linux

package imagebuild

// newPlatformToolchain prefers the host tools on Linux, where loop
// devices and kernel mounts are available.
func newPlatformToolchain() Toolchain {
	return NewHostToolchain()
}
