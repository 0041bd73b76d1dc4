//go:build !linux

package imagebuild

// newPlatformToolchain falls back to the pure-Go toolchain where loop
// devices are not available.
func newPlatformToolchain() Toolchain {
	return NewEmbeddedToolchain()
}
