package imagebuild

import "errors"

var (
	ErrAllocation   = errors.New("image allocation failed")
	ErrPartition    = errors.New("partitioning failed")
	ErrBind         = errors.New("device bind failed")
	ErrFormat       = errors.New("filesystem format failed")
	ErrMount        = errors.New("mount operation failed")
	ErrCopy         = errors.New("content copy failed")
	ErrVerification = errors.New("artifact verification failed")
	ErrInstall      = errors.New("bootloader install failed")
	ErrResourceLeak = errors.New("resource not released")
	ErrDiskFull     = errors.New("disk full")
)
