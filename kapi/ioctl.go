// SPDX-License-Identifier: MIT

//go:build linux

package kapi

// ioctl command encoding, as per the kernel's asm-generic/ioctl.h.
// The direction/size/type/number shifts are arch dependent and defined in
// ioctl_XXX.go.
type ioctl uintptr

func ior(t, nr, size uintptr) ioctl {
	return ioctl((iocRead << iocDirShift) |
		(size << iocSizeShift) |
		(t << iocTypeShift) |
		(nr << iocNRShift))
}

func iorw(t, nr, size uintptr) ioctl {
	return ioctl(((iocRead | iocWrite) << iocDirShift) |
		(size << iocSizeShift) |
		(t << iocTypeShift) |
		(nr << iocNRShift))
}
