// SPDX-License-Identifier: MIT

//go:build linux && (mips || mipsle || mips64 || mips64le || ppc64 || ppc64le || sparc64)

package kapi

// These arches use the legacy ioctl direction encoding.
const (
	iocNRBits    = 8
	iocTypeBits  = 8
	iocSizeBits  = 13
	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
	iocWrite     = 4
	iocRead      = 2
)
