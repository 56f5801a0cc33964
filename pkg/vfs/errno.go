/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package vfs

import (
	"golang.org/x/sys/unix"
)

// Errno wraps a POSIX errno value so every subsystem (socket syscalls,
// ext4 mount failures, VFS operations) reports the same canonical error
// type instead of ad-hoc strings.
type Errno unix.Errno

func (e Errno) Error() string { return unix.Errno(e).Error() }

// Is supports errors.Is against the underlying unix.Errno and against
// other Errno values.
func (e Errno) Is(target error) bool {
	if t, ok := target.(Errno); ok {
		return e == t
	}
	return unix.Errno(e) == target
}

// Canonical errno values used across the socket, VFS, and namespace
// surfaces. Values are sourced from golang.org/x/sys/unix rather than
// hand-rolled so they match the host platform's ABI.
var (
	EINVAL       = Errno(unix.EINVAL)
	EBADF        = Errno(unix.EBADF)
	ENOTSOCK     = Errno(unix.ENOTSOCK)
	EAFNOSUPPORT = Errno(unix.EAFNOSUPPORT)
	ESOCKTNOSUPPORT = Errno(unix.ESOCKTNOSUPPORT)
	EPROTONOSUPPORT = Errno(unix.EPROTONOSUPPORT)
	ENOMEM       = Errno(unix.ENOMEM)
	EOPNOTSUPP   = Errno(unix.EOPNOTSUPP)
	ENOTCONN     = Errno(unix.ENOTCONN)
	EISCONN      = Errno(unix.EISCONN)
	EFAULT       = Errno(unix.EFAULT)
	EAGAIN       = Errno(unix.EAGAIN)
	EWOULDBLOCK  = Errno(unix.EWOULDBLOCK)
	EINPROGRESS  = Errno(unix.EINPROGRESS)
	EALREADY     = Errno(unix.EALREADY)
	ECONNRESET   = Errno(unix.ECONNRESET)
	ECONNREFUSED = Errno(unix.ECONNREFUSED)
	EROFS        = Errno(unix.EROFS)
	EPERM        = Errno(unix.EPERM)
	EIO          = Errno(unix.EIO)
)
