//go:build linux

package transport

import "golang.org/x/sys/unix"

// acceptFD accepts one pending connection on the listening descriptor.
// The accepted descriptor is non-blocking and close-on-exec.
func acceptFD(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	return nfd, nil
}
