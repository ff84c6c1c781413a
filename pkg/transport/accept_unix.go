//go:build unix && !linux

package transport

import "golang.org/x/sys/unix"

// acceptFD accepts one pending connection on the listening descriptor.
// accept4 is not available everywhere, so the flags are applied after
// the fact.
func acceptFD(fd int) (int, error) {
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, err
	}
	unix.CloseOnExec(nfd)
	return nfd, nil
}
