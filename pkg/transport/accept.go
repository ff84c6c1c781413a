package transport

import (
	"errors"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// rawAccept performs a single non-blocking accept directly on the
// listener's descriptor and wraps the accepted descriptor in a net.Conn
// managed by the runtime poller. When no connection is pending it
// returns an error satisfying isWouldBlock: the readiness event raced
// with a client that reset before we got to it.
func rawAccept(ln *net.TCPListener) (net.Conn, error) {
	rc, err := ln.SyscallConn()
	if err != nil {
		return nil, err
	}

	var (
		nfd       int
		acceptErr error
	)
	if cerr := rc.Control(func(fd uintptr) {
		nfd, acceptErr = acceptFD(int(fd))
	}); cerr != nil {
		return nil, cerr
	}
	if acceptErr != nil {
		return nil, acceptErr
	}

	f := os.NewFile(uintptr(nfd), "accepted")
	conn, err := net.FileConn(f)
	// FileConn duplicates the descriptor; the original is closed either way.
	f.Close()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// isWouldBlock reports whether err means no connection was pending.
func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// isNetworkError reports whether err belongs to the anticipated
// network-layer failure class during accept: conditions the OS raises
// for one doomed connection attempt or momentary resource pressure.
func isNetworkError(err error) bool {
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.ECONNABORTED, unix.ECONNRESET, unix.EINTR, unix.EPROTO,
			unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM, unix.ETIMEDOUT:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
