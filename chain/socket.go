package chain

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// listenUnix creates a non-blocking, listening Unix stream socket
// bound to path, removing any stale socket file first.
func listenUnix(path string) (int, error) {
	_ = os.Remove(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setnonblock: %w", err)
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// listenTCP creates a non-blocking, listening TCP socket on port (0
// for an ephemeral port) and returns the fd and the bound port.
func listenTCP(port int) (int, int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, 0, fmt.Errorf("socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("setnonblock: %w", err)
	}
	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("listen: %w", err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("getsockname: %w", err)
	}
	boundPort := sa.(*unix.SockaddrInet4).Port
	return fd, boundPort, nil
}

// dialUnixNonblocking starts a non-blocking connect to a Unix stream
// socket and returns the fd immediately; completion (success or
// failure) is observed via writability + SO_ERROR, same as TCP.
func dialUnixNonblocking(path string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setnonblock: %w", err)
	}
	addr := &unix.SockaddrUnix{Name: path}
	err = unix.Connect(fd, addr)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, fmt.Errorf("connect: %w", err)
	}
	return fd, nil
}

// dialTCPNonblocking starts a non-blocking connect to host:port.
func dialTCPNonblocking(ip [4]byte, port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setnonblock: %w", err)
	}
	addr := &unix.SockaddrInet4{Port: port, Addr: ip}
	err = unix.Connect(fd, addr)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, fmt.Errorf("connect: %w", err)
	}
	return fd, nil
}

// socketError reads and clears SO_ERROR, the standard way to learn
// whether a non-blocking connect succeeded once the fd is writable.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// closeFD closes fd, discarding any error (mirroring the teacher's
// best-effort fd cleanup on shutdown paths).
func closeFD(fd int) {
	_ = unix.Close(fd)
}

// acceptNonblocking accepts one pending connection on a non-blocking
// listening socket, returning (fd, true, nil) on success, (0, false,
// nil) if no connection is pending (EAGAIN), or an error.
func acceptNonblocking(listenFD int) (int, bool, error) {
	fd, _, err := unix.Accept(listenFD)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, false, nil
		}
		return 0, false, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return 0, false, err
	}
	return fd, true, nil
}
