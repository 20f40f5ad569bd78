//go:build unix

package transport

import (
	"net"
	"os"
	"syscall"
)

// listen walks through socket, bind and listen by hand so that each step
// fails with its own Site.
func listen(addr *net.TCPAddr) (net.Listener, error) {
	// socket and CloseOnExec must not be split by a fork
	syscall.ForkLock.RLock()
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err == nil {
		syscall.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return nil, NewError(SiteSocket, os.NewSyscallError("socket", err))
	}

	// Allow reuse of recently-used addresses.
	if err = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		_ = syscall.Close(fd)
		return nil, NewError(SiteSocket, os.NewSyscallError("setsockopt", err))
	}

	sa := &syscall.SockaddrInet4{Port: addr.Port}
	if ip := addr.IP.To4(); ip != nil {
		copy(sa.Addr[:], ip)
	}

	if err = syscall.Bind(fd, sa); err != nil {
		_ = syscall.Close(fd)
		return nil, NewError(SiteBind, os.NewSyscallError("bind", err))
	}

	if err = syscall.Listen(fd, syscall.SOMAXCONN); err != nil {
		_ = syscall.Close(fd)
		return nil, NewError(SiteListen, os.NewSyscallError("listen", err))
	}

	// FileListener dups the descriptor, so the file is closed either way.
	file := os.NewFile(uintptr(fd), "reqinfo-listener")
	defer file.Close()

	ln, err := net.FileListener(file)
	if err != nil {
		return nil, NewError(SiteListen, err)
	}

	return ln, nil
}
