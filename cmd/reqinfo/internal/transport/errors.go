package transport

import (
	"errors"
	"fmt"
	"syscall"
)

// Site names the step of the listener setup (or of the accept loop) that failed.
type Site string

const (
	SiteInit    Site = "startup"
	SiteResolve Site = "addrinfo"
	SiteSocket  Site = "socket"
	SiteBind    Site = "bind"
	SiteListen  Site = "listen"
	SiteAccept  Site = "accept"
)

var (
	ErrNotInitialized     = errors.New("transport is not initialized")
	ErrAlreadyInitialized = errors.New("transport is already initialized")
	ErrShutdown           = errors.New("transport is shut down")
)

// Error is the failure of one transport step. Code carries the OS error number
// when there is one and is zero otherwise.
type Error struct {
	Site Site
	Code int
	Err  error
}

func NewError(site Site, err error) *Error {
	var errno syscall.Errno
	code := 0
	if errors.As(err, &errno) {
		code = int(errno)
	}

	return &Error{
		Site: site,
		Code: code,
		Err:  err,
	}
}

func (e *Error) Error() string {
	if e.Site == SiteInit {
		return fmt.Sprintf("socket library initialization failed: %v", e.Err)
	}

	return fmt.Sprintf("%s() failed with error: %d (%v)", e.Site, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SiteOf returns the site of the first *Error in err's chain.
func SiteOf(err error) (Site, bool) {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Site, true
	}

	return "", false
}
