package http1

import "errors"

var (
	ErrMalformedStartLine = errors.New("malformed start line")
	ErrMalformedHeader    = errors.New("malformed header line")
	ErrHeadTooLarge       = errors.New("request head is too large")
	ErrHeadIncomplete     = errors.New("request head is not complete yet")
)

// IsMalformed reports whether err means the peer sent something that is not a
// request head, as opposed to a head that is merely too big.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedStartLine) || errors.Is(err, ErrMalformedHeader)
}
