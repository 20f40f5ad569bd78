//go:build unix

package transport

import (
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBindConflict(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Init())
	defer func() { _ = tr.Shutdown() }()

	ln, err := tr.Listen("127.0.0.1", "0")
	require.NoError(t, err)

	_, err = tr.Listen("127.0.0.1", strconv.Itoa(ln.Endpoint().Port))
	terr := requireSite(t, err, SiteBind)
	require.Equal(t, int(syscall.EADDRINUSE), terr.Code)
	require.ErrorIs(t, err, syscall.EADDRINUSE)
}
