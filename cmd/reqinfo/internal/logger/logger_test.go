package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buff bytes.Buffer

	// first use races with initialization from several goroutines
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			InitWithWriter(&buff, true)
			Debug("concurrent line")
		}()
	}
	wg.Wait()

	// later calls are no-ops
	Init(false)

	Debug("debug line", "key", "value")
	With("conn_id", 7).Info("info line")

	out := buff.String()
	require.Equal(t, 8, strings.Count(out, `msg="concurrent line"`))
	require.Contains(t, out, "level=DEBUG")
	require.Contains(t, out, `msg="debug line" key=value`)
	require.Contains(t, out, "conn_id=7")
	require.Contains(t, out, "source=")
}
