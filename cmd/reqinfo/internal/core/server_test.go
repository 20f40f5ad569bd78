package core_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/core"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/handler"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/parser/http1"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/render"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/transport"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, h core.ConnectionHandler) (*core.Server, string, <-chan error) {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	server := &core.Server{
		Listener:          ln,
		ConnectionHandler: h,
	}

	served := make(chan error, 1)
	go func() {
		served <- server.Serve()
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})

	return server, ln.Addr().String(), served
}

func pageHandler() core.ConnectionHandler {
	return handler.New(render.New(core.InstanceInfo{Hostname: "test-host"}), handler.DefaultReadBufferSize, http1.DefaultMaxHeadSize)
}

func TestEndToEnd(t *testing.T) {
	_, addr, _ := startServer(t, pageHandler())

	conn, err := net.Dial("tcp4", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nUser-Agent: test\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, "200 OK", resp.Status)
	require.Equal(t, "keep-alive", resp.Header.Get("Connection"))
	require.Equal(t, strconv.Itoa(len(body)), resp.Header.Get("Content-Length"))

	page := string(body)
	require.Contains(t, page, "<tr><th>Method</th><td>GET</td></tr>")
	require.Contains(t, page, "<tr><th>Path</th><td>/</td></tr>")
	require.Contains(t, page, "<tr><th>Protocol</th><td>HTTP/1.1</td></tr>")
	require.Contains(t, page, "<tr><th>User-Agent</th><td>test</td></tr>")
	require.Contains(t, page, "<tr><th>Connection ID</th><td>1</td></tr>")
	require.Contains(t, page, "<tr><th>Hostname</th><td>test-host</td></tr>")

	// same connection, second cycle
	_, err = conn.Write([]byte("POST /headerbugtest.php HTTP/1.1\r\nContent-Type: application/json\r\n\r\n"))
	require.NoError(t, err)
	resp, err = http.ReadResponse(reader, nil)
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "<h1>XMLHttpRequest info</h1>")
	require.Contains(t, string(body), "<tr><th>Connection ID</th><td>1</td></tr>")
}

func TestConnectionsAreIndependent(t *testing.T) {
	_, addr, _ := startServer(t, pageHandler())

	// a silent peer must not hold up the others
	silent, err := net.Dial("tcp4", addr)
	require.NoError(t, err)
	defer silent.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			conn, err := net.Dial("tcp4", addr)
			if !assertNoError(t, err) {
				return
			}
			defer conn.Close()

			_, err = conn.Write([]byte("GET /" + strconv.Itoa(i) + " HTTP/1.1\r\n\r\n"))
			if !assertNoError(t, err) {
				return
			}

			resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
			if !assertNoError(t, err) {
				return
			}
			body, err := io.ReadAll(resp.Body)
			if !assertNoError(t, err) {
				return
			}
			if resp.StatusCode != http.StatusOK || len(body) == 0 {
				t.Errorf("unexpected response %d with %d bytes", resp.StatusCode, len(body))
			}
		}(i)
	}
	wg.Wait()
}

func assertNoError(t *testing.T, err error) bool {
	if err != nil {
		t.Error(err)
		return false
	}
	return true
}

type blockingHandler struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingHandler) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	b.started <- struct{}{}
	<-b.release
}

func TestStop(t *testing.T) {
	t.Run("interrupts idle connections and drains", func(t *testing.T) {
		server, addr, served := startServer(t, pageHandler())

		conn, err := net.Dial("tcp4", addr)
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
		require.NoError(t, err)
		_, err = http.ReadResponse(bufio.NewReader(conn), nil)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return server.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, server.Stop(ctx))
		require.ErrorIs(t, <-served, core.ErrServerClosed)
		require.Zero(t, server.ActiveConnections())

		// the handler closed its end
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, err = conn.Read(make([]byte, 1))
		require.Error(t, err)

		_, err = net.Dial("tcp4", addr)
		require.Error(t, err)
	})

	t.Run("gives up waiting when the context ends", func(t *testing.T) {
		h := &blockingHandler{started: make(chan struct{}, 1), release: make(chan struct{})}
		server, addr, _ := startServer(t, h)
		defer close(h.release)

		conn, err := net.Dial("tcp4", addr)
		require.NoError(t, err)
		defer conn.Close()
		<-h.started

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, server.Stop(ctx), context.DeadlineExceeded)
		require.Equal(t, 1, server.ActiveConnections())
	})

	t.Run("handlers see the connection info and the stop signal", func(t *testing.T) {
		infos := make(chan core.ConnInfo, 1)
		stopped := make(chan struct{})
		h := handlerFunc(func(ctx context.Context, conn net.Conn) {
			defer conn.Close()
			info, _ := core.ConnInfoFrom(ctx)
			infos <- info
			<-ctx.Done()
			close(stopped)
		})
		server, addr, _ := startServer(t, h)

		conn, err := net.Dial("tcp4", addr)
		require.NoError(t, err)
		defer conn.Close()

		info := <-infos
		require.Equal(t, uint64(1), info.ID)
		require.Equal(t, conn.LocalAddr().String(), info.RemoteAddr)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, server.Stop(ctx))
		<-stopped
	})
}

type handlerFunc func(ctx context.Context, conn net.Conn)

func (f handlerFunc) HandleConnection(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// flakyListener fails a few accepts before handing out real connections.
type flakyListener struct {
	net.Listener
	mu       sync.Mutex
	failures int
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, errors.New("too many open files")
	}
	l.mu.Unlock()

	return l.Listener.Accept()
}

func TestAcceptFailuresAreRetried(t *testing.T) {
	inner, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	server := &core.Server{
		Listener:          &flakyListener{Listener: inner, failures: 3},
		ConnectionHandler: pageHandler(),
	}
	served := make(chan error, 1)
	go func() { served <- server.Serve() }()

	conn, err := net.Dial("tcp4", inner.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.ErrorIs(t, <-served, core.ErrServerClosed)
}

func TestListenerClosedElsewhere(t *testing.T) {
	tr := transport.New()
	require.NoError(t, tr.Init())

	ln, err := tr.Listen("127.0.0.1", "0")
	require.NoError(t, err)

	server := &core.Server{Listener: ln, ConnectionHandler: pageHandler()}
	served := make(chan error, 1)
	go func() { served <- server.Serve() }()

	require.NoError(t, tr.Shutdown())
	select {
	case err := <-served:
		require.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
