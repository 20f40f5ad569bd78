package core

import (
	"context"
	"net"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/parser/http1"
)

// ConnectionHandler takes full ownership of an accepted connection and must
// close it before returning. ctx is cancelled when the server stops.
type ConnectionHandler interface {
	HandleConnection(ctx context.Context, conn net.Conn)
}

// ConnInfo describes the connection a request arrived on.
type ConnInfo struct {
	ID         uint64
	RemoteAddr string
}

// Renderer produces the response body for a parsed request head.
type Renderer interface {
	Render(head http1.Head, info ConnInfo) ([]byte, error)
}

// InstanceInfo identifies the process that answered, which matters once
// several replicas run behind one address.
type InstanceInfo struct {
	Runtime   string
	Hostname  string
	Pod       string
	Namespace string
	Node      string
	PodIP     string
}

// InstanceResolver looks up InstanceInfo once at startup.
type InstanceResolver interface {
	Resolve(ctx context.Context) (InstanceInfo, error)
}

type connInfoKey struct{}

func WithConnInfo(ctx context.Context, info ConnInfo) context.Context {
	return context.WithValue(ctx, connInfoKey{}, info)
}

// ConnInfoFrom returns the ConnInfo stored by the server, if any.
func ConnInfoFrom(ctx context.Context) (ConnInfo, bool) {
	info, ok := ctx.Value(connInfoKey{}).(ConnInfo)
	return info, ok
}
