package memory

import (
	"context"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/core"
)

// Resolver returns instance details that were known up front.
type Resolver struct {
	info core.InstanceInfo
}

func NewResolver(info core.InstanceInfo) *Resolver {
	return &Resolver{info: info}
}

func (r *Resolver) Resolve(ctx context.Context) (core.InstanceInfo, error) {
	if err := ctx.Err(); err != nil {
		return core.InstanceInfo{}, err
	}

	return r.info, nil
}
