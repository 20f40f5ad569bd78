package factory

import (
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/config"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/core"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/handler"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/logger"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/render"
)

// HandlerFactory creates the connection handler
type HandlerFactory struct {
	cfg *config.Config
}

func NewHandlerFactory(cfg *config.Config) *HandlerFactory {
	return &HandlerFactory{cfg: cfg}
}

// Create wires the diagnostic page renderer into a connection handler.
func (f *HandlerFactory) Create(instance core.InstanceInfo) core.ConnectionHandler {
	logger.Info("Creating request info handler",
		"read_buffer_size", f.cfg.ReadBufferSize,
		"max_head_size", f.cfg.MaxHeadSize)

	return handler.New(render.New(instance), f.cfg.ReadBufferSize, f.cfg.MaxHeadSize)
}
