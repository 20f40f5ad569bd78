package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/core"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/logger"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/parser/http1"
)

// DefaultReadBufferSize is the size of a single read from the connection.
const DefaultReadBufferSize = 255

const (
	statusOK                    = "200 OK"
	statusBadRequest            = "400 Bad Request"
	statusHeaderFieldsTooLarge  = "431 Request Header Fields Too Large"
	statusInternalServerError   = "500 Internal Server Error"
	htmlContentType             = "text/html; charset=UTF-8"
	missingUserAgentPlaceholder = "no UAString provided"
)

var errConnectionEnded = errors.New("connection ended")

// Handler answers every request head on a connection with the rendered
// diagnostic page, one request at a time, until the peer goes away or asks
// to close.
type Handler struct {
	Renderer       core.Renderer
	ReadBufferSize int
	MaxHeadSize    int
}

func New(renderer core.Renderer, readBufferSize, maxHeadSize int) *Handler {
	return &Handler{
		Renderer:       renderer,
		ReadBufferSize: readBufferSize,
		MaxHeadSize:    maxHeadSize,
	}
}

// HandleConnection implements core.ConnectionHandler.
// It takes full ownership of the connection lifecycle.
func (h *Handler) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	info, ok := core.ConnInfoFrom(ctx)
	if !ok {
		info = core.ConnInfo{RemoteAddr: conn.RemoteAddr().String()}
	}
	log := logger.With("remote_addr", info.RemoteAddr, "conn_id", info.ID)
	log.Debug("Connection accepted")

	parser := http1.NewParser(h.MaxHeadSize)
	buff := make([]byte, h.readBufferSize())

	for {
		if ctx.Err() != nil {
			log.Debug("Server is stopping, closing connection")
			return
		}

		// 1. Receive the head
		head, err := receiveHead(conn, parser, buff)
		if err != nil {
			h.reject(conn, log, err)
			return
		}

		// 2. Honor an explicit close without answering
		if value, found := head.Header("Connection"); found && value == "close" {
			log.Debug("Client requested close", "method", head.Method, "path", head.Path)
			return
		}

		// 3. Respond
		if err = h.respond(conn, head, info, log); err != nil {
			log.Debug("Connection ended while responding", "error", err)
			return
		}

		// 4. Re-arm the parser, keeping whatever the peer already sent
		rest := parser.Rest()
		parser.Reset()
		if err = parser.ProcessChunk(rest); err != nil {
			h.reject(conn, log, err)
			return
		}
	}
}

// receiveHead reads until the parser holds a complete head. Bytes that come
// with a read error are still fed to the parser first.
func receiveHead(conn net.Conn, parser *http1.Parser, buff []byte) (http1.Head, error) {
	for !parser.Complete() {
		n, err := conn.Read(buff)
		if n > 0 {
			if perr := parser.ProcessChunk(buff[:n]); perr != nil {
				return http1.Head{}, perr
			}

			if parser.Complete() {
				break
			}
		}

		if err != nil {
			return http1.Head{}, fmt.Errorf("%w: %w", errConnectionEnded, err)
		}

		if n == 0 {
			return http1.Head{}, errConnectionEnded
		}
	}

	return parser.Head()
}

func (h *Handler) respond(conn net.Conn, head http1.Head, info core.ConnInfo, log *slog.Logger) error {
	userAgent, found := head.Header("User-Agent")
	if !found {
		userAgent = missingUserAgentPlaceholder
	}
	log.Info("Request received",
		"method", head.Method,
		"path", head.Path,
		"protocol", head.Protocol,
		"user_agent", userAgent)

	body, err := h.Renderer.Render(head, info)
	if err != nil {
		log.Error("Failed to render response", "error", err)
		_, _ = conn.Write(appendResponse(nil, statusInternalServerError, "", nil, false))
		return err
	}

	_, err = conn.Write(appendResponse(nil, statusOK, htmlContentType, body, true))
	return err
}

// reject answers heads that can't be served and stays silent when the
// connection itself is gone.
func (h *Handler) reject(conn net.Conn, log *slog.Logger, err error) {
	var status string

	switch {
	case errors.Is(err, errConnectionEnded):
		log.Debug("Connection ended", "reason", err)
		return
	case http1.IsMalformed(err):
		status = statusBadRequest
	case errors.Is(err, http1.ErrHeadTooLarge):
		status = statusHeaderFieldsTooLarge
	default:
		log.Error("Unexpected error while receiving request", "error", err)
		return
	}

	log.Warn("Rejecting request", "status", status, "error", err)
	if _, werr := conn.Write(appendResponse(nil, status, "", nil, false)); werr != nil {
		log.Debug("Failed to write rejection", "error", werr)
	}
}

func (h *Handler) readBufferSize() int {
	if h.ReadBufferSize <= 0 {
		return DefaultReadBufferSize
	}

	return h.ReadBufferSize
}

// appendResponse serializes a complete response. Content-Length is always the
// exact byte length of body.
func appendResponse(buff []byte, status, contentType string, body []byte, keepAlive bool) []byte {
	buff = append(buff, "HTTP/1.1 "...)
	buff = append(buff, status...)
	buff = append(buff, "\r\n"...)

	if len(contentType) > 0 {
		buff = append(buff, "Content-Type: "...)
		buff = append(buff, contentType...)
		buff = append(buff, "\r\n"...)
	}

	if keepAlive {
		buff = append(buff, "Connection: keep-alive\r\n"...)
	} else {
		buff = append(buff, "Connection: close\r\n"...)
	}

	buff = append(buff, "Content-Length: "...)
	buff = strconv.AppendInt(buff, int64(len(body)), 10)
	buff = append(buff, "\r\n\r\n"...)

	return append(buff, body...)
}
