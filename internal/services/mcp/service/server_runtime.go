package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/acdrainwiz/drainwiz/internal/platform/httpx"
	"github.com/acdrainwiz/drainwiz/internal/platform/timeouts"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// Transport kinds.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// MCPPath is where the streamable HTTP transport is mounted.
const MCPPath = "/mcp"

// Config selects how the server is exposed.
type Config struct {
	Transport string
	HTTPAddr  string
}

// Run builds the server and blocks until the context ends or the client
// disconnects.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	switch cfg.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}

	server, err := NewServer(deps)
	if err != nil {
		return err
	}
	if cfg.Transport == TransportHTTP {
		return runHTTP(ctx, cfg.HTTPAddr, server, deps.Log)
	}
	return runWithTransport(ctx, server, &mcp.StdioTransport{})
}

// runWithTransport serves one session. Context cancellation is a clean stop.
func runWithTransport(ctx context.Context, server *mcp.Server, transport mcp.Transport) error {
	err := server.Run(ctx, transport)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// NewHTTPHandler exposes server over streamable HTTP at MCPPath, plus a
// health probe.
func NewHTTPHandler(server *mcp.Server, log *logrus.Entry) http.Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle(MCPPath, streamable)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return httpx.Chain(mux,
		httpx.RecoverPanic(log),
		httpx.RequestID(),
		httpx.Observe(log),
	)
}

func runHTTP(ctx context.Context, addr string, server *mcp.Server, log *logrus.Entry) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = "localhost:8081"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           NewHTTPHandler(server, log),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	serveErr := make(chan error, 1)
	log.WithField("addr", addr).WithField("path", MCPPath).Info("mcp listening")
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
