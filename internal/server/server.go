package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type HttpServerParams struct {
	fx.In

	Context context.Context

	Config HttpConfig

	Routes []*Route `group:"routes"`
	Logger *zap.Logger
}

// HttpServer serves the read-only routes of the app, optionally with
// HTTP/2 cleartext upgrade.
type HttpServer struct {
	ctx    context.Context
	server *http.Server
	addr   atomic.Value
	log    *zap.Logger
}

func NewHttpServer(params HttpServerParams) *HttpServer {
	mux := http.NewServeMux()

	for _, route := range params.Routes {
		mux.Handle(route.Pattern, route.Handler)
	}

	var handler http.Handler = mux
	if params.Config.H2c {
		handler = h2c.NewHandler(mux, &http2.Server{})
	}

	return &HttpServer{
		ctx: params.Context,
		server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", params.Config.Host, params.Config.Port),
			Handler: handler,
		},
		log: params.Logger.Named("server"),
	}
}

// NewLifecycleServer serves from app start until app stop.
func NewLifecycleServer(params HttpServerParams, lc fx.Lifecycle) *HttpServer {
	server := NewHttpServer(params)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go server.Serve()
			return nil
		},
		OnStop: server.Shutdown,
	})

	return server
}

// Serve listens on the configured address and blocks until the server
// is shut down or the app context is done.
func (s *HttpServer) Serve() error {
	var cfg net.ListenConfig

	listener, err := cfg.Listen(s.ctx, "tcp", s.server.Addr)
	if err != nil {
		s.log.Error("failed to listen", zap.String("address", s.server.Addr), zap.Error(err))
		return err
	}

	s.addr.Store(listener.Addr().String())

	s.log.Info("listening", zap.String("address", listener.Addr().String()))

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("failed to serve", zap.Error(err))
		return err
	}

	return nil
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error("failed to shutdown", zap.Error(err))
		return err
	}

	return nil
}

// Addr returns the address the server listens on, once it does.
func (s *HttpServer) Addr() string {
	addr, _ := s.addr.Load().(string)
	return addr
}
