package server

import (
	"net/http"

	"go.uber.org/fx"
)

// Route is an http handler mounted at Pattern. Routes are collected
// from the "routes" value group.
type Route struct {
	Pattern string
	Handler http.Handler
}

type RouteResult struct {
	fx.Out

	Route *Route `group:"routes"`
}

// AsRoute provides handler to the server under pattern.
func AsRoute(pattern string, handler http.Handler) RouteResult {
	return RouteResult{
		Route: &Route{
			Pattern: pattern,
			Handler: handler,
		},
	}
}

// Module serves all provided routes for the lifetime of the app.
func Module(config HttpConfig) fx.Option {
	return fx.Module("server",
		// provide config
		fx.Supply(config),
		// provide server
		fx.Provide(NewLifecycleServer),
		// invoke server
		fx.Invoke(func(*HttpServer) {}),
	)
}
