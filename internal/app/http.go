package app

import (
	"context"

	medhttp "github.com/yungbote/medgraph/internal/http"
	httpH "github.com/yungbote/medgraph/internal/http/handlers"
)

// Server wires the HTTP API around one shared session.
func (a *App) Server() *medhttp.Server {
	var graph httpH.GraphStatus
	if a.Graph != nil {
		graph = a.Graph
	}
	serviceName := ""
	if a.Config.Otel.Enabled {
		serviceName = a.Config.Otel.ServiceName
		if serviceName == "" {
			serviceName = "medgraph"
		}
	}
	return medhttp.NewServer(medhttp.ServerConfig{
		Addr:              a.Config.HTTP.Addr,
		ReadHeaderTimeout: a.Config.HTTP.ReadHeaderTimeout,
		ShutdownTimeout:   a.Config.HTTP.ShutdownTimeout,
	}, medhttp.RouterConfig{
		Log:             a.Log,
		ServiceName:     serviceName,
		CORSOrigins:     a.Config.HTTP.CORSOrigins,
		MaxRequestBytes: a.Config.HTTP.MaxRequestBytes,
		Metrics:         a.Metrics,
		HealthHandler:   httpH.NewHealthHandler(graph, a.completionConfigured),
		ChatHandler:     httpH.NewChatHandler(a.Session()),
	})
}

// Serve runs the HTTP API until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	return a.Server().Run(ctx)
}
