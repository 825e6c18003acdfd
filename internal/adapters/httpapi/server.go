// Package httpapi exposes the configuration service over HTTP with gin.
//
// Routes:
//
//	GET    /healthz
//	GET    /v1/catalog                         catalog parameters grouped by category
//	GET    /v1/sessions                        known session ids
//	GET    /v1/sessions/:id/parameters         current parameters grouped by category
//	GET    /v1/sessions/:id/values             current values keyed by parameter
//	PUT    /v1/sessions/:id/parameters/:key    apply one change
//	POST   /v1/sessions/:id/reset              restore catalog defaults
//	GET    /v1/sessions/:id/audit[?limit=n]    audit history, newest first when limited
//	POST   /v1/sessions/:id/audit/export       archive the audit history
//	DELETE /v1/sessions/:id                    forget the session
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"smartloan/internal/core"
	"smartloan/pkg/domain"
)

// ServiceName identifies the HTTP server in traces.
const ServiceName = "smartloan"

// ConfigService is the subset of core.Service the handlers use.
type ConfigService interface {
	Catalog() domain.Catalog
	Apply(ctx context.Context, sessionID, key string, value domain.Value, actor string) (domain.AuditEntry, error)
	ApplyString(ctx context.Context, sessionID, key, raw, actor string) (domain.AuditEntry, error)
	ResetToDefaults(ctx context.Context, sessionID, actor string) (domain.AuditEntry, error)
	Snapshot(ctx context.Context, sessionID string) (domain.Snapshot, error)
	Parameters(ctx context.Context, sessionID string) ([]domain.Parameter, error)
	Recent(ctx context.Context, sessionID string, n int) ([]domain.AuditEntry, error)
	Audit(ctx context.Context, sessionID string) ([]domain.AuditEntry, error)
	ExportAudit(ctx context.Context, sessionID string) (string, error)
	Sessions(ctx context.Context) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

var _ ConfigService = (*core.Service)(nil)

// Option customises the router.
type Option func(*options)

type options struct {
	logger         core.Logger
	tracerProvider trace.TracerProvider
	metrics        http.Handler
}

// WithLogger sets the request logger.
func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracerProvider enables otelgin request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *options) { o.metrics = h }
}

// Handlers serves the HTTP surface of a ConfigService.
type Handlers struct {
	svc    ConfigService
	logger core.Logger
}

// NewRouter builds a gin engine serving svc.
func NewRouter(svc ConfigService, opts ...Option) *gin.Engine {
	o := options{logger: nopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if o.tracerProvider != nil {
		router.Use(otelgin.Middleware(ServiceName, otelgin.WithTracerProvider(o.tracerProvider)))
	}
	if o.metrics != nil {
		router.GET("/metrics", gin.WrapH(o.metrics))
	}
	h := &Handlers{svc: svc, logger: o.logger}
	router.GET("/healthz", h.HandleHealth)
	RegisterRoutes(router.Group("/v1"), h)
	return router
}

// RegisterRoutes registers the /v1 session routes on rg.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.GET("/catalog", h.HandleCatalog)
	rg.GET("/sessions", h.HandleListSessions)
	s := rg.Group("/sessions/:id")
	s.GET("/parameters", h.HandleParameters)
	s.GET("/values", h.HandleValues)
	s.PUT("/parameters/:key", h.HandleApply)
	s.POST("/reset", h.HandleReset)
	s.GET("/audit", h.HandleAudit)
	s.POST("/audit/export", h.HandleExport)
	s.DELETE("", h.HandleDeleteSession)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
