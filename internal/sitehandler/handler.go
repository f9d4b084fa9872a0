package sitehandler

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/log"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/maintenance"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/tenant"
)

const (
	OutcomeServed            = "served"
	OutcomeMissing           = "missing"
	OutcomeMaintenanceGlobal = "maintenance_global"
	OutcomeMaintenanceTenant = "maintenance_tenant"
)

const fallbackContentType = "application/octet-stream"

// Handler serves every request on the tenant listener: resolve the tenant,
// check maintenance, resolve the file, respond.
type Handler struct {
	opts   Options
	tracer trace.Tracer
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{
		opts:   opts,
		tracer: opts.TracerProvider.Tracer("vhostd/sitehandler"),
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	name := h.tenantFor(ctx, r)

	if resp, ok := h.checkMaintenance(ctx, name); ok {
		for k, v := range resp.Header {
			w.Header()[k] = v
		}
		w.WriteHeader(resp.Status)
		_, _ = w.Write(resp.Body)

		outcome := OutcomeMaintenanceTenant
		if resp.Mode == maintenance.ModeGlobal {
			outcome = OutcomeMaintenanceGlobal
		}
		h.done(ctx, name, outcome)
		return
	}

	file := h.resolve(ctx, name, r.URL.Path)

	body, ok := h.read(ctx, name, file)
	if !ok {
		// Unreadable or absent: 200 with nothing written, so net/http adds
		// no Content-Type and no body.
		h.done(ctx, name, OutcomeMissing)
		return
	}

	w.Header().Set("Content-Type", contentType(file))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	h.done(ctx, name, OutcomeServed)
}

func (h *Handler) tenantFor(ctx context.Context, r *http.Request) string {
	_, span := h.stage(ctx, "tenant.resolve")
	defer span.End()

	name, ok := tenant.FromContext(ctx)
	if !ok {
		name = tenant.FromHost(r.Host)
	}
	span.SetAttributes(attribute.String("app.tenant", name))
	return name
}

func (h *Handler) checkMaintenance(ctx context.Context, name string) (*maintenance.Response, bool) {
	_, span := h.stage(ctx, "maintenance.check")
	defer span.End()

	resp, ok := h.opts.Maintenance.Evaluate(name)
	mode := maintenance.ModeNone
	if ok {
		mode = resp.Mode
	}
	span.SetAttributes(attribute.String("maintenance.mode", string(mode)))
	return resp, ok
}

func (h *Handler) resolve(ctx context.Context, name, urlPath string) string {
	_, span := h.stage(ctx, "path.resolve")
	defer span.End()

	file := h.opts.Root.Resolve(name, urlPath)
	span.SetAttributes(attribute.String("file.path", file))
	return file
}

func (h *Handler) read(ctx context.Context, name, file string) ([]byte, bool) {
	ctx, span := h.stage(ctx, "file.read")
	defer span.End()

	L := log.FromContext(ctx)

	if h.opts.ConfinePaths && !h.opts.Root.Confined(name, file) {
		L.Debug(ctx, "path outside tenant directory", "tenant", name, "file.path", file)
		span.SetAttributes(attribute.Bool("file.confined", false))
		return nil, false
	}

	body, err := h.opts.Root.FS().ReadFile(file)
	if err != nil {
		L.Debug(ctx, "file not readable", "tenant", name, "file.path", file, "error", err.Error())
		span.SetAttributes(attribute.Bool("file.found", false))
		return nil, false
	}
	span.SetAttributes(
		attribute.Bool("file.found", true),
		attribute.Int("file.size", len(body)),
	)
	return body, true
}

func (h *Handler) done(ctx context.Context, name, outcome string) {
	if h.opts.Outcomes != nil {
		h.opts.Outcomes.IncSiteResponse(outcome)
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.String("app.tenant", name),
			attribute.String("app.outcome", outcome),
		)
	}
	log.FromContext(ctx).Debug(ctx, "site response", "tenant", name, "outcome", outcome)
}

// stage starts a child span only when the request span is recording.
func (h *Handler) stage(ctx context.Context, name string) (context.Context, trace.Span) {
	if !trace.SpanFromContext(ctx).IsRecording() {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return h.tracer.Start(ctx, name)
}

// contentType guesses from the file extension only.
func contentType(file string) string {
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}
	return fallbackContentType
}
