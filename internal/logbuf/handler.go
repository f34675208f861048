package logbuf

import (
	"context"
	"log/slog"
	"time"
)

// Handler records every slog record into a Buffer and forwards the records
// the inner handler accepts. The "component" attribute becomes
// Entry.Component. Grouped attributes are flattened to dotted keys.
type Handler struct {
	inner     slog.Handler
	buf       *Buffer
	component string
	prefix    string
	attrs     map[string]any
}

// NewHandler creates a handler that writes to both buf and inner.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

// Enabled is true at every level; the inner level applies only to
// forwarding.
func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Time:      r.Time,
		Level:     r.Level.String(),
		Component: h.component,
		Message:   r.Message,
	}
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		if c, ok := componentOf(h.prefix, a); ok {
			e.Component = c
			return true
		}
		flatten(attrs, h.prefix, a)
		return true
	})
	if len(attrs) > 0 {
		e.Attrs = attrs
	}
	h.buf.Write(e)

	if !h.inner.Enabled(ctx, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *Handler) WithAttrs(as []slog.Attr) slog.Handler {
	next := h.clone()
	next.inner = h.inner.WithAttrs(as)
	for _, a := range as {
		if c, ok := componentOf(h.prefix, a); ok {
			next.component = c
			continue
		}
		flatten(next.attrs, h.prefix, a)
	}
	return next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.inner = h.inner.WithGroup(name)
	next.prefix = h.prefix + name + "."
	return next
}

func (h *Handler) clone() *Handler {
	attrs := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &Handler{inner: h.inner, buf: h.buf, component: h.component, prefix: h.prefix, attrs: attrs}
}

// componentOf reports a top-level "component" string attribute.
func componentOf(prefix string, a slog.Attr) (string, bool) {
	if prefix != "" || a.Key != "component" {
		return "", false
	}
	v := a.Value.Resolve()
	if v.Kind() != slog.KindString {
		return "", false
	}
	return v.String(), true
}

func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			flatten(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[prefix+a.Key] = jsonValue(v)
}

// jsonValue converts v to something that encodes usefully as JSON. Errors
// and durations would otherwise encode as {} and nanoseconds.
func jsonValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	}
	raw := v.Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}
