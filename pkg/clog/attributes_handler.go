package clog

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// leadingKeys open every decorated record, so lines about one board or one
// user line up when read together.
var leadingKeys = []string{BoardAttributeKey, UserAttributeKey}

// Resolver reads an attribute straight from a context, for records logged
// outside a request's attribute bag.
type Resolver func(ctx context.Context) (string, bool)

// AttributesHandler decorates records with the board and user a record is
// about, followed by the rest of the attribute bag carried by the record's
// context (see ContextWithSlog).
type AttributesHandler struct {
	handler   slog.Handler
	resolvers map[string]Resolver
}

type HandlerOption func(*AttributesHandler)

// WithResolver fills key from r whenever the context's bag lacks it.
func WithResolver(key string, r Resolver) HandlerOption {
	return func(h *AttributesHandler) {
		h.resolvers[key] = r
	}
}

func NewAttributesHandler(handler slog.Handler, opts ...HandlerOption) *AttributesHandler {
	h := &AttributesHandler{
		handler:   handler,
		resolvers: make(map[string]Resolver),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AttributesHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *AttributesHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := GetAttributes(ctx)
	for key, resolve := range h.resolvers {
		if _, ok := attrs[key]; ok {
			continue
		}
		if v, ok := resolve(ctx); ok && v != "" {
			if attrs == nil {
				attrs = make(map[string]any)
			}
			attrs[key] = v
		}
	}
	if len(attrs) > 0 {
		record.AddAttrs(toAttrs(attrs)...)
	}
	return h.handler.Handle(ctx, record)
}

func (h *AttributesHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AttributesHandler{
		handler:   h.handler.WithAttrs(attrs),
		resolvers: h.resolvers,
	}
}

func (h *AttributesHandler) WithGroup(name string) slog.Handler {
	return &AttributesHandler{
		handler:   h.handler.WithGroup(name),
		resolvers: h.resolvers,
	}
}

// toAttrs consumes m: leading keys first, the rest sorted by key.
func toAttrs(m map[string]any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(m))
	for _, k := range leadingKeys {
		if v, ok := m[k]; ok {
			attrs = append(attrs, slog.Any(k, v))
			delete(m, k)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		attrs = append(attrs, slog.Any(k, m[k]))
	}
	return attrs
}
