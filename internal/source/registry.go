package source

import (
	"context"
	"sort"
	"strings"

	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// Factory builds a source from its declaration.
type Factory func(ctx context.Context, cfg Config) (Source, error)

// Registry maps a source kind to its factory. It is populated once at
// startup and read afterwards.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds kind to factory.
func (r *Registry) Register(kind string, factory Factory) error {
	kind = normalizeKind(kind)
	if kind == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "empty source kind")
	}
	if factory == nil {
		return errors.Wrapf(exception.ErrNilInstance, "factory for kind %s", kind)
	}
	if _, ok := r.factories[kind]; ok {
		return errors.Wrapf(exception.ErrDuplicateKind, "kind: %s", kind)
	}
	r.factories[kind] = factory
	return nil
}

// MustRegister is Register that panics, for init-time wiring.
func (r *Registry) MustRegister(kind string, factory Factory) {
	if err := r.Register(kind, factory); err != nil {
		panic(err)
	}
}

// Build creates the source declared by cfg.
func (r *Registry) Build(ctx context.Context, cfg Config) (Source, error) {
	kind := normalizeKind(cfg.Kind)
	factory, ok := r.factories[kind]
	if !ok {
		return nil, errors.Wrapf(exception.ErrUnknownSourceKind, "kind: %s, known: %s", cfg.Kind, strings.Join(r.Kinds(), ","))
	}
	src, err := factory(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s source %s", kind, cfg.Label())
	}
	return src, nil
}

// BuildAll builds every declaration in order.
func (r *Registry) BuildAll(ctx context.Context, cfgs []Config) ([]Source, error) {
	sources := make([]Source, 0, len(cfgs))
	for _, cfg := range cfgs {
		src, err := r.Build(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// HeartbeatFactory builds a heartbeat from Start, End and SpacingSeconds.
// Start is required, a zero End means unbounded.
func HeartbeatFactory(_ context.Context, cfg Config) (Source, error) {
	if cfg.Start.IsZero() {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "heartbeat %s: start is required", cfg.Label())
	}
	end := cfg.End
	if end.IsZero() {
		end = Unbounded
	}
	hb, err := NewHeartbeat(cfg.Start.UTC(), end.UTC(), cfg.SpacingSeconds)
	if err != nil {
		return nil, err
	}
	return hb.WithName(cfg.Name), nil
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
