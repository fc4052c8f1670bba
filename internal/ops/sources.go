package ops

import (
	"context"
	"strings"
	"time"

	"collator/internal/bus"
	"collator/internal/chaos"
	"collator/internal/mdg"
	"collator/internal/recorder"
	"collator/internal/replay"
	"collator/internal/schema"
	"collator/internal/source"
	"collator/pkg/conn"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Source kinds understood by NewSourceRegistry.
const (
	KindHeartbeat = "heartbeat"
	KindWAL       = "wal"
	KindSim       = "sim"
	KindCSV       = "csv"
	KindJSONL     = "jsonl"
	KindXLSX      = "xlsx"
	KindPostgres  = "postgres"
	KindQueue     = "queue"
)

// SourceDeps are the shared resources source factories draw on. Nil fields
// make the matching kinds fail at build time.
type SourceDeps struct {
	Symbols  *schema.Registry
	Postgres *conn.Pool
	Feed     *bus.Queue
}

// NewSourceRegistry registers every builtin source kind.
func NewSourceRegistry(deps SourceDeps) *source.Registry {
	reg := source.NewRegistry()
	reg.MustRegister(KindHeartbeat, source.HeartbeatFactory)
	reg.MustRegister(KindWAL, walFactory)
	reg.MustRegister(KindSim, deps.simFactory)
	reg.MustRegister(KindCSV, fileFactory(func(cfg replay.FileConfig) (source.Source, error) { return replay.NewCSV(cfg) }))
	reg.MustRegister(KindJSONL, fileFactory(func(cfg replay.FileConfig) (source.Source, error) { return replay.NewJSONL(cfg) }))
	reg.MustRegister(KindXLSX, fileFactory(func(cfg replay.FileConfig) (source.Source, error) { return replay.NewXLSX(cfg) }))
	reg.MustRegister(KindPostgres, deps.postgresFactory)
	reg.MustRegister(KindQueue, deps.queueFactory)
	return reg
}

// BuildSources builds the declared sources in order and wraps those named by
// a chaos entry. A chaos entry naming no source is an error.
func BuildSources(ctx context.Context, reg *source.Registry, sources []source.Config, faults []ChaosConfig) ([]source.Source, error) {
	built, err := reg.BuildAll(ctx, sources)
	if err != nil {
		return nil, err
	}

	for _, fault := range faults {
		found := false
		for i, cfg := range sources {
			if cfg.Label() != fault.Source {
				continue
			}
			wrapped, err := chaos.Wrap(built[i], cfg.Label(), fault.Config)
			if err != nil {
				return nil, errors.Wrapf(err, "chaos on %s", fault.Source)
			}
			logs.Warnf("ops: chaos enabled on %s, drop %.2f dup %.2f fail after %d",
				fault.Source, fault.DropRate, fault.DuplicateRate, fault.FailAfter)
			built[i] = wrapped
			found = true
		}
		if !found {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "chaos source not found: %s", fault.Source)
		}
	}
	return built, nil
}

func walFactory(_ context.Context, cfg source.Config) (source.Source, error) {
	return recorder.NewReplay(recorder.ReplayConfig{
		Name:           cfg.Name,
		Dir:            cfg.Dir,
		FilePrefix:     cfg.Prefix,
		UseRecvTime:    cfg.UseRecvTime,
		SkipChecksum:   cfg.SkipChecksum,
		MaxPayloadSize: cfg.MaxPayloadSize,
	})
}

func fileFactory(open func(replay.FileConfig) (source.Source, error)) source.Factory {
	return func(_ context.Context, cfg source.Config) (source.Source, error) {
		return open(replay.FileConfig{
			Name:  cfg.Name,
			Path:  cfg.Path,
			Sheet: cfg.Sheet,
			Columns: replay.Columns{
				Time:   cfg.TimeColumn,
				Layout: cfg.TimeLayout,
				Symbol: cfg.Symbol,
			},
		})
	}
}

func (d SourceDeps) simFactory(_ context.Context, cfg source.Config) (source.Source, error) {
	var symbols []string
	for _, name := range strings.Split(cfg.Symbol, ",") {
		if name = strings.TrimSpace(name); name != "" {
			symbols = append(symbols, name)
		}
	}
	return mdg.NewGenerator(d.Symbols, mdg.GeneratorConfig{
		Name:     cfg.Name,
		Symbols:  symbols,
		Start:    cfg.Start.UTC(),
		Interval: time.Duration(cfg.IntervalMillis) * time.Millisecond,
		Count:    cfg.Count,
	})
}

func (d SourceDeps) postgresFactory(ctx context.Context, cfg source.Config) (source.Source, error) {
	db, err := d.Postgres.Get(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return replay.NewPostgres(ctx, db, replay.TableConfig{
		Name:       cfg.Name,
		Table:      cfg.Table,
		TimeColumn: cfg.TimeColumn,
		Symbol:     cfg.Symbol,
		From:       cfg.Start,
		To:         cfg.End,
	})
}

func (d SourceDeps) queueFactory(ctx context.Context, _ source.Config) (source.Source, error) {
	if d.Feed == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "feed queue")
	}
	return d.Feed.Source(ctx), nil
}
