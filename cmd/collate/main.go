package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"collator/internal/bus"
	"collator/internal/codec"
	"collator/internal/collate"
	"collator/internal/mdg"
	"collator/internal/obs"
	"collator/internal/ops"
	"collator/internal/pacer"
	"collator/internal/recorder"
	"collator/internal/replay"
	"collator/internal/schema"
	"collator/internal/source"
	"collator/pkg/conn"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFeedCapacity = 4096
	recordSourceID      = 1
)

var errLimitReached = errors.New("datum limit reached")

type options struct {
	configPath string
	recordDir  string
	limit      int
	stdin      bool
	quiet      bool
	pyroscope  string
}

func main() {
	if err := run(); err != nil {
		logs.Errorf("collate: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var opt options
	flag.StringVar(&opt.configPath, "config", "collate.yaml", "Path to YAML or JSON config")
	flag.StringVar(&opt.recordDir, "record", "", "Record merged output to this WAL directory")
	flag.IntVar(&opt.limit, "limit", 0, "Stop after this many datums (0=config or unlimited)")
	flag.BoolVar(&opt.stdin, "stdin", false, "Feed JSON ticks from stdin into queue sources")
	flag.BoolVar(&opt.quiet, "quiet", false, "Do not print datums")
	flag.StringVar(&opt.pyroscope, "pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	cfg, err := ops.Load(opt.configPath)
	if err != nil {
		return err
	}
	if opt.recordDir != "" {
		cfg.Record.Dir = opt.recordDir
	}
	if opt.limit > 0 {
		cfg.Collator.Limit = opt.limit
	}

	runID := uuid.NewString()
	logs.Infof("collate: run %s, config %s, %d sources", runID, opt.configPath, len(cfg.Sources))

	if opt.pyroscope != "" {
		stop, err := startProfiler(opt.pyroscope, runID)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Infof("collate: shutdown requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	capacity := cfg.Collator.FeedCapacity
	if capacity == 0 {
		capacity = defaultFeedCapacity
	}
	feed := bus.NewQueue("stdin", capacity)
	if opt.stdin {
		go pumpTicks(os.Stdin, feed, mdg.NewNormalizer(cfg.Symbols))
	} else {
		feed.Close()
	}

	pool := conn.NewPool(cfg.Postgres)
	defer pool.Close()

	registry := ops.NewSourceRegistry(ops.SourceDeps{Symbols: cfg.Symbols, Postgres: pool, Feed: feed})
	sources, err := ops.BuildSources(ctx, registry, cfg.Sources, cfg.Chaos)
	if err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	var exporter *obs.Exporter
	if cfg.Metrics.Addr != "" {
		exporter = obs.NewExporter("collator")
		metrics.WithExporter(exporter)
	}

	collator, err := collate.New(sources, cfg.Collator.EpochSeconds, collate.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer collator.Close()

	pace, err := pacer.New(cfg.Pacing.Speed, cfg.Pacing.MaxGap)
	if err != nil {
		return err
	}

	var writer *recorder.Writer
	if cfg.Record.Enabled() {
		writer, err = recorder.NewWriter(cfg.Record)
		if err != nil {
			return err
		}
		if err := writer.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := writer.Close(); err != nil {
				logs.Errorf("collate: close recorder, err: %+v", err)
			}
		}()
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	handler := &sink{
		out:    out,
		quiet:  opt.quiet,
		pace:   pace,
		writer: writer,
		trace:  obs.NewTraceGenerator(runID),
		limit:  cfg.Collator.Limit,
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()
	if exporter != nil {
		g.Go(func() error {
			return obs.Serve(serveCtx, cfg.Metrics.Addr, cfg.Metrics.Path, exporter.Handler())
		})
	}
	g.Go(func() error {
		defer stopServe()
		err := collator.Run(gctx, func(d source.Datum) error {
			return handler.handle(gctx, d)
		})
		switch {
		case errors.Is(err, errLimitReached):
			return nil
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return nil
		}
		return err
	})
	err = g.Wait()

	snap := metrics.Snapshot()
	logs.Infof("collate: run %s done, emitted: %d, heartbeats: %d, exhausted: %d/%d, advance: %+v",
		runID, snap.Emitted, snap.Heartbeats, collator.Exhausted(), collator.Sources(), snap.AdvanceLatency)
	return err
}

type sink struct {
	out    io.Writer
	quiet  bool
	pace   *pacer.Pacer
	writer *recorder.Writer
	trace  *obs.TraceGenerator
	limit  int
	seq    uint64
}

func (s *sink) handle(ctx context.Context, d source.Datum) error {
	if err := s.pace.Wait(ctx, d.Timestamp()); err != nil {
		return err
	}
	s.seq++

	if s.writer != nil {
		header, payload, err := codec.EncodeDatum(d, recordSourceID, s.seq)
		if err != nil {
			return err
		}
		header.TraceID = s.trace.Next()
		if err := s.writer.Append(ctx, header, payload); err != nil {
			return err
		}
	}
	if !s.quiet {
		fmt.Fprintf(s.out, "%06d %s %s\n", s.seq, d.Timestamp().UTC().Format("2006-01-02T15:04:05.000000000Z"), describe(d))
	}
	if s.limit > 0 && s.seq >= uint64(s.limit) {
		return errLimitReached
	}
	return nil
}

func describe(d source.Datum) string {
	switch v := d.(type) {
	case source.Beat:
		return fmt.Sprintf("beat spacing=%s", v.Spacing)
	case schema.Event:
		return codec.Describe(v)
	case replay.Bar:
		payload, err := v.MarshalPayload()
		if err != nil {
			return v.String()
		}
		return "bar " + string(payload)
	default:
		return fmt.Sprintf("%T", d)
	}
}

// pumpTicks publishes one normalized tick per input line until EOF, then
// closes the feed so queue sources end.
func pumpTicks(r io.Reader, feed *bus.Queue, normalizer *mdg.Normalizer) {
	defer feed.Close()

	scanner := bufio.NewScanner(r)
	var seq uint64
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		tick, err := mdg.ParseRawTick(line)
		if err != nil {
			logs.Warnf("collate: skip tick, err: %+v", err)
			continue
		}
		seq++
		ev, err := normalizer.Normalize(seq, tick)
		if err != nil {
			logs.Warnf("collate: skip tick, err: %+v", err)
			continue
		}
		if err := feed.TryPublish(ev); err != nil {
			logs.Warnf("collate: drop tick %d, err: %+v", seq, err)
		}
	}
	if err := scanner.Err(); err != nil {
		logs.Errorf("collate: read stdin, err: %+v", err)
	}
}
