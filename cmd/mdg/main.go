package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"collator/internal/mdg"
	"collator/internal/obs"
	"collator/internal/ops"
	"collator/internal/recorder"
	"collator/internal/schema"

	"github.com/google/uuid"
)

func main() {
	walDir := flag.String("wal-dir", "testdata/wal", "WAL directory for market data")
	prefix := flag.String("prefix", "md", "WAL file prefix")
	configPath := flag.String("config", "", "Path to YAML or JSON config (default: one SIM symbol)")
	ticks := flag.Int("ticks", 10, "Number of ticks to generate")
	start := flag.String("start", "", "First tick time, RFC 3339 (default: now)")
	interval := flag.Duration("interval", time.Second, "Time between ticks")
	basePrice := flag.Int64("base-price", 100, "Base price (scaled)")
	baseSize := flag.Int64("base-size", 1, "Base size (scaled)")
	spread := flag.Int64("spread", 1, "Bid/ask spread (scaled)")
	sourceID := flag.Uint("source", 1, "Source ID")
	kind := flag.String("kind", "quote", "Market data kind: quote|trade")
	flag.Parse()

	if *ticks <= 0 {
		log.Fatalf("ticks must be > 0")
	}
	registry, err := loadRegistry(*configPath)
	if err != nil {
		log.Fatalf("registry load failed: %+v", err)
	}
	mdKind, err := parseKind(*kind)
	if err != nil {
		log.Fatalf("invalid kind: %v", err)
	}
	startAt := time.Now().UTC()
	if *start != "" {
		if startAt, err = time.Parse(time.RFC3339, *start); err != nil {
			log.Fatalf("invalid start: %v", err)
		}
	}

	generator, err := mdg.NewGenerator(registry, mdg.GeneratorConfig{
		Kind:      mdKind,
		SourceID:  uint16(*sourceID),
		Start:     startAt,
		Interval:  *interval,
		Count:     *ticks,
		BasePrice: *basePrice,
		BaseSize:  *baseSize,
		Spread:    *spread,
	})
	if err != nil {
		log.Fatalf("generator init failed: %+v", err)
	}

	ctx := context.Background()
	writer, err := recorder.NewWriter(recorder.WriterConfig{Dir: *walDir, FilePrefix: *prefix})
	if err != nil {
		log.Fatalf("wal init failed: %+v", err)
	}
	if err := writer.Start(ctx); err != nil {
		log.Fatalf("wal start failed: %+v", err)
	}

	cursor, err := generator.Cursor()
	if err != nil {
		log.Fatalf("generator cursor failed: %+v", err)
	}
	metrics := obs.NewMetrics()
	traceGen := obs.NewTraceGenerator(uuid.NewString())
	for {
		ok, err := cursor.Next()
		if err != nil {
			log.Fatalf("generate failed: %+v", err)
		}
		if !ok {
			break
		}
		ev := cursor.Current().(schema.Event)
		ev.Header.TraceID = traceGen.Next()
		if err := writer.Append(ctx, ev.Header, ev.Payload); err != nil {
			log.Fatalf("wal append failed: %+v", err)
		}
		metrics.ObserveEmit(generator.Name(), false, ev.Timestamp())
	}

	if err := writer.Close(); err != nil {
		log.Fatalf("wal close failed: %+v", err)
	}
	snapshot := metrics.Snapshot()
	log.Printf("wrote %d ticks to %s, last=%s", snapshot.Emitted, *walDir, snapshot.LastTimestamp.Format(time.RFC3339Nano))
}

func loadRegistry(path string) (*schema.Registry, error) {
	if path == "" {
		return defaultRegistry()
	}
	cfg, err := ops.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg.Symbols, nil
}

func defaultRegistry() (*schema.Registry, error) {
	reg := schema.NewRegistry()
	venueID, err := reg.AddVenue("SIM")
	if err != nil {
		return nil, err
	}
	scale := schema.ScaleSpec{
		PriceScale:    8,
		QuantityScale: 8,
	}
	if _, err := reg.AddSymbol("TEST-USD", venueID, scale); err != nil {
		return nil, err
	}
	return reg, nil
}

func parseKind(kind string) (schema.MarketDataKind, error) {
	switch kind {
	case "quote":
		return schema.MarketDataQuote, nil
	case "trade":
		return schema.MarketDataTrade, nil
	default:
		return schema.MarketDataUnknown, fmt.Errorf("unsupported kind: %s", kind)
	}
}
