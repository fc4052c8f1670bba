package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"collator/internal/codec"
	"collator/internal/pacer"
	"collator/internal/recorder"
	"collator/internal/schema"
)

func main() {
	dir := flag.String("dir", "testdata/wal", "WAL directory")
	prefix := flag.String("prefix", "", "WAL file prefix (default: collate)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "Order and pace by receive timestamp")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Decode known payload types")
	flag.Parse()

	src, err := recorder.NewReplay(recorder.ReplayConfig{
		Dir:            *dir,
		FilePrefix:     *prefix,
		UseRecvTime:    *useRecv,
		SkipChecksum:   *noChecksum,
		MaxPayloadSize: *maxPayload,
	})
	if err != nil {
		log.Fatalf("replay init failed: %+v", err)
	}
	pace, err := pacer.New(*speed, 0)
	if err != nil {
		log.Fatalf("pacer init failed: %+v", err)
	}

	cursor, err := src.Cursor()
	if err != nil {
		log.Fatalf("replay open failed: %+v", err)
	}
	defer cursor.(io.Closer).Close()

	ctx := context.Background()
	var index int
	for {
		ok, err := cursor.Next()
		if err != nil {
			log.Fatalf("replay failed after %d frames: %+v", index, err)
		}
		if !ok {
			break
		}
		ev := cursor.Current().(schema.Event)
		if err := pace.Wait(ctx, ev.Timestamp()); err != nil {
			log.Fatalf("pacing failed: %+v", err)
		}
		index++
		fmt.Printf("%06d seq=%d type=%s ts=%s len=%d\n", index, ev.Header.Seq, ev.Header.Type, ev.Timestamp().Format(time.RFC3339Nano), len(ev.Payload))
		if *decode {
			printDecoded(ev)
		}
	}
}

func printDecoded(ev schema.Event) {
	fmt.Printf("  %s\n", codec.Describe(ev))
}
