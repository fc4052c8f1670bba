package recorder

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"collator/internal/schema"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

type frameRequest struct {
	header  schema.EventHeader
	payload []byte
}

// Writer appends frames to rotating WAL segments from a buffered queue.
// Append and TryAppend are safe for concurrent use.
type Writer struct {
	cfg  WriterConfig
	ch   chan frameRequest
	done chan struct{}
	wg   sync.WaitGroup

	errMu sync.Mutex
	err   error

	mu      sync.RWMutex
	started bool
	closed  bool

	written atomic.Uint64
}

// NewWriter validates cfg and creates the target directory.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", cfg.Dir)
	}
	return &Writer{
		cfg:  cfg,
		ch:   make(chan frameRequest, cfg.QueueSize),
		done: make(chan struct{}),
	}, nil
}

// Start runs the write loop until Close is called or ctx is done.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return exception.ErrWALClosed
	}
	if w.started {
		return exception.ErrWALAlreadyStarted
	}
	w.started = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(w.done)
		w.loop(ctx)
	}()
	return nil
}

// Close drains the queue, flushes and closes the open segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()

	w.wg.Wait()
	logs.Infof("recorder: closed %s, frames: %d", w.cfg.Dir, w.written.Load())
	return w.Err()
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Written returns the number of frames handed to a segment.
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// Append enqueues a frame, blocking while the queue is full.
func (w *Writer) Append(ctx context.Context, header schema.EventHeader, payload []byte) error {
	return w.enqueue(ctx, header, payload, true)
}

// TryAppend enqueues a frame or fails with exception.ErrWALQueueFull.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	return w.enqueue(context.Background(), header, payload, false)
}

func (w *Writer) enqueue(ctx context.Context, header schema.EventHeader, payload []byte, block bool) error {
	if err := w.Err(); err != nil {
		return err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return errors.Wrapf(exception.ErrWALPayloadTooLarge, "size: %d", len(payload))
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	req := frameRequest{header: header, payload: append([]byte(nil), payload...)}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return exception.ErrWALClosed
	}
	if !w.started {
		return exception.ErrWALNotStarted
	}

	if !block {
		select {
		case w.ch <- req:
			return nil
		default:
			return exception.ErrWALQueueFull
		}
	}
	select {
	case w.ch <- req:
		return nil
	case <-w.done:
		if err := w.Err(); err != nil {
			return err
		}
		return exception.ErrWALClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop(ctx context.Context) {
	var (
		seg   *segment
		segID uint64
		frame []byte
		tick  <-chan time.Time
	)
	if w.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(w.cfg.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		if err := seg.close(true); err != nil {
			w.setErr(err)
		}
	}()

	write := func(req frameRequest) bool {
		frame = appendFrame(frame[:0], req.header, req.payload)
		next, err := w.rotate(seg, &segID, int64(len(frame)))
		if err != nil {
			w.setErr(err)
			return false
		}
		seg = next
		if err := seg.write(frame); err != nil {
			w.setErr(err)
			return false
		}
		w.written.Add(1)
		return true
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case req, ok := <-w.ch:
					if !ok || !write(req) {
						return
					}
				default:
					return
				}
			}
		case req, ok := <-w.ch:
			if !ok || !write(req) {
				return
			}
		case <-tick:
			if err := seg.flush(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) rotate(seg *segment, segID *uint64, next int64) (*segment, error) {
	now := time.Now().UTC()
	if seg != nil {
		full := seg.size+next > w.cfg.SegmentBytes && seg.size > 0
		old := w.cfg.SegmentAge > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentAge
		if !full && !old {
			return seg, nil
		}
		if err := seg.close(w.cfg.SyncOnRotate); err != nil {
			return nil, err
		}
		logs.Debugf("recorder: rotated %s at %d bytes", seg.path, seg.size)
	}
	return openSegment(w.cfg, segID, now)
}

func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
		logs.Errorf("recorder: write failed, err: %+v", err)
	}
}
