package recorder

import (
	"bufio"
	"encoding/binary"
	"io"

	"collator/internal/schema"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// ReaderOptions controls frame decoding.
type ReaderOptions struct {
	SkipChecksum   bool
	MaxPayloadSize int
}

// Reader decodes WAL frames sequentially.
type Reader struct {
	r       *bufio.Reader
	opts    ReaderOptions
	header  [frameHeaderSize]byte
	trailer [frameChecksumSize]byte
	payload []byte
}

// NewReader wraps r with WAL decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{r: bufio.NewReader(r), opts: opts}
}

// Next returns the next frame. The payload is only valid until the next
// call. A clean end of input returns io.EOF; a partial frame returns
// exception.ErrWALTruncated.
func (r *Reader) Next() (schema.EventHeader, []byte, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return schema.EventHeader{}, nil, io.EOF
		}
		return schema.EventHeader{}, nil, truncated(err)
	}

	header, size, err := parseFrameHeader(r.header[:])
	if err != nil {
		return header, nil, err
	}
	if r.opts.MaxPayloadSize > 0 && size > uint32(r.opts.MaxPayloadSize) {
		return header, nil, errors.Wrapf(exception.ErrWALPayloadTooLarge, "size: %d", size)
	}

	if cap(r.payload) < int(size) {
		r.payload = make([]byte, size)
	}
	r.payload = r.payload[:size]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return header, nil, truncated(err)
	}
	if _, err := io.ReadFull(r.r, r.trailer[:]); err != nil {
		return header, nil, truncated(err)
	}

	if !r.opts.SkipChecksum {
		want := binary.LittleEndian.Uint32(r.trailer[:])
		if got := frameChecksum(r.header[:], r.payload); got != want {
			return header, nil, errors.Wrapf(exception.ErrWALChecksumMismatch, "seq: %d, want: %08x, got: %08x", header.Seq, want, got)
		}
	}
	return header, r.payload, nil
}

func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return exception.ErrWALTruncated
	}
	return err
}
