package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"collator/internal/schema"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// Fixed payload sizes. Bars carry JSON and have no fixed size.
const (
	MarketDataPayloadSize = 56
	HeartbeatPayloadSize  = 8
)

// fields walks a fixed-size little-endian payload one field at a time.
type fields struct {
	buf []byte
	off int
}

func newFields(dst []byte, size int) *fields {
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	return &fields{buf: dst[:size]}
}

func readFields(src []byte, size int, eventType schema.EventType) (*fields, error) {
	if len(src) < size {
		return nil, errors.Wrapf(exception.ErrMalformedPayload, "%s payload: %d bytes, want %d", eventType, len(src), size)
	}
	return &fields{buf: src[:size]}, nil
}

func (f *fields) putU16(v uint16) {
	binary.LittleEndian.PutUint16(f.buf[f.off:], v)
	f.off += 2
}

func (f *fields) putU32(v uint32) {
	binary.LittleEndian.PutUint32(f.buf[f.off:], v)
	f.off += 4
}

func (f *fields) putI64(v int64) {
	binary.LittleEndian.PutUint64(f.buf[f.off:], uint64(v))
	f.off += 8
}

func (f *fields) u16() uint16 {
	v := binary.LittleEndian.Uint16(f.buf[f.off:])
	f.off += 2
	return v
}

func (f *fields) u32() uint32 {
	v := binary.LittleEndian.Uint32(f.buf[f.off:])
	f.off += 4
	return v
}

func (f *fields) i64() int64 {
	v := int64(binary.LittleEndian.Uint64(f.buf[f.off:]))
	f.off += 8
	return v
}

// EncodeMarketData writes symbol, kind, flags and then the last, bid and
// ask levels as price/size pairs. dst is reused when large enough.
func EncodeMarketData(dst []byte, md schema.MarketData) []byte {
	f := newFields(dst, MarketDataPayloadSize)
	f.putU32(md.SymbolID)
	f.putU16(uint16(md.Kind))
	f.putU16(md.Flags)
	f.putI64(int64(md.Price))
	f.putI64(int64(md.Size))
	f.putI64(int64(md.BidPrice))
	f.putI64(int64(md.BidSize))
	f.putI64(int64(md.AskPrice))
	f.putI64(int64(md.AskSize))
	return f.buf
}

// DecodeMarketData rejects short payloads and unknown kinds.
func DecodeMarketData(src []byte) (schema.MarketData, error) {
	f, err := readFields(src, MarketDataPayloadSize, schema.EventMarketData)
	if err != nil {
		return schema.MarketData{}, err
	}
	md := schema.MarketData{SymbolID: f.u32(), Kind: schema.MarketDataKind(f.u16()), Flags: f.u16()}
	if md.Kind > schema.MarketDataQuote {
		return schema.MarketData{}, errors.Wrapf(exception.ErrMalformedPayload, "market data kind %d", md.Kind)
	}
	md.Price = schema.Price(f.i64())
	md.Size = schema.Quantity(f.i64())
	md.BidPrice = schema.Price(f.i64())
	md.BidSize = schema.Quantity(f.i64())
	md.AskPrice = schema.Price(f.i64())
	md.AskSize = schema.Quantity(f.i64())
	return md, nil
}

// EncodeHeartbeat stores the beat spacing in nanoseconds.
func EncodeHeartbeat(dst []byte, spacing time.Duration) []byte {
	f := newFields(dst, HeartbeatPayloadSize)
	f.putI64(int64(spacing))
	return f.buf
}

func DecodeHeartbeat(src []byte) (time.Duration, error) {
	f, err := readFields(src, HeartbeatPayloadSize, schema.EventHeartbeat)
	if err != nil {
		return 0, err
	}
	spacing := time.Duration(f.i64())
	if spacing <= 0 {
		return 0, errors.Wrapf(exception.ErrMalformedPayload, "heartbeat spacing %s", spacing)
	}
	return spacing, nil
}

// DecodePayload decodes ev.Payload by its header type into a
// schema.MarketData, a heartbeat spacing or the raw bar JSON.
func DecodePayload(ev schema.Event) (any, error) {
	switch ev.Header.Type {
	case schema.EventMarketData:
		return DecodeMarketData(ev.Payload)
	case schema.EventHeartbeat:
		return DecodeHeartbeat(ev.Payload)
	case schema.EventBar:
		if !json.Valid(ev.Payload) {
			return nil, errors.Wrap(exception.ErrMalformedPayload, "bar payload is not json")
		}
		return json.RawMessage(ev.Payload), nil
	default:
		return nil, errors.Wrapf(exception.ErrTypeUnsupported, "event type %s", ev.Header.Type)
	}
}

// Describe renders an event and its decoded payload on one line.
func Describe(ev schema.Event) string {
	decoded, err := DecodePayload(ev)
	if err != nil {
		return fmt.Sprintf("%s seq=%d len=%d err=%v", ev.Header.Type, ev.Header.Seq, len(ev.Payload), err)
	}
	switch v := decoded.(type) {
	case schema.MarketData:
		return fmt.Sprintf("md seq=%d symbol=%d kind=%d price=%d size=%d bid=%d/%d ask=%d/%d",
			ev.Header.Seq, v.SymbolID, v.Kind, v.Price, v.Size, v.BidPrice, v.BidSize, v.AskPrice, v.AskSize)
	case time.Duration:
		return fmt.Sprintf("beat seq=%d spacing=%s", ev.Header.Seq, v)
	default:
		return fmt.Sprintf("bar seq=%d %s", ev.Header.Seq, v)
	}
}
