package codec

import (
	"time"

	"collator/internal/schema"
	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// PayloadMarshaler is implemented by datums that know their own event type
// and payload encoding.
type PayloadMarshaler interface {
	EventType() schema.EventType
	MarshalPayload() ([]byte, error)
}

// EncodeDatum turns a merged datum into a WAL record. Events keep their
// header except for Seq, which is replaced to reflect the merged order.
func EncodeDatum(d source.Datum, sourceID uint16, seq uint64) (schema.EventHeader, []byte, error) {
	switch v := d.(type) {
	case schema.Event:
		header := v.Header
		header.Seq = seq
		return header, v.Payload, nil
	case source.Beat:
		ts := v.At.UnixNano()
		header := schema.NewHeader(schema.EventHeartbeat, sourceID, seq, ts, ts)
		return header, EncodeHeartbeat(nil, v.Spacing), nil
	case PayloadMarshaler:
		payload, err := v.MarshalPayload()
		if err != nil {
			return schema.EventHeader{}, nil, errors.Wrap(err, "marshal payload")
		}
		ts := d.Timestamp().UnixNano()
		header := schema.NewHeader(v.EventType(), sourceID, seq, ts, time.Now().UTC().UnixNano())
		return header, payload, nil
	default:
		return schema.EventHeader{}, nil, errors.Wrapf(exception.ErrTypeUnsupported, "datum %T", d)
	}
}
