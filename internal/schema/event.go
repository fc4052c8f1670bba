package schema

import "time"

// Event is a header plus its encoded payload. It is the datum produced by
// WAL replays, synthetic tick generators and in-process feeds.
type Event struct {
	Header  EventHeader
	Payload []byte

	// UseRecvTime orders the event by TsRecv instead of TsEvent.
	UseRecvTime bool
}

// Timestamp returns the ordering time of the event in UTC.
func (e Event) Timestamp() time.Time {
	ts := e.Header.TsEvent
	if e.UseRecvTime || ts == 0 {
		ts = e.Header.TsRecv
	}
	return time.Unix(0, ts).UTC()
}
