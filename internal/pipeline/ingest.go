package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/arrhythmix/internal/source"
)

// DefaultFeedBuffer is the number of payloads queued between a source and
// the windows.
const DefaultFeedBuffer = 256

// Ingester is the source.Sink for a session. Payloads are queued on a
// bounded channel and applied to both windows by Run in arrival order.
// Sources never see backpressure: a full queue drops the payload, valid or
// not, and counts it in Counters.Dropped. At the default buffer this needs
// Run to fall more than ten seconds behind a 20 Hz feed.
type Ingester struct {
	session *Session
	decoder source.Decoder
	feed    chan []byte

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
}

// NewIngester returns an ingester feeding session.
func NewIngester(session *Session, dec source.Decoder, buffer int) *Ingester {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &Ingester{
		session:     session,
		decoder:     dec,
		feed:        make(chan []byte, buffer),
		subscribers: make(map[string]chan string),
	}
}

// Payload queues p without blocking.
func (in *Ingester) Payload(p []byte) {
	select {
	case in.feed <- p:
	default:
		in.session.Shared.MarkDropped()
	}
}

// Status records a source-reported status change.
func (in *Ingester) Status(s source.Status, detail string) {
	in.session.Shared.SetStatus(s, detail)
}

// Run applies queued payloads until ctx is cancelled.
func (in *Ingester) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-in.feed:
			in.Ingest(p)
		}
	}
}

// Ingest applies one payload: the sentinel sets LeadsOff, an undecodable
// payload sets Error, and a valid sample is appended to both windows. It
// reports whether a sample was appended.
func (in *Ingester) Ingest(p []byte) bool {
	in.broadcast(p)

	shared := in.session.Shared
	r, err := in.decoder.Decode(p)
	switch {
	case err != nil:
		shared.MarkDecodeError()
		return false
	case r.LeadsOff:
		shared.MarkLeadsOff()
		return false
	}
	in.session.Display.Append(r.Volts)
	in.session.Inference.Append(r.Volts)
	shared.MarkSample()
	return true
}

// Subscribe returns a channel of raw payload lines for debugging taps.
// Slow subscribers miss lines.
func (in *Ingester) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, 16)
	in.subscriberMu.Lock()
	defer in.subscriberMu.Unlock()
	in.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (in *Ingester) Unsubscribe(id string) {
	in.subscriberMu.Lock()
	defer in.subscriberMu.Unlock()
	if ch, ok := in.subscribers[id]; ok {
		close(ch)
		delete(in.subscribers, id)
	}
}

// closeSubscribers closes every subscriber channel so tails unblock on stop.
func (in *Ingester) closeSubscribers() {
	in.subscriberMu.Lock()
	defer in.subscriberMu.Unlock()
	for id, ch := range in.subscribers {
		close(ch)
		delete(in.subscribers, id)
	}
}

func (in *Ingester) broadcast(p []byte) {
	in.subscriberMu.Lock()
	defer in.subscriberMu.Unlock()
	if len(in.subscribers) == 0 {
		return
	}
	line := string(p)
	for _, ch := range in.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}
