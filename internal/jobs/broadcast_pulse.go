package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

// PulseBroadcaster is a Broadcaster backed by Redis-backed Pulse streams,
// one stream per job id, so job events fan out to subscribers connected to
// any process sharing the same Redis instance. This is the distributed
// counterpart to channelBroadcaster: a single researchmcp deployment can run
// multiple server processes behind a load balancer and still let a client
// subscribe to /jobs/{id}/events on a different process than the one that
// claimed the job. Adapted from the pulse client wrapper in
// features/stream/pulse/clients/pulse/client.go and the multi-node stream
// fan-out pattern in registry/result_stream.go.
type PulseBroadcaster struct {
	redis *redis.Client

	mu      sync.Mutex
	streams map[string]streaming.Stream
}

// NewPulseBroadcaster builds a PulseBroadcaster over an existing Redis client.
func NewPulseBroadcaster(rdb *redis.Client) *PulseBroadcaster {
	return &PulseBroadcaster{redis: rdb, streams: make(map[string]streaming.Stream)}
}

func (b *PulseBroadcaster) streamFor(jobID string) (streaming.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.streams[jobID]; ok {
		return s, nil
	}
	s, err := streaming.NewStream(pulseStreamName(jobID), b.redis, streamopts.WithStreamMaxLen(2000))
	if err != nil {
		return nil, fmt.Errorf("open pulse stream for job %s: %w", jobID, err)
	}
	b.streams[jobID] = s
	return s, nil
}

func pulseStreamName(jobID string) string {
	return "researchmcp:job-events:" + jobID
}

// Publish serializes ev and appends it to the job's Pulse stream. Errors are
// swallowed: event delivery to live subscribers is best-effort, the
// authoritative record is the job_events table (store.AppendEvent), which
// every caller of Publish writes to first.
func (b *PulseBroadcaster) Publish(jobID string, ev store.JobEvent) {
	s, err := b.streamFor(jobID)
	if err != nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = s.Add(context.Background(), string(ev.EventType), payload)
}

// Subscribe opens a Pulse sink (consumer group) on the job's stream and
// relays decoded events into a channel until ctx is canceled.
func (b *PulseBroadcaster) Subscribe(ctx context.Context, jobID string) (Subscription, error) {
	s, err := b.streamFor(jobID)
	if err != nil {
		return nil, err
	}
	sinkName := fmt.Sprintf("sub-%p", ctx)
	sink, err := s.NewSink(ctx, sinkName)
	if err != nil {
		return nil, fmt.Errorf("open pulse sink for job %s: %w", jobID, err)
	}
	ch := make(chan store.JobEvent, 64)
	sub := &pulseSub{ch: ch, sink: sink}
	go sub.pump(ctx)
	return sub, nil
}

// Close is a no-op: the underlying Redis connection and pulse streams are
// owned by the caller that constructed PulseBroadcaster.
func (b *PulseBroadcaster) Close() error { return nil }

type pulseSub struct {
	ch     chan store.JobEvent
	sink   streaming.Sink
	closed bool
	mu     sync.Mutex
}

func (s *pulseSub) pump(ctx context.Context) {
	defer close(s.ch)
	defer s.sink.Close(context.Background())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.sink.Subscribe():
			if !ok {
				return
			}
			var je store.JobEvent
			if err := json.Unmarshal(ev.Payload, &je); err != nil {
				continue
			}
			_ = s.sink.Ack(ctx, ev)
			select {
			case s.ch <- je:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *pulseSub) C() <-chan store.JobEvent { return s.ch }

func (s *pulseSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.sink.Close(context.Background())
	return nil
}
