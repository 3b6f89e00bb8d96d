// Package broker is the at-least-once delivery channel between task
// producers (API and webhook handlers) and the worker pool. Tasks travel
// as JSON envelopes on a single NSQ topic; workers consume through a
// shared channel so each envelope is handed to one worker at a time.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nsqio/go-nsq"

	"github.com/triagent/triagent/internal/task"
	"github.com/triagent/triagent/internal/tracing"
)

// Publisher enqueues task envelopes for asynchronous execution.
type Publisher interface {
	Publish(ctx context.Context, env *task.Envelope) error
	Ping() error
	Stop()
}

// NSQPublisher publishes envelopes to an NSQ topic.
type NSQPublisher struct {
	prod  *nsq.Producer
	topic string
}

// NewNSQPublisher connects a producer to nsqd and pings it once so a dead
// broker is caught at startup rather than on first enqueue.
func NewNSQPublisher(nsqdTCPAddr, topic string) (*NSQPublisher, error) {
	prod, err := nsq.NewProducer(nsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer: %w", err)
	}
	if err := prod.Ping(); err != nil {
		prod.Stop()
		return nil, fmt.Errorf("nsq ping: %w", err)
	}
	return &NSQPublisher{prod: prod, topic: topic}, nil
}

// Publish marshals the envelope and publishes it. Trace context is carried
// inside the envelope so workers can continue the span across the queue.
func (p *NSQPublisher) Publish(ctx context.Context, env *task.Envelope) error {
	if env.TraceHeaders == nil {
		env.TraceHeaders = tracing.PropagateTraceToNSQ(ctx)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := p.prod.Publish(p.topic, b); err != nil {
		return fmt.Errorf("nsq publish: %w", err)
	}
	return nil
}

// Ping verifies the nsqd connection is alive.
func (p *NSQPublisher) Ping() error {
	return p.prod.Ping()
}

// Stop flushes and shuts down the producer.
func (p *NSQPublisher) Stop() {
	p.prod.Stop()
}

// MemPublisher collects envelopes in memory. Used in tests and by the
// handlers' unit coverage; it is not durable.
type MemPublisher struct {
	mu        sync.Mutex
	published []*task.Envelope

	// Err, when set, is returned from Publish to simulate a broker outage.
	Err error
}

// NewMemPublisher returns an empty in-memory publisher.
func NewMemPublisher() *MemPublisher {
	return &MemPublisher{}
}

func (p *MemPublisher) Publish(_ context.Context, env *task.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	cp := *env
	p.published = append(p.published, &cp)
	return nil
}

func (p *MemPublisher) Ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Err
}

func (p *MemPublisher) Stop() {}

// Published returns a snapshot of everything published so far.
func (p *MemPublisher) Published() []*task.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*task.Envelope, len(p.published))
	copy(out, p.published)
	return out
}
