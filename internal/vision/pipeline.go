// Package vision turns captured clips into textual descriptions by
// asking the model what is on screen.
package vision

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"inframe/internal/capture"
	"inframe/internal/llm"
)

// DefaultTask is used when a recorder does not set its own visual task.
const DefaultTask = "Describe the screen content focusing on application names, file names, UI elements, and text content."

// Description is the model's account of one clip.
type Description struct {
	ClipID string
	Seq    int
	Text   string
	At     time.Time
}

// Status reports pipeline throughput.
type Status struct {
	Running   bool
	Processed int64
	Failed    int64
}

// Pipeline consumes clips and emits descriptions until the clip channel
// closes or Stop is called.
type Pipeline struct {
	client llm.Client
	task   string
	broker llm.PermitBroker

	out chan Description

	processed int64
	failed    int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// New builds a pipeline. broker may be nil; when set, one permit is
// reserved per clip so recorder priorities share the rate budget.
func New(client llm.Client, task string, broker llm.PermitBroker) *Pipeline {
	if strings.TrimSpace(task) == "" {
		task = DefaultTask
	}
	return &Pipeline{
		client: client,
		task:   task,
		broker: broker,
		out:    make(chan Description, 16),
	}
}

// Descriptions is closed when the pipeline drains and stops.
func (p *Pipeline) Descriptions() <-chan Description { return p.out }

// Start launches the worker over the given clip channel.
func (p *Pipeline) Start(ctx context.Context, clips <-chan capture.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return capture.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.doneCh = make(chan struct{})
	go p.run(ctx, clips)
	return nil
}

// Stop cancels in-flight work and waits for the worker to exit.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	done := p.doneCh
	p.mu.Unlock()
	<-done
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return Status{
		Running:   running,
		Processed: atomic.LoadInt64(&p.processed),
		Failed:    atomic.LoadInt64(&p.failed),
	}
}

func (p *Pipeline) run(ctx context.Context, clips <-chan capture.Clip) {
	defer close(p.doneCh)
	defer close(p.out)
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case clip, ok := <-clips:
			if !ok {
				return
			}
			text, err := p.describe(ctx, clip)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				atomic.AddInt64(&p.failed, 1)
				log.Printf("vision: describe %s: %v", clip.ID, err)
				continue
			}
			atomic.AddInt64(&p.processed, 1)
			d := Description{ClipID: clip.ID, Seq: clip.Seq, Text: text, At: clip.CapturedAt}
			select {
			case p.out <- d:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) describe(ctx context.Context, clip capture.Clip) (string, error) {
	ctx = llm.WithStage(ctx, "vision")
	if p.broker != nil {
		lease, err := p.broker.Reserve(ctx, 1)
		if err != nil {
			return "", err
		}
		ctx = lease.Context(ctx)
	}
	return p.client.DescribeImage(ctx, p.task, clip.MIMEType, clip.Data)
}
