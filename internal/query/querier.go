// Package query runs natural-language questions against the recorded
// screen context, either on an interval with callbacks or one-shot.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"inframe/internal/llm"
)

var ErrUnknownQuery = errors.New("query: unknown query id")

const answerPrompt = `You are monitoring a screen recording context document.
Answer the question using only that context.
Respond as JSON: {"answer": "<short answer>", "confidence": <0.0-1.0>}.`

// ContextSource provides the current integrated screen context.
type ContextSource interface {
	CurrentContext() string
}

// Result is delivered to callbacks and returned by Ask.
type Result struct {
	QueryID    string
	Question   string
	Answer     string
	Confidence float64
	Err        error
	At         time.Time
}

// Callback receives results from a periodic query.
type Callback func(Result)

// Spec describes a periodic query.
type Spec struct {
	Prompt   string
	Interval time.Duration
	Callback Callback
}

// Stats aggregates query outcomes across the querier.
type Stats struct {
	Total             int64
	Successful        int64
	Failed            int64
	AverageConfidence float64
}

type queryState struct {
	spec    Spec
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Querier schedules queries over a context source.
type Querier struct {
	client llm.Client
	source ContextSource
	broker llm.PermitBroker

	// seen memoizes (query, context-hash) pairs so an unchanged screen
	// is not re-asked every tick.
	seen *expirable.LRU[string, struct{}]

	mu      sync.Mutex
	queries map[string]*queryState

	statsMu   sync.Mutex
	total     int64
	succeeded int64
	failed    int64
	confSum   float64
}

// New builds a querier. broker may be nil.
func New(client llm.Client, source ContextSource, broker llm.PermitBroker) *Querier {
	return &Querier{
		client:  client,
		source:  source,
		broker:  broker,
		seen:    expirable.NewLRU[string, struct{}](512, nil, 5*time.Minute),
		queries: map[string]*queryState{},
	}
}

// Add registers a periodic query and returns its id.
func (q *Querier) Add(spec Spec) string {
	if spec.Interval <= 0 {
		spec.Interval = 3 * time.Second
	}
	id := uuid.NewString()
	q.mu.Lock()
	q.queries[id] = &queryState{spec: spec}
	q.mu.Unlock()
	return id
}

// Start launches the periodic loop for a query. A stopped query can be
// started again.
func (q *Querier) Start(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.queries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuery, id)
	}
	if st.running {
		return nil
	}
	st.running = true
	st.stopCh = make(chan struct{})
	st.doneCh = make(chan struct{})

	// Callbacks run on their own goroutine so a callback may call
	// Stop/Start on the querier without deadlocking the loop.
	resCh := make(chan Result, 16)
	go func() {
		for res := range resCh {
			q.dispatch(st.spec.Callback, res)
		}
	}()
	go q.loop(id, st, resCh)
	return nil
}

// Stop halts a query's loop and waits for it to exit.
func (q *Querier) Stop(id string) error {
	q.mu.Lock()
	st, ok := q.queries[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownQuery, id)
	}
	if !st.running {
		q.mu.Unlock()
		return nil
	}
	st.running = false
	close(st.stopCh)
	done := st.doneCh
	q.mu.Unlock()
	<-done
	return nil
}

// Shutdown stops every running query.
func (q *Querier) Shutdown() {
	q.mu.Lock()
	ids := make([]string, 0, len(q.queries))
	for id, st := range q.queries {
		if st.running {
			ids = append(ids, id)
		}
	}
	q.mu.Unlock()
	for _, id := range ids {
		_ = q.Stop(id)
	}
}

// Ask runs one question against the current context immediately.
func (q *Querier) Ask(ctx context.Context, question string) Result {
	return q.ask(ctx, "", question, q.source.CurrentContext())
}

// AskAll runs the questions concurrently, reserving permits up-front so
// the batch is admitted as a unit.
func (q *Querier) AskAll(ctx context.Context, questions []string) []Result {
	if q.broker != nil {
		lease, err := q.broker.Reserve(ctx, len(questions))
		if err == nil {
			ctx = lease.Context(ctx)
		}
	}
	current := q.source.CurrentContext()
	results := make([]Result, len(questions))
	var wg sync.WaitGroup
	for i, question := range questions {
		wg.Add(1)
		go func(i int, question string) {
			defer wg.Done()
			results[i] = q.ask(ctx, "", question, current)
		}(i, question)
	}
	wg.Wait()
	return results
}

// Stats returns aggregate counters.
func (q *Querier) Stats() Stats {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	avg := 0.0
	if q.succeeded > 0 {
		avg = q.confSum / float64(q.succeeded)
	}
	return Stats{
		Total:             q.total,
		Successful:        q.succeeded,
		Failed:            q.failed,
		AverageConfidence: avg,
	}
}

func (q *Querier) loop(id string, st *queryState, resCh chan<- Result) {
	defer close(resCh)
	defer close(st.doneCh)
	ticker := time.NewTicker(st.spec.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stopCh:
			return
		case <-ticker.C:
			current := q.source.CurrentContext()
			if strings.TrimSpace(current) == "" {
				continue
			}
			key := memoKey(id, current)
			if _, dup := q.seen.Get(key); dup {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), st.spec.Interval*4)
			res := q.ask(ctx, id, st.spec.Prompt, current)
			cancel()

			// Only an answered ask settles this context; failures are
			// retried on the next tick.
			if res.Err == nil && res.Answer != "" {
				q.seen.Add(key, struct{}{})
			}

			select {
			case <-st.stopCh:
				return
			default:
			}
			select {
			case resCh <- res:
			case <-st.stopCh:
				return
			}
		}
	}
}

func (q *Querier) ask(ctx context.Context, id, question, current string) Result {
	res := Result{QueryID: id, Question: question, At: time.Now()}

	ctx = llm.WithStage(ctx, "query")
	raw, err := q.client.GenerateJSON(ctx, answerPrompt, map[string]string{
		"question": question,
		"context":  current,
	})
	if err == nil {
		var out struct {
			Answer     string  `json:"answer"`
			Confidence float64 `json:"confidence"`
		}
		if jerr := json.Unmarshal(raw, &out); jerr != nil {
			err = llm.ErrInvalidJSON
		} else {
			res.Answer = strings.TrimSpace(out.Answer)
			res.Confidence = out.Confidence
		}
	}
	res.Err = err
	q.record(res)
	return res
}

func (q *Querier) record(res Result) {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	q.total++
	if res.Err != nil || res.Answer == "" {
		q.failed++
		return
	}
	q.succeeded++
	q.confSum += res.Confidence
}

func (q *Querier) dispatch(cb Callback, res Result) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("query: callback panicked: %v", r)
		}
	}()
	cb(res)
}

func memoKey(id, current string) string {
	sum := sha256.Sum256([]byte(current))
	return id + ":" + hex.EncodeToString(sum[:8])
}
