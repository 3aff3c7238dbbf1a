// Package worker runs a single-writer background task queue (spec §4.10):
// memory embedding, dialectic processing, stage transitions, artifact
// publishing, and deferred enrichment all execute serially through one
// goroutine so the Store never sees concurrent writers. A second goroutine
// enqueues a periodic `stages` task; hook handlers enqueue everything else
// and return immediately, degrading to synchronous processing on timeout.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"engram/internal/consolidator"
	"engram/internal/dialectic"
	"engram/internal/embeddings"
	"engram/internal/enricher"
	"engram/internal/errs"
	"engram/internal/stages"
	"engram/internal/storage"
	"engram/internal/types"
)

// Kind names one of the five enqueueable task endpoints (spec §4.10).
type Kind string

const (
	KindMemory      Kind = "memory"
	KindDialectic   Kind = "dialectic"
	KindStages      Kind = "stages"
	KindSkills      Kind = "skills"
	KindLLMAnalysis Kind = "llm-analysis"
	// kindConsolidate is not one of the spec's five endpoints; it is the
	// Worker-internal task the session-end hook enqueues so consolidation
	// runs on the same single-writer queue as everything else.
	kindConsolidate Kind = "consolidate"
)

// Task is one unit of work on the queue. Only the fields relevant to Kind
// need to be set.
type Task struct {
	Kind        Kind
	MemoryID    string // memory, dialectic
	PatternID   string // skills
	SynthesisID string // skills, llm-analysis
	SessionID   string // consolidate
	EnqueuedAt  time.Time
}

// Config holds the Worker's tunable parameters (spec §4.10, §5).
type Config struct {
	QueueSize      int
	EnqueueTimeout time.Duration
	StageInterval  time.Duration
}

// DefaultConfig matches spec §5's stated defaults: a ~1s enqueue timeout
// and a 5-minute stage-transition cadence.
func DefaultConfig() Config {
	return Config{
		QueueSize:      256,
		EnqueueTimeout: time.Second,
		StageInterval:  5 * time.Minute,
	}
}

// Stats tallies queue activity (spec §4.10: queued, processed, errors,
// last_processed).
type Stats struct {
	Queued        int64
	Processed     int64
	Errors        int64
	LastProcessed time.Time
}

// Worker is the single-writer task queue. Construct with New, wire in the
// pipeline components it drives, then call Start.
type Worker struct {
	store        storage.Storage
	embedder     embeddings.Embedder
	enr          enricher.Enricher
	dialectic    *dialectic.Engine
	stagesPipe   *stages.Pipeline
	consolidator *consolidator.Consolidator
	publisher    dialectic.ArtifactPublisher
	config       Config

	tasks    chan Task
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// New builds a Worker. Any component may be nil; the corresponding task
// kind then becomes a cheap no-op instead of failing the queue.
func New(
	store storage.Storage,
	embedder embeddings.Embedder,
	enr enricher.Enricher,
	engine *dialectic.Engine,
	stagesPipe *stages.Pipeline,
	cons *consolidator.Consolidator,
	publisher dialectic.ArtifactPublisher,
	config Config,
) *Worker {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.EnqueueTimeout <= 0 {
		config.EnqueueTimeout = DefaultConfig().EnqueueTimeout
	}
	if config.StageInterval <= 0 {
		config.StageInterval = DefaultConfig().StageInterval
	}
	return &Worker{
		store:        store,
		embedder:     embedder,
		enr:          enr,
		dialectic:    engine,
		stagesPipe:   stagesPipe,
		consolidator: cons,
		publisher:    publisher,
		config:       config,
		tasks:        make(chan Task, config.QueueSize),
		done:         make(chan struct{}),
	}
}

// Start launches the processing loop and the periodic stage scheduler.
// Both stop when ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(2)
	go w.run(ctx)
	go w.schedule(ctx)
}

// Stop signals both goroutines to exit and waits for the in-flight task,
// if any, to finish. Safe to call multiple times, and safe to call when
// Start was never called.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

// Enqueue places a task on the queue, blocking up to Config.EnqueueTimeout.
// On timeout it returns errs.ErrWorkerUnreachable so the caller can degrade
// to synchronous processing on the hot path (spec §5).
func (w *Worker) Enqueue(ctx context.Context, t Task) error {
	t.EnqueuedAt = time.Now()
	timer := time.NewTimer(w.config.EnqueueTimeout)
	defer timer.Stop()

	select {
	case w.tasks <- t:
		w.mu.Lock()
		w.stats.Queued++
		w.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("worker: enqueue %s: %w", t.Kind, errs.ErrWorkerUnreachable)
	}
}

// EnqueueConsolidation is the session-end hook's entry point; it is kept
// separate from Enqueue's exported Kind set since consolidation is not one
// of spec §4.10's five named endpoints.
func (w *Worker) EnqueueConsolidation(ctx context.Context, sessionID string) error {
	return w.Enqueue(ctx, Task{Kind: kindConsolidate, SessionID: sessionID})
}

// Flush drains every task currently queued, processing each synchronously
// on the calling goroutine (spec §4.10). It does not stop the background
// run loop; callers typically use Flush in tests or at shutdown instead of
// running Start at all.
func (w *Worker) Flush(ctx context.Context) int {
	n := 0
	for {
		select {
		case t := <-w.tasks:
			w.process(ctx, t)
			n++
		default:
			return n
		}
	}
}

// StatsSnapshot returns a copy of the current counters.
func (w *Worker) StatsSnapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case t := <-w.tasks:
			w.process(ctx, t)
		}
	}
}

func (w *Worker) schedule(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.config.StageInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			_ = w.Enqueue(ctx, Task{Kind: KindStages})
		}
	}
}

// process runs exactly one task to completion. It never panics on a
// missing component; it logs nothing itself (callers that want Worker
// activity logged wrap Enqueue/Flush at the call site) and records the
// outcome in stats.
func (w *Worker) process(ctx context.Context, t Task) {
	var err error
	switch t.Kind {
	case KindMemory:
		err = w.processMemory(ctx, t)
	case KindDialectic:
		err = w.processDialectic(ctx, t)
	case KindStages:
		err = w.processStages(ctx)
	case KindSkills:
		err = w.processSkills(ctx, t)
	case KindLLMAnalysis:
		err = w.processLLMAnalysis(ctx, t)
	case kindConsolidate:
		err = w.processConsolidate(t)
	default:
		err = fmt.Errorf("worker: unknown task kind %q", t.Kind)
	}

	w.mu.Lock()
	w.stats.Processed++
	w.stats.LastProcessed = time.Now()
	if err != nil {
		w.stats.Errors++
	}
	w.mu.Unlock()
}

// processMemory embeds a memory that was stored via the Encoder's fast
// path (no inline embedding) and, once embedded, chains straight into
// dialectic processing — this is the `memory (embed + optional dialectic)`
// endpoint named in spec §4.10.
func (w *Worker) processMemory(ctx context.Context, t Task) error {
	if w.store == nil || w.embedder == nil || t.MemoryID == "" {
		return nil
	}
	m, err := w.store.GetMemory(t.MemoryID, types.ReadUntracked)
	if err != nil {
		return err
	}
	if !m.HasEmbedding() {
		vec, err := w.embedder.Embed(ctx, m.Content)
		if err != nil {
			return fmt.Errorf("worker: embed memory %s: %w", t.MemoryID, err)
		}
		if err := w.store.UpdateMemoryEmbedding(t.MemoryID, vec); err != nil {
			return err
		}
		m.Embedding = vec
	}
	return w.runDialectic(ctx, m)
}

// processDialectic runs dialectic processing on an already-embedded
// memory, without touching the Embedder.
func (w *Worker) processDialectic(ctx context.Context, t Task) error {
	if w.store == nil || t.MemoryID == "" {
		return nil
	}
	m, err := w.store.GetMemory(t.MemoryID, types.ReadUntracked)
	if err != nil {
		return err
	}
	return w.runDialectic(ctx, m)
}

func (w *Worker) runDialectic(ctx context.Context, m *types.Memory) error {
	if w.dialectic == nil {
		return nil
	}
	_, err := w.dialectic.ProcessMemory(ctx, m)
	return err
}

func (w *Worker) processStages(ctx context.Context) error {
	if w.stagesPipe == nil {
		return nil
	}
	_, err := w.stagesPipe.ProcessAll(ctx)
	return err
}

// processSkills re-publishes artifacts for an already-resolved synthesis,
// independent of the Dialectic Engine's inline AutoPublish check — used to
// retry a publish that was deferred or to republish after the Rule/Skill
// Writer configuration changes.
func (w *Worker) processSkills(ctx context.Context, t Task) error {
	if w.publisher == nil || w.store == nil || t.PatternID == "" || t.SynthesisID == "" {
		return nil
	}
	pattern, err := w.store.GetPattern(t.PatternID)
	if err != nil {
		return err
	}
	synthesis, err := w.store.GetSynthesis(t.SynthesisID)
	if err != nil {
		return err
	}
	return w.publisher.Publish(ctx, pattern, synthesis)
}

// processLLMAnalysis re-narrates a Synthesis through the Enricher. It is
// the retry path for syntheses that were first reconciled while the
// Enricher was unavailable: once a collaborator is configured, re-running
// narration can upgrade the heuristic content to an LLM-authored one.
func (w *Worker) processLLMAnalysis(ctx context.Context, t Task) error {
	if w.enr == nil || w.store == nil || t.SynthesisID == "" {
		return nil
	}
	synthesis, err := w.store.GetSynthesis(t.SynthesisID)
	if err != nil {
		return err
	}
	thesis, err := w.store.GetThesis(synthesis.ThesisID)
	if err != nil {
		return err
	}
	antitheses, err := w.store.ListAntithesesForThesis(thesis.ID)
	if err != nil {
		return err
	}
	exemplars := make([]*types.Memory, 0, len(synthesis.ExemplarMemoryIDs))
	for _, id := range synthesis.ExemplarMemoryIDs {
		if m, err := w.store.GetMemory(id, types.ReadUntracked); err == nil {
			exemplars = append(exemplars, m)
		}
	}

	narrative, err := w.enr.NarrateSynthesis(ctx, enricher.SynthesisInput{
		Thesis:     thesis,
		Antitheses: antitheses,
		Exemplars:  exemplars,
		Resolution: synthesis.Resolution.Type,
	})
	if err != nil {
		return fmt.Errorf("worker: llm-analysis synthesis %s: %w", t.SynthesisID, err)
	}
	synthesis.Content = narrative.Content
	return w.store.StoreSynthesis(synthesis)
}

func (w *Worker) processConsolidate(t Task) error {
	if w.consolidator == nil {
		return nil
	}
	_, err := w.consolidator.ConsolidateSession(t.SessionID)
	return err
}
