package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

// Stage is one best-effort post-processing step for a live event.
// Stages must honor ctx cancellation; a stage error never affects other
// stages or the event loop.
type Stage interface {
	Name() string
	Process(ctx context.Context, ev *domain.LiveEvent) error
}

// Pipeline runs a fixed chain of stages for each dispatched event, off the
// fan-out path. Every in-flight event is tracked so Close can drain
// deterministically instead of leaking goroutines.
type Pipeline struct {
	stages       []Stage
	drainTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a pipeline over the given stages. drainTimeout bounds how long
// Close waits for in-flight events before cancelling them.
func New(drainTimeout time.Duration, stages ...Stage) *Pipeline {
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		stages:       stages,
		drainTimeout: drainTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Dispatch runs the stage chain for ev in the background. It returns
// immediately; fan-out latency never depends on persistence or synthesis.
// Dispatching after Close is a no-op.
func (p *Pipeline) Dispatch(ev *domain.LiveEvent) {
	if p.closed.Load() {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for _, stage := range p.stages {
			p.runStage(stage, ev)
			if p.ctx.Err() != nil {
				return
			}
		}
	}()
}

// runStage executes one stage with panic and error isolation: a failing
// persist step must not keep a later stage from running.
func (p *Pipeline) runStage(stage Stage, ev *domain.LiveEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.L().Error().
				Str(log.FieldStage, stage.Name()).
				Str(log.FieldEventType, ev.Type).
				Interface("panic", r).
				Msg("stage panicked")
		}
	}()

	if err := stage.Process(p.ctx, ev); err != nil {
		log.L().Warn().
			Err(err).
			Str(log.FieldStage, stage.Name()).
			Str(log.FieldEventType, ev.Type).
			Str(log.FieldRoomID, ev.RoomID.String()).
			Msg("stage failed")
	}
}

// Close stops accepting events and drains the in-flight ones: it waits up to
// the drain timeout, then cancels the stage context and waits for the
// cancelled stages to unwind.
func (p *Pipeline) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.drainTimeout):
		log.L().Warn().Msg("pipeline drain timed out, cancelling in-flight stages")
		p.cancel()
		<-done
	}
	p.cancel()
}
