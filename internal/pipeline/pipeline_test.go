package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
)

type recordingStage struct {
	name  string
	err   error
	panic bool
	delay time.Duration

	mu     sync.Mutex
	events []*domain.LiveEvent
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) Process(ctx context.Context, ev *domain.LiveEvent) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.panic {
		panic("stage exploded")
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return s.err
}

func (s *recordingStage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func waitForCount(t *testing.T, stage *recordingStage, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stage.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stage %s: timed out waiting for %d events, got %d", stage.name, n, stage.count())
}

func TestPipelineRunsAllStages(t *testing.T) {
	first := &recordingStage{name: "first"}
	second := &recordingStage{name: "second"}
	p := New(time.Second, first, second)
	defer p.Close()

	ev := domain.NewCommentEvent("streamer", "alice", "hello")
	p.Dispatch(ev)

	waitForCount(t, first, 1)
	waitForCount(t, second, 1)
}

func TestPipelineStageErrorDoesNotStopChain(t *testing.T) {
	failing := &recordingStage{name: "persist", err: errors.New("db down")}
	after := &recordingStage{name: "points"}
	p := New(time.Second, failing, after)
	defer p.Close()

	p.Dispatch(domain.NewCommentEvent("streamer", "alice", "hello"))

	waitForCount(t, after, 1)
}

func TestPipelineStagePanicIsContained(t *testing.T) {
	exploding := &recordingStage{name: "boom", panic: true}
	after := &recordingStage{name: "after"}
	p := New(time.Second, exploding, after)
	defer p.Close()

	p.Dispatch(domain.NewCommentEvent("streamer", "alice", "hello"))

	waitForCount(t, after, 1)
}

func TestPipelineCloseDrainsInFlight(t *testing.T) {
	slow := &recordingStage{name: "slow", delay: 50 * time.Millisecond}
	p := New(time.Second, slow)

	for i := 0; i < 3; i++ {
		p.Dispatch(domain.NewCommentEvent("streamer", "alice", "hello"))
	}
	p.Close()

	assert.Equal(t, 3, slow.count(), "Close must wait for in-flight events")
}

func TestPipelineCloseCancelsAfterDrainTimeout(t *testing.T) {
	stuck := &recordingStage{name: "stuck", delay: 10 * time.Second}
	p := New(50*time.Millisecond, stuck)

	p.Dispatch(domain.NewCommentEvent("streamer", "alice", "hello"))

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the stuck stage")
	}
	assert.Equal(t, 0, stuck.count())
}

func TestPipelineDispatchAfterCloseIsNoop(t *testing.T) {
	stage := &recordingStage{name: "stage"}
	p := New(time.Second, stage)
	p.Close()

	p.Dispatch(domain.NewCommentEvent("streamer", "alice", "hello"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, stage.count())
}

func TestPipelineCloseIsIdempotent(t *testing.T) {
	p := New(time.Second, &recordingStage{name: "stage"})
	p.Close()
	p.Close()
}

func TestPipelineConcurrentDispatch(t *testing.T) {
	stage := &recordingStage{name: "stage"}
	p := New(time.Second, stage)

	const n = 64
	var launched atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Dispatch(domain.NewCommentEvent("streamer", "alice", "hello"))
			launched.Add(1)
		}()
	}
	wg.Wait()
	p.Close()

	require.Equal(t, int32(n), launched.Load())
	assert.Equal(t, n, stage.count())
}
