package upstream

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

// ErrSessionStopped is returned by Start when Stop was called while the
// connection attempt was still in flight.
var ErrSessionStopped = errors.New("session stopped")

// Handler receives each normalized event, in normalization order, on the
// session's read loop. It must not block on slow side effects.
type Handler func(*domain.LiveEvent)

// Config bounds the session's connect behaviour.
type Config struct {
	// MaxAttempts is the connect retry budget, including the first try.
	MaxAttempts int `mapstructure:"max_attempts"`
	// RetryDelay is the backoff base between attempts. The actual delay is
	// scaled by the attempt number plus random jitter so concurrent sessions
	// do not retry in lockstep.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// ProbeTimeout bounds the liveness probe wall clock.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// ReadDrain bounds how long Stop waits for the read loop to exit.
	ReadDrain time.Duration `mapstructure:"read_drain"`
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 15 * time.Second
	}
	if c.ReadDrain <= 0 {
		c.ReadDrain = 2 * time.Second
	}
	return c
}

// Session owns exactly one upstream connection for one room and translates
// its raw feed into normalized live events. Only the room registry creates
// and destroys sessions; only the session touches its connection.
type Session struct {
	room    domain.RoomID
	dialer  Dialer
	cfg     Config
	handler Handler
	onEnded func(domain.RoomID)
	logger  zerolog.Logger

	mu       sync.Mutex
	conn     Connection
	cancel   context.CancelFunc
	readDone chan struct{}
	stopped  bool

	connected atomic.Bool
	viewers   atomic.Int64
}

// NewSession creates a session for one room. handler receives every
// normalized event; onEnded is invoked from Stop to mark the stream as ended
// downstream and may be nil.
func NewSession(room domain.RoomID, dialer Dialer, cfg Config, handler Handler, onEnded func(domain.RoomID)) *Session {
	return &Session{
		room:    room,
		dialer:  dialer,
		cfg:     cfg.withDefaults(),
		handler: handler,
		onEnded: onEnded,
		logger:  log.L().With().Str(log.FieldRoomID, room.String()).Logger(),
	}
}

// Room returns the session's room ID.
func (s *Session) Room() domain.RoomID { return s.room }

// Connected reports whether the upstream connection is currently up.
func (s *Session) Connected() bool { return s.connected.Load() }

// ViewerCount returns the last viewer count reported upstream.
func (s *Session) ViewerCount() int { return int(s.viewers.Load()) }

// Start establishes the upstream connection, retrying transient failures up
// to the configured budget with jittered backoff. Rooms that are offline or
// unknown fail immediately. A blocked identity is rotated once, then the
// failure is terminal with an actionable message. On success a Connected
// event is emitted and the read loop starts.
func (s *Session) Start(ctx context.Context) error {
	rotated := false
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.backoff(attempt)
			s.logger.Info().
				Int(log.FieldAttempt, attempt).
				Dur("delay", delay).
				Msg("retrying upstream connect")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if s.isStopped() {
			return ErrSessionStopped
		}

		conn, err := s.dialer.Dial(ctx, s.room)
		if err == nil {
			return s.attach(conn)
		}

		switch {
		case errors.Is(err, ErrRoomOffline), errors.Is(err, ErrRoomNotFound):
			// Terminal: nothing a retry can fix.
			s.logger.Warn().Err(err).Msg("room unavailable")
			return err

		case errors.Is(err, ErrBlocked):
			if !rotated {
				rotated = true
				lastErr = err
				s.logger.Warn().Msg("identity blocked upstream, rotating and retrying")
				s.dialer.Rotate()
				continue
			}
			return fmt.Errorf("upstream keeps rejecting this identity; wait before reconnecting or switch networks: %w", err)

		default:
			lastErr = err
			s.logger.Warn().Err(err).Int(log.FieldAttempt, attempt).Msg("upstream connect failed")
		}
	}

	return fmt.Errorf("failed to connect to %s after %d attempts: %w", s.room, s.cfg.MaxAttempts, lastErr)
}

func (s *Session) attach(conn Connection) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Disconnect()
		return ErrSessionStopped
	}
	readCtx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.readDone = make(chan struct{})
	s.mu.Unlock()

	s.connected.Store(true)
	s.logger.Info().Msg("upstream connected")
	s.handler(domain.NewConnectionEvent(s.room, domain.StatusConnected,
		fmt.Sprintf("Connected to @%s live stream", s.room)))

	go s.readLoop(readCtx, conn)
	return nil
}

// Stop closes the upstream connection if open and marks the stream as ended
// downstream regardless of whether the close succeeded. Stop is idempotent
// and safe to call concurrently with an in-flight Start; the session ends up
// fully torn down either way.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	conn := s.conn
	cancel := s.cancel
	readDone := s.readDone
	s.conn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			s.logger.Warn().Err(err).Msg("upstream disconnect failed")
		}
	}
	if readDone != nil {
		select {
		case <-readDone:
		case <-time.After(s.cfg.ReadDrain):
			s.logger.Warn().Msg("read loop did not drain in time")
		}
	}

	s.connected.Store(false)
	s.logger.Info().Msg("session stopped")

	// The stream record is closed even when the disconnect failed.
	if s.onEnded != nil {
		s.onEnded(s.room)
	}
}

func (s *Session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Session) backoff(attempt int) time.Duration {
	jitter := 0.5 + rand.Float64() // [0.5, 1.5)
	return time.Duration(float64(s.cfg.RetryDelay) * (float64(attempt-1) + jitter))
}

func (s *Session) readLoop(ctx context.Context, conn Connection) {
	s.mu.Lock()
	readDone := s.readDone
	s.mu.Unlock()
	defer close(readDone)

	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				// Upstream closed the feed.
				s.connected.Store(false)
				if ctx.Err() == nil {
					s.logger.Info().Msg("upstream closed the connection")
					s.handler(domain.NewConnectionEvent(s.room, domain.StatusDisconnected, ""))
				}
				return
			}
			if ev := s.normalize(msg); ev != nil {
				s.handler(ev)
			}
		}
	}
}

// normalize maps one raw upstream message to at most one live event.
// Messages that only mutate session state (or combo gifts still streaking)
// produce nil.
func (s *Session) normalize(msg RawMessage) *domain.LiveEvent {
	switch msg.Kind {
	case RawConnected:
		// Connection state was already announced by Start.
		s.connected.Store(true)
		return nil

	case RawDisconnected:
		s.connected.Store(false)
		return domain.NewConnectionEvent(s.room, domain.StatusDisconnected, "")

	case RawRoomUserSeq:
		n := msg.viewerCount()
		if n <= 0 {
			return nil
		}
		s.viewers.Store(int64(n))
		return domain.NewViewerUpdateEvent(s.room, n)

	case RawComment:
		return domain.NewCommentEvent(s.room, msg.User.Name(), msg.Comment)

	case RawGift:
		if msg.Gift.Streakable && msg.Gift.Streaking {
			// Combo in progress; only the finalized total is emitted.
			return nil
		}
		count := msg.Gift.Count
		if count < 1 {
			count = 1
		}
		return domain.NewGiftEvent(s.room, msg.User.Name(), msg.Gift.Name, msg.Gift.DiamondCount, count)

	case RawFollow:
		return domain.NewFollowEvent(s.room, msg.User.Name())

	case RawLike:
		count := msg.LikeCount
		if count < 1 {
			count = 1
		}
		return domain.NewLikeEvent(s.room, msg.User.Name(), count, msg.TotalLikes)

	case RawJoin:
		return domain.NewJoinEvent(s.room, msg.User.Name())

	case RawShare:
		return domain.NewShareEvent(s.room, msg.User.Name())
	}

	return nil
}

// Probe reports whether a room is currently live. It dials once under the
// configured wall-clock timeout; on timeout the room is reported offline
// rather than keeping the caller waiting.
func Probe(ctx context.Context, dialer Dialer, room domain.RoomID, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.Dial(ctx, room)
	if err != nil {
		if errors.Is(err, ErrRoomOffline) || errors.Is(err, ErrRoomNotFound) {
			return false, nil
		}
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	conn.Disconnect()
	return true, nil
}
