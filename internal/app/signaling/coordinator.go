package signaling

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/p2precorder/internal/app/media"
	"github.com/dkeye/p2precorder/internal/core"
	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultGatherTimeout = 10 * time.Second

type Config struct {
	Connection    domain.ConnectionConfig
	GatherTimeout time.Duration
}

// Coordinator drives one role. Each Activate replaces the current session;
// at most one is live at a time.
type Coordinator struct {
	role    domain.Role
	factory core.ConnectionFactory
	source  core.MediaSource
	cfg     Config

	mu       sync.Mutex
	current  *Session
	onUpdate func(Snapshot)
}

// NewCoordinator builds a coordinator. source is only used by the offerer.
func NewCoordinator(role domain.Role, factory core.ConnectionFactory, source core.MediaSource, cfg Config) *Coordinator {
	return &Coordinator{
		role:    role,
		factory: factory,
		source:  source,
		cfg:     cfg,
	}
}

func (c *Coordinator) Role() domain.Role { return c.role }

// OnUpdate sets the callback invoked on every snapshot change of later sessions.
func (c *Coordinator) OnUpdate(fn func(Snapshot)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Activate closes the current session, if any, and starts a fresh one.
// The returned session is valid even when err is non-nil; its snapshot
// carries the failure.
func (c *Coordinator) Activate(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if prev := c.current; prev != nil {
		prev.Close()
		log.Info().Str("module", "signaling").Str("sid", string(prev.ID())).Msg("session superseded")
	}
	s := newSession(core.NewSessionID(), c.role, c.cfg, c.factory, c.source, c.onUpdate)
	c.current = s
	c.mu.Unlock()

	s.start()
	log.Info().Str("module", "signaling").Str("sid", string(s.ID())).Str("role", c.role.String()).Msg("session activated")
	err := s.disp.do(ctx, s.activate)
	return s, err
}

// Deactivate closes the current session.
func (c *Coordinator) Deactivate() {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (c *Coordinator) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Coordinator) Import(ctx context.Context, text string) error {
	s := c.Session()
	if s == nil {
		return domain.ErrSessionClosed
	}
	return s.Import(ctx, text)
}

func (c *Coordinator) Export(ctx context.Context) (ExchangeSnapshot, error) {
	s := c.Session()
	if s == nil {
		return ExchangeSnapshot{}, domain.ErrSessionClosed
	}
	return s.Export(ctx)
}

func (c *Coordinator) Snapshot() Snapshot {
	s := c.Session()
	if s == nil {
		return Snapshot{Role: c.role, State: domain.StateIdle}
	}
	return s.Snapshot()
}

// Stream is the current session's remote stream; nil without a session.
func (c *Coordinator) Stream() *media.Stream {
	s := c.Session()
	if s == nil {
		return nil
	}
	return s.Stream()
}
