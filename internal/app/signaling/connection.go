package signaling

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/p2precorder/internal/core"
	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns exactly one MediaConnection and the occurrence
// handlers registered for its lifetime. Occurrences are delivered on the
// owning session's dispatcher, in emission order.
type ConnectionManager struct {
	conn core.MediaConnection
	sid  core.SessionID
	disp *dispatcher

	// only touched from the dispatch goroutine
	handlers map[core.EventKind][]func(core.Event)

	closed    atomic.Bool
	closeOnce sync.Once
}

func NewConnectionManager(
	factory core.ConnectionFactory,
	cfg domain.ConnectionConfig,
	sid core.SessionID,
	disp *dispatcher,
) (*ConnectionManager, error) {
	conn, err := factory(cfg, sid)
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	return &ConnectionManager{
		conn:     conn,
		sid:      sid,
		disp:     disp,
		handlers: make(map[core.EventKind][]func(core.Event)),
	}, nil
}

// On registers fn for kind. Must be called before Start.
func (m *ConnectionManager) On(kind core.EventKind, fn func(core.Event)) {
	m.handlers[kind] = append(m.handlers[kind], fn)
}

func (m *ConnectionManager) Start(ctx context.Context) error {
	return m.conn.Start(ctx, m.emit)
}

func (m *ConnectionManager) Conn() core.MediaConnection { return m.conn }

func (m *ConnectionManager) emit(ev core.Event) {
	if m.closed.Load() {
		return
	}
	m.disp.post(func() {
		if m.closed.Load() {
			return
		}
		m.dispatch(ev)
	})
}

func (m *ConnectionManager) dispatch(ev core.Event) {
	hs := m.handlers[ev.Kind]
	if len(hs) == 0 {
		log.Debug().Str("module", "signaling").Str("sid", string(m.sid)).Str("event", ev.Kind.String()).Msg("unhandled occurrence")
		return
	}
	for _, fn := range hs {
		fn(ev)
	}
}

func (m *ConnectionManager) IsClosed() bool { return m.closed.Load() }

// Close releases the connection. Safe to call multiple times.
func (m *ConnectionManager) Close() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		if err := m.conn.Close(); err != nil {
			log.Error().Err(err).Str("module", "signaling").Str("sid", string(m.sid)).Msg("connection close error")
			return
		}
		log.Info().Str("module", "signaling").Str("sid", string(m.sid)).Msg("connection closed")
	})
}
