package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/p2precorder/internal/app/media"
	"github.com/dkeye/p2precorder/internal/core"
	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/dkeye/p2precorder/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Snapshot is the published, read-only view of a Session.
type Snapshot struct {
	SessionID  core.SessionID   `json:"session_id"`
	Role       domain.Role      `json:"role"`
	State      domain.State     `json:"state"`
	Exchange   ExchangeSnapshot `json:"exchange"`
	RemoteType domain.SDPType   `json:"remote_type,omitempty"`
	Tracks     int              `json:"tracks"`
	Error      string           `json:"error,omitempty"`
}

// Session is one PeerSession: a role activation owning its connection, the
// local and remote descriptions and the remote track set. All state changes
// run on the session dispatcher.
type Session struct {
	id      core.SessionID
	role    domain.Role
	cfg     Config
	factory core.ConnectionFactory
	source  core.MediaSource
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	disp   *dispatcher
	remote *media.Aggregator

	// owned by the dispatch goroutine
	state      domain.State
	localDesc  *domain.SessionDescription
	remoteDesc *domain.SessionDescription
	gathering  GatheringDetector
	lastErr    error

	resMu       sync.Mutex
	conn        *ConnectionManager
	localStream core.LocalStream
	gatherTimer *time.Timer
	closed      bool

	snapMu   sync.RWMutex
	snap     Snapshot
	onUpdate func(Snapshot)
}

func newSession(
	id core.SessionID,
	role domain.Role,
	cfg Config,
	factory core.ConnectionFactory,
	source core.MediaSource,
	onUpdate func(Snapshot),
) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		role:     role,
		cfg:      cfg,
		factory:  factory,
		source:   source,
		logger:   log.With().Str("module", "signaling").Str("sid", string(id)).Str("role", role.String()).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		disp:     newDispatcher(),
		remote:   media.NewAggregator(),
		onUpdate: onUpdate,
	}
	s.snap = Snapshot{SessionID: id, Role: role, State: domain.StateIdle}
	return s
}

func (s *Session) start() {
	go s.disp.run()
}

func (s *Session) ID() core.SessionID { return s.id }

func (s *Session) Role() domain.Role { return s.role }

func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// Stream returns the composite stream of the remote tracks received so far.
func (s *Session) Stream() *media.Stream {
	return s.remote.Current()
}

// Done is closed when the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.disp.done }

// Import applies the peer's exchange text. On error nothing is changed.
func (s *Session) Import(ctx context.Context, text string) error {
	return s.disp.do(ctx, func() error { return s.importRemote(text) })
}

// Export returns the exchange text for the operator to copy and records
// that it was handed out.
func (s *Session) Export(ctx context.Context) (ExchangeSnapshot, error) {
	var out ExchangeSnapshot
	err := s.disp.do(ctx, func() error {
		out = s.export()
		return nil
	})
	if err != nil {
		return ExchangeSnapshot{}, err
	}
	return out, nil
}

// Close releases the connection, the local capture and the remote tracks.
// Pending continuations become no-ops. Safe to call multiple times.
func (s *Session) Close() {
	s.resMu.Lock()
	if s.closed {
		s.resMu.Unlock()
		return
	}
	s.closed = true
	conn, stream, timer := s.conn, s.localStream, s.gatherTimer
	s.resMu.Unlock()

	s.cancel()
	s.disp.close()
	if timer != nil {
		timer.Stop()
	}
	if conn != nil {
		conn.Close()
	}
	if stream != nil {
		stream.Close()
	}
	s.remote.Release()
	s.logger.Info().Msg("session closed")
}

func (s *Session) isClosed() bool {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	return s.closed
}

func (s *Session) activate() error {
	var err error
	switch s.role {
	case domain.RoleOfferer:
		err = s.startOffer()
	case domain.RoleAnswerer:
		err = s.startAnswerer()
	default:
		err = fmt.Errorf("unknown role %d", s.role)
	}
	s.publish()
	return err
}

func (s *Session) openConnection() (*ConnectionManager, error) {
	cm, err := NewConnectionManager(s.factory, s.cfg.Connection, s.id, s.disp)
	if err != nil {
		return nil, err
	}
	cm.On(core.EventCandidateGathered, s.onCandidate)
	cm.On(core.EventGatheringComplete, s.onGatheringComplete)
	cm.On(core.EventCandidateError, s.onCandidateError)
	cm.On(core.EventTrackReceived, s.onTrack)
	cm.On(core.EventSignalingStateChanged, s.onSignalingState)

	s.resMu.Lock()
	if s.closed {
		s.resMu.Unlock()
		cm.Close()
		return nil, domain.ErrSessionClosed
	}
	s.conn = cm
	s.resMu.Unlock()

	if err := cm.Start(s.ctx); err != nil {
		return nil, fmt.Errorf("start connection: %w", err)
	}
	s.logger.Info().Msg("connection created")
	return cm, nil
}

func (s *Session) adoptStream(stream core.LocalStream) bool {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	if s.closed {
		return false
	}
	s.localStream = stream
	return true
}

func (s *Session) importRemote(text string) error {
	desc, err := domain.DecodeExchange(text)
	if err != nil {
		metrics.SignalingFailures.WithLabelValues("parse").Inc()
		s.logger.Warn().Err(err).Msg("ignoring exchange text")
		return err
	}

	switch {
	case s.state.Terminal():
		err = fmt.Errorf("%w: session %s, reset to negotiate again", domain.ErrSignalingApply, s.state)
	case desc.Type != s.role.Expects():
		err = fmt.Errorf("%w: expected %s, got %q", domain.ErrSignalingApply, s.role.Expects(), desc.Type)
	case s.role == domain.RoleOfferer:
		err = s.acceptAnswer(desc)
	default:
		err = s.acceptOffer(desc)
	}
	if err != nil {
		metrics.SignalingFailures.WithLabelValues("apply").Inc()
		s.logger.Warn().Err(err).Str("type", string(desc.Type)).Msg("remote description rejected")
		return err
	}
	return nil
}

func (s *Session) export() ExchangeSnapshot {
	snap := s.gathering.Snapshot()
	if snap.Text == "" {
		return snap
	}
	if s.state == domain.StateLocalDescriptionReady {
		if s.role == domain.RoleOfferer {
			s.setState(domain.StateAwaitingRemote)
		} else {
			s.setState(domain.StateNegotiated)
		}
	}
	return snap
}

// beginGathering publishes the freshly set local description and arms the
// gathering watchdog.
func (s *Session) beginGathering() {
	s.gathering.Reset()
	s.republish(s.gathering.Observe)
	s.armGatherTimer()
}

func (s *Session) armGatherTimer() {
	if s.cfg.GatherTimeout <= 0 {
		return
	}
	s.resMu.Lock()
	defer s.resMu.Unlock()
	if s.closed {
		return
	}
	if s.gatherTimer != nil {
		s.gatherTimer.Stop()
	}
	s.gatherTimer = time.AfterFunc(s.cfg.GatherTimeout, func() {
		s.disp.post(s.onGatherTimeout)
	})
}

func (s *Session) stopGatherTimer() {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	if s.gatherTimer != nil {
		s.gatherTimer.Stop()
		s.gatherTimer = nil
	}
}

// republish re-reads the connection's local description and feeds it to step.
func (s *Session) republish(step func(domain.SessionDescription) (bool, error)) {
	var desc domain.SessionDescription
	if s.conn != nil {
		if d, ok := s.conn.Conn().LocalDescription(); ok {
			desc = d
		}
	}
	changed, err := step(desc)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode local description")
		return
	}
	if changed {
		metrics.ExchangeUpdates.WithLabelValues(s.role.String()).Inc()
	}
	s.publish()
}

func (s *Session) onCandidate(ev core.Event) {
	if s.localDesc == nil {
		return
	}
	s.logger.Debug().Str("candidate", ev.Candidate).Msg("local candidate gathered")
	s.republish(s.gathering.Candidate)
}

func (s *Session) onGatheringComplete(core.Event) {
	if s.localDesc == nil {
		return
	}
	s.stopGatherTimer()
	s.republish(s.gathering.Complete)
	s.logger.Info().Int("candidates", s.gathering.Snapshot().Candidates).Msg("ice gathering complete")
	if s.state == domain.StateLocalDescriptionPending {
		s.setState(domain.StateLocalDescriptionReady)
	}
}

func (s *Session) onGatherTimeout() {
	if s.localDesc == nil || !s.gathering.Expire() {
		return
	}
	metrics.SignalingFailures.WithLabelValues("timeout").Inc()
	s.logger.Warn().Err(domain.ErrNegotiationTimeout).Dur("timeout", s.cfg.GatherTimeout).Msg("exporting best-effort description")
	s.republish(s.gathering.Observe)
	if s.state == domain.StateLocalDescriptionPending {
		s.setState(domain.StateLocalDescriptionReady)
	}
}

func (s *Session) onCandidateError(ev core.Event) {
	metrics.SignalingFailures.WithLabelValues("candidate").Inc()
	s.logger.Warn().Err(ev.Err).Msg("candidate error")
}

func (s *Session) onTrack(ev core.Event) {
	if ev.Track == nil || s.conn == nil {
		return
	}
	t := media.NewTrack(ev.Track, s.conn.Conn().RequestKeyframe)
	logger := s.logger.With().
		Str("track_id", t.ID()).
		Str("kind", t.Kind().String()).
		Str("mime", t.MimeType()).
		Logger()
	go t.Run(s.ctx, &logger)

	st := s.remote.Append(t)
	metrics.RemoteTracks.Inc()
	logger.Info().Int("tracks", st.Len()).Msg("remote track added")
	s.publish()
}

func (s *Session) onSignalingState(ev core.Event) {
	s.logger.Debug().Str("signaling_state", ev.State).Msg("signaling state changed")
}

func (s *Session) setState(next domain.State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	metrics.StateTransitions.WithLabelValues(next.String()).Inc()
	s.logger.Info().Str("from", prev.String()).Str("to", next.String()).Msg("state changed")
	s.publish()
}

func (s *Session) fail(err error) {
	s.lastErr = err
	s.logger.Error().Err(err).Msg("session failed")
	s.setState(domain.StateFailed)
}

func (s *Session) publish() {
	snap := Snapshot{
		SessionID: s.id,
		Role:      s.role,
		State:     s.state,
		Exchange:  s.gathering.Snapshot(),
		Tracks:    s.remote.Current().Len(),
	}
	if s.remoteDesc != nil {
		snap.RemoteType = s.remoteDesc.Type
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}

	s.snapMu.Lock()
	s.snap = snap
	fn := s.onUpdate
	s.snapMu.Unlock()

	if fn != nil && !s.isClosed() {
		fn(snap)
	}
}
