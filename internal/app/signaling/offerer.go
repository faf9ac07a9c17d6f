package signaling

import (
	"fmt"

	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/dkeye/p2precorder/internal/metrics"
)

// startOffer acquires local media, attaches it and produces the offer.
func (s *Session) startOffer() error {
	if s.source == nil {
		err := fmt.Errorf("%w: no media source configured", domain.ErrMediaAcquisition)
		s.fail(err)
		return err
	}
	stream, err := s.source.Acquire(s.ctx)
	if err != nil {
		metrics.SignalingFailures.WithLabelValues("media").Inc()
		err = fmt.Errorf("%w: %v", domain.ErrMediaAcquisition, err)
		s.fail(err)
		return err
	}
	if !s.adoptStream(stream) {
		stream.Close()
		return domain.ErrSessionClosed
	}

	cm, err := s.openConnection()
	if err != nil {
		s.fail(err)
		return err
	}
	conn := cm.Conn()
	for _, t := range stream.Tracks() {
		if err := conn.AddLocalTrack(t); err != nil {
			err = fmt.Errorf("attach local track %s: %w", t.ID(), err)
			s.fail(err)
			return err
		}
	}

	s.setState(domain.StateLocalDescriptionPending)
	offer, err := conn.CreateOffer()
	if err != nil {
		err = fmt.Errorf("create offer: %w", err)
		s.fail(err)
		return err
	}
	if err := conn.SetLocalDescription(offer); err != nil {
		err = fmt.Errorf("set local offer: %w", err)
		s.fail(err)
		return err
	}
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	s.localDesc = &offer
	s.beginGathering()
	stream.Start(s.ctx)
	s.logger.Info().Int("local_tracks", len(stream.Tracks())).Msg("offer created")
	return nil
}

// acceptAnswer applies the peer's answer. Rejected input leaves the session untouched.
func (s *Session) acceptAnswer(desc domain.SessionDescription) error {
	switch s.state {
	case domain.StateLocalDescriptionPending, domain.StateLocalDescriptionReady, domain.StateAwaitingRemote:
	default:
		return fmt.Errorf("%w: not awaiting an answer in state %s", domain.ErrSignalingApply, s.state)
	}
	if s.conn == nil {
		return fmt.Errorf("%w: no connection", domain.ErrSignalingApply)
	}
	if err := s.conn.Conn().SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalingApply, err)
	}
	s.remoteDesc = &desc
	s.setState(domain.StateNegotiated)
	return nil
}
