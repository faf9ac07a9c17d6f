package signaling

import (
	"fmt"

	"github.com/dkeye/p2precorder/internal/domain"
)

// startAnswerer opens the receiving connection and waits for an offer.
func (s *Session) startAnswerer() error {
	if _, err := s.openConnection(); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

// acceptOffer applies the peer's offer and produces the answer. A failure
// applying the offer leaves the session Idle; failures after that are fatal.
func (s *Session) acceptOffer(desc domain.SessionDescription) error {
	if s.state != domain.StateIdle {
		return fmt.Errorf("%w: offer already applied (state %s)", domain.ErrSignalingApply, s.state)
	}
	if s.conn == nil {
		return fmt.Errorf("%w: no connection", domain.ErrSignalingApply)
	}
	conn := s.conn.Conn()
	if err := conn.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalingApply, err)
	}
	s.remoteDesc = &desc
	s.setState(domain.StateLocalDescriptionPending)

	answer, err := conn.CreateAnswer()
	if err != nil {
		err = fmt.Errorf("create answer: %w", err)
		s.fail(err)
		return err
	}
	if err := conn.SetLocalDescription(answer); err != nil {
		err = fmt.Errorf("set local answer: %w", err)
		s.fail(err)
		return err
	}
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	s.localDesc = &answer
	s.beginGathering()
	s.logger.Info().Msg("answer created")
	return nil
}
