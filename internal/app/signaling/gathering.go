package signaling

import (
	"github.com/dkeye/p2precorder/internal/domain"
)

// ExchangeSnapshot is the exchange text currently offered to the operator.
// Complete is set once the gathering sentinel was seen; TimedOut when the
// watchdog gave up first and Text is best effort.
type ExchangeSnapshot struct {
	Type       domain.SDPType `json:"type,omitempty"`
	Text       string         `json:"text"`
	Complete   bool           `json:"complete"`
	TimedOut   bool           `json:"timed_out"`
	Revision   int            `json:"revision"`
	Candidates int            `json:"candidates"`
}

// GatheringDetector keeps the best local description seen during one
// negotiation round. Every candidate republishes it; the sentinel marks it final.
type GatheringDetector struct {
	best       domain.SessionDescription
	text       string
	revision   int
	candidates int
	complete   bool
	timedOut   bool
}

// Reset starts a new round.
func (g *GatheringDetector) Reset() {
	*g = GatheringDetector{revision: g.revision}
}

// Observe republishes desc. It reports whether the exchange text changed.
// Once complete, later observations are ignored.
func (g *GatheringDetector) Observe(desc domain.SessionDescription) (bool, error) {
	if g.complete || desc.IsZero() {
		return false, nil
	}
	text, err := domain.EncodeExchange(desc)
	if err != nil {
		return false, err
	}
	if text == g.text {
		return false, nil
	}
	g.best = desc
	g.text = text
	g.revision++
	return true, nil
}

// Candidate counts one gathered candidate and republishes desc.
func (g *GatheringDetector) Candidate(desc domain.SessionDescription) (bool, error) {
	if !g.complete {
		g.candidates++
	}
	return g.Observe(desc)
}

// Complete republishes the final description and marks gathering done.
func (g *GatheringDetector) Complete(desc domain.SessionDescription) (bool, error) {
	if g.complete {
		return false, nil
	}
	changed, err := g.Observe(desc)
	if err != nil {
		return false, err
	}
	g.complete = true
	g.timedOut = false
	return changed, nil
}

// Expire marks the round as timed out unless already complete.
func (g *GatheringDetector) Expire() bool {
	if g.complete || g.timedOut {
		return false
	}
	g.timedOut = true
	return true
}

func (g *GatheringDetector) IsComplete() bool { return g.complete }

func (g *GatheringDetector) Best() (domain.SessionDescription, bool) {
	return g.best, !g.best.IsZero()
}

func (g *GatheringDetector) Snapshot() ExchangeSnapshot {
	return ExchangeSnapshot{
		Type:       g.best.Type,
		Text:       g.text,
		Complete:   g.complete,
		TimedOut:   g.timedOut,
		Revision:   g.revision,
		Candidates: g.candidates,
	}
}
