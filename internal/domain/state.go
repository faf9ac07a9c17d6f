package domain

import (
	"fmt"
	"strings"
)

// Role selects which side of the manual exchange a session drives.
type Role int

const (
	RoleOfferer Role = iota
	RoleAnswerer
)

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offerer", "sender":
		return RoleOfferer, nil
	case "answerer", "receiver":
		return RoleAnswerer, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	}
	return "unknown"
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Expects is the description type this role accepts from its peer.
func (r Role) Expects() SDPType {
	if r == RoleOfferer {
		return SDPTypeAnswer
	}
	return SDPTypeOffer
}

// State is the signaling state of one PeerSession.
type State int

const (
	StateIdle State = iota
	StateLocalDescriptionPending
	StateLocalDescriptionReady
	StateAwaitingRemote
	StateNegotiated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLocalDescriptionPending:
		return "local_description_pending"
	case StateLocalDescriptionReady:
		return "local_description_ready"
	case StateAwaitingRemote:
		return "awaiting_remote"
	case StateNegotiated:
		return "negotiated"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s State) Terminal() bool { return s == StateFailed }
