// Package domain contains entities without transport, just meta-data and the
// exchange text codec.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription is the exchangeable form of a local or remote description.
// SDP is opaque and never rewritten.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

func (d SessionDescription) IsZero() bool {
	return d.Type == "" && d.SDP == ""
}

// EncodeExchange serializes d into the text handed to the operator.
// HTML escaping is off so the text matches what a browser peer produces.
func EncodeExchange(d SessionDescription) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DecodeExchange parses text pasted by the operator. Leading and trailing
// whitespace is ignored, everything else must be a single JSON object carrying
// a type and an sdp body.
func DecodeExchange(text string) (SessionDescription, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return SessionDescription{}, fmt.Errorf("%w: empty text", ErrSignalingParse)
	}

	var d SessionDescription
	if err := json.Unmarshal([]byte(trimmed), &d); err != nil {
		return SessionDescription{}, fmt.Errorf("%w: %v", ErrSignalingParse, err)
	}
	if d.Type == "" {
		return SessionDescription{}, fmt.Errorf("%w: missing type", ErrSignalingParse)
	}
	if d.SDP == "" {
		return SessionDescription{}, fmt.Errorf("%w: missing sdp", ErrSignalingParse)
	}
	return d, nil
}
