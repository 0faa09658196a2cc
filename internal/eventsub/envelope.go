package eventsub

import (
	"encoding/json"
	"fmt"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

// Envelope is the body shape shared by all three EventSub message types:
// a subscription descriptor plus either a challenge (verification) or an
// event object (notification). Revocations carry only the descriptor.
type Envelope struct {
	Subscription EnvelopeSubscription `json:"subscription"`
	Challenge    string               `json:"challenge"`
	Event        json.RawMessage      `json:"event"`
}

type EnvelopeSubscription struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Condition map[string]string `json:"condition"`
}

// ParseEnvelope decodes the callback body. A body without a subscription ID
// cannot be attributed to any topic and is malformed.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if env.Subscription.ID == "" || env.Subscription.Type == "" {
		return nil, fmt.Errorf("%w: missing subscription descriptor", domain.ErrMalformedPayload)
	}
	return &env, nil
}
