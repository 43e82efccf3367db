// Package transport is the boundary between the negotiation core and the
// real-time channel that relays events to the counterparty.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type EventKind string

// Outbound kinds.
const (
	KindSendMessage EventKind = "send_message"
	KindSendOffer   EventKind = "send_offer"
	KindAcceptDeal  EventKind = "accept_deal"
	KindRejectDeal  EventKind = "reject_deal"
)

// Inbound kinds.
const (
	KindNewMessage  EventKind = "new_message"
	KindOfferUpdate EventKind = "offer_update"
	KindDealStatus  EventKind = "deal_status"
)

var (
	ErrAlreadySubscribed = errors.New("event kind already has a subscriber")
	ErrClosed            = errors.New("transport is closed")
)

type Event struct {
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func NewEvent(kind EventKind, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	return Event{Kind: kind, Payload: data}, nil
}

func (e Event) Decode(into any) error {
	if err := json.Unmarshal(e.Payload, into); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Kind, err)
	}

	return nil
}

// Adapter sends events to and receives events from the real-time channel.
//
// Each event kind has at most one subscriber; the returned channel is closed
// when the adapter is closed. Send reports delivery to the channel only and
// never retries.
type Adapter interface {
	Send(ctx context.Context, kind EventKind, payload any) error
	Subscribe(ctx context.Context, kind EventKind) (<-chan Event, error)
	Close() error
}
