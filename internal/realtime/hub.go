// Package realtime fans proposal changes out to connected clients through
// one Redis pub/sub channel per proposal.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EventMessage  = "negotiation.message"
	EventAccepted = "negotiation.accepted"
	EventDeclined = "negotiation.declined"
	EventStatus   = "proposal.status"
	EventPayment  = "proposal.payment"
)

type Event struct {
	Type              string    `json:"type"`
	ProposalID        string    `json:"proposalId"`
	ActorID           string    `json:"actorId,omitempty"`
	Status            string    `json:"status,omitempty"`
	NegotiationStatus string    `json:"negotiationStatus,omitempty"`
	PaymentStatus     string    `json:"paymentStatus,omitempty"`
	At                time.Time `json:"at"`
}

type Hub struct {
	client *redis.Client
	prefix string
}

func NewHub(client *redis.Client) *Hub {
	return &Hub{client: client, prefix: "proposal:"}
}

// Channel is the pub/sub channel carrying a proposal's events.
func (h *Hub) Channel(proposalID string) string {
	return h.prefix + proposalID
}

func (h *Hub) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := h.client.Publish(ctx, h.Channel(event.ProposalID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscription delivers decoded events until Close is called or the
// context passed to Subscribe ends.
type Subscription struct {
	pubsub *redis.PubSub
	events chan Event
	done   chan struct{}
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published after it returns are not missed.
func (h *Hub) Subscribe(ctx context.Context, proposalID string) (*Subscription, error) {
	pubsub := h.client.Subscribe(ctx, h.Channel(proposalID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", proposalID, err)
	}

	sub := &Subscription{
		pubsub: pubsub,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go sub.pump(ctx)
	return sub, nil
}

func (s *Subscription) pump(ctx context.Context) {
	defer close(s.events)
	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("realtime: decode event on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case s.events <- event:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	return s.pubsub.Close()
}
