package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type Event struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type DecisionEvent struct {
	SessionID  string   `json:"session_id"`
	Scenario   int      `json:"scenario"`
	Index      int      `json:"index"`
	Decision   string   `json:"decision"`
	Rule       string   `json:"rule"`
	Admitted   int      `json:"admitted"`
	Attributes []string `json:"attributes,omitempty"`
}

type SessionEvent struct {
	SessionID string `json:"session_id"`
	Scenario  int    `json:"scenario"`
	Status    string `json:"status"`
	Admitted  int    `json:"admitted"`
	Rejected  int    `json:"rejected"`
	Reason    string `json:"reason,omitempty"`
}

const (
	ChannelDecision = "doorman:events:decision"
	ChannelSession  = "doorman:events:session"
)

const (
	EventDecision       = "decision"
	EventSessionStarted = "session_started"
	EventSessionEnded   = "session_ended"
)

type Bus struct {
	client redis.UniversalClient
}

func NewBus(client redis.UniversalClient) *Bus {
	return &Bus{client: client}
}

func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}, nil
}

func (b *Bus) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe relays events until ctx is done. The returned channel is closed
// once the subscription ends.
func (b *Bus) Subscribe(ctx context.Context, channels ...string) <-chan *Event {
	sub := b.client.Subscribe(ctx, channels...)
	ch := make(chan *Event, 100)

	go func() {
		defer close(ch)
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case ch <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return ch
}
