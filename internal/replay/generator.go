package replay

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/larkgate/internal/domain/model"
)

// replayToken marks generated deliveries.
const replayToken = "larkgate-replay"

// Generate builds the delivery plan: one handshake, NumEvents message events
// with fresh ids, a resend of every DupEvery-th event, and Anonymous events
// carrying no id at all. Message events come from an app sender so the bot
// does not answer them.
func Generate(cfg *Config) []Delivery {
	out := make([]Delivery, 0, 1+cfg.NumEvents+cfg.Anonymous+dupCount(cfg))

	challenge := uuid.NewString()
	out = append(out, Delivery{
		Label:     "challenge",
		Challenge: challenge,
		Expect:    ExpectChallenge,
		Body: map[string]any{
			"challenge": challenge,
			"token":     replayToken,
			"type":      "url_verification",
		},
	})

	events := make([]Delivery, 0, cfg.NumEvents)
	for range cfg.NumEvents {
		events = append(events, messageDelivery(uuid.NewString()))
	}
	out = append(out, events...)

	if cfg.DupEvery > 0 {
		for i := cfg.DupEvery - 1; i < len(events); i += cfg.DupEvery {
			dup := events[i]
			dup.Label = "duplicate"
			out = append(out, dup)
		}
	}

	for range cfg.Anonymous {
		out = append(out, Delivery{
			Label:  "anonymous",
			Expect: ExpectAck,
			Body: map[string]any{
				"type":  "event_callback",
				"token": replayToken,
				"event": map[string]any{"type": "replay.ping"},
			},
		})
	}
	return out
}

func dupCount(cfg *Config) int {
	if cfg.DupEvery <= 0 {
		return 0
	}
	return cfg.NumEvents / cfg.DupEvery
}

func messageDelivery(id string) Delivery {
	return Delivery{
		Label:   "event",
		EventID: id,
		Expect:  ExpectAck,
		Body: map[string]any{
			"schema": "2.0",
			"header": map[string]any{
				"event_id":    id,
				"event_type":  model.EventTypeMessageReceive,
				"create_time": time.Now().UnixMilli(),
				"token":       replayToken,
			},
			"event": map[string]any{
				"sender": map[string]any{"sender_type": "app"},
				"message": map[string]any{
					"message_id":   "om_" + id,
					"chat_id":      "oc_replay",
					"chat_type":    "group",
					"message_type": "text",
					"content":      `{"text":"/help"}`,
				},
			},
		},
	}
}
