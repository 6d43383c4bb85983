// Package gateway is the inbound surface between the chat platform adapter
// and the router. It applies the per-chat-surface enable flags and the
// mention-required rule for group contexts before any message reaches the
// session machinery.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

// MessageHandler processes one inbound message and returns the reply.
type MessageHandler interface {
	Handle(ctx context.Context, userID, text string) string
}

// Config holds chat-surface gating flags.
type Config struct {
	// EnablePrivateChat accepts direct messages.
	EnablePrivateChat bool
	// EnableGroupChat accepts group messages.
	EnableGroupChat bool
	// RequireMentionInGroup ignores group free text unless the bot is
	// mentioned. Commands always pass.
	RequireMentionInGroup bool
}

// Inbound is one message from the platform adapter.
type Inbound struct {
	// UserID identifies the sender.
	UserID string `json:"user_id"`
	// Text is the message content.
	Text string `json:"text"`
	// Group is true for group-chat messages.
	Group bool `json:"group"`
	// Mentioned is true when the bot was mentioned in a group message.
	Mentioned bool `json:"mentioned"`
}

// Gateway gates and forwards inbound messages.
type Gateway struct {
	cfg    Config
	router MessageHandler
}

// New creates a gateway in front of a message handler.
func New(cfg Config, router MessageHandler) *Gateway {
	return &Gateway{cfg: cfg, router: router}
}

// Handle processes one inbound message. The second return value is false when
// the message was ignored by the gating rules.
func (g *Gateway) Handle(ctx context.Context, in Inbound) (string, bool) {
	if in.UserID == "" {
		return "", false
	}
	if in.Group {
		if !g.cfg.EnableGroupChat {
			return "", false
		}
		isCommand := strings.HasPrefix(strings.TrimSpace(in.Text), "/")
		if g.cfg.RequireMentionInGroup && !isCommand && !in.Mentioned {
			return "", false
		}
	} else if !g.cfg.EnablePrivateChat {
		return "", false
	}

	return g.router.Handle(ctx, in.UserID, in.Text), true
}

// Handler exposes the gateway over HTTP for out-of-process platform adapters:
// POST a JSON Inbound, receive {"reply": ..., "handled": ...}.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var in Inbound
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if in.UserID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		reply, handled := g.Handle(r.Context(), in)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"reply":   reply,
			"handled": handled,
		}); err != nil {
			log.Printf("[GATEWAY] write response: %v", err)
		}
	}
}
