// Package notify defines the outbound push interface to the chat platform.
// Delivery is best effort: callers log a failed push and move on, because the
// session transition that produced the notification has already committed.
package notify

import (
	"context"
	"log"
)

// Notifier delivers an out-of-band message to a user.
type Notifier interface {
	Push(ctx context.Context, userID, text string) error
}

// LogNotifier writes notifications to the process log. It stands in for a real
// platform adapter in development and single-binary deployments.
type LogNotifier struct{}

// Push logs the notification.
func (LogNotifier) Push(ctx context.Context, userID, text string) error {
	log.Printf("[NOTIFY] user=%s %s", userID, text)
	return nil
}
