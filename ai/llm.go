// Package ai implements the discussion orchestrator on top of a chat
// completion model. Each session gets its own orchestrator instance with a
// private view of the conversation.
package ai

import "context"

// ChatClient abstracts one chat completion round-trip so the orchestrator
// can be tested without a live model.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
