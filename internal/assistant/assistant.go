package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const chatSystemPrompt = `You are HealthForge, a friendly health companion.
Help the user stay on top of daily health tasks: medication schedules,
exercise, diet, monitoring and lifestyle habits. Be concise and practical.
You are not a doctor; for anything serious, tell the user to consult one.`

// Assistant is the user-facing side of the AI features. Transport and
// parsing failures surface to the caller as errors the bot can show; the
// diet plan additionally falls back to a deterministic default so the
// feature stays usable when the endpoint misbehaves.
type Assistant struct {
	client *Client
	logger *zap.Logger
}

func New(client *Client, logger *zap.Logger) *Assistant {
	return &Assistant{client: client, logger: logger}
}

// Enabled reports whether an endpoint is configured.
func (a *Assistant) Enabled() bool {
	return a != nil && a.client != nil
}

// Chat answers a free-form health question with the prior turns as context.
func (a *Assistant) Chat(ctx context.Context, history []Message, question string) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("assistant is not configured")
	}
	msgs := append(append([]Message{}, history...), Message{Role: RoleUser, Text: question})
	answer, err := a.client.Complete(ctx, chatSystemPrompt, msgs, false)
	if err != nil {
		a.logger.Warn("assistant chat failed", zap.Error(err))
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
