// Package assistant runs the playlist-design conversation with the text-generation service.
package assistant

import (
	"context"
	"iter"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tonaly/internal/domain/chat"
)

var ErrEmptyConversation = errors.New("conversation is empty")

// Completer is the text-generation collaborator.
// Stream yields the reply as a lazy sequence of text deltas; iteration stops after the first error.
type Completer interface {
	Stream(ctx context.Context, messages []chat.Message) iter.Seq2[string, error]
}

// Service answers conversations as the playlist assistant.
type Service struct {
	completer Completer
}

// New creates a new Service.
func New(completer Completer) *Service {
	return &Service{completer: completer}
}

// Reply streams the assistant's next message for history.
// The system prompt is always prepended; system messages supplied by the caller are dropped.
func (s *Service) Reply(ctx context.Context, history []chat.Message) (iter.Seq2[string, error], error) {
	messages := make([]chat.Message, 0, len(history)+1)
	messages = append(messages, chat.Message{Role: chat.RoleSystem, Content: SystemPrompt})
	for _, m := range history {
		if m.Role == chat.RoleSystem {
			continue
		}
		messages = append(messages, m)
	}

	if len(messages) == 1 {
		return nil, ErrEmptyConversation
	}

	return s.completer.Stream(ctx, messages), nil
}
