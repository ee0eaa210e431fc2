package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-agent-platform/internal/voice"
	"voice-agent-platform/pkg/logger"
)

// ConversationFetcher reads one conversation from the provider.
type ConversationFetcher interface {
	GetConversation(ctx context.Context, conversationID string) (voice.Conversation, error)
}

type StatusResult struct {
	Status      string `json:"status"`
	IsCompleted bool   `json:"is_completed"`
}

// StatusChecker polls the provider for a conversation's status and, once it is
// final, copies the outcome onto the caller's matching call history row.
type StatusChecker struct {
	conversations ConversationFetcher
	repo          Repository
	clock         func() time.Time
}

func NewStatusChecker(conversations ConversationFetcher, repo Repository) *StatusChecker {
	return &StatusChecker{conversations: conversations, repo: repo, clock: time.Now}
}

func (s *StatusChecker) Check(ctx context.Context, userID, conversationID string) (StatusResult, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return StatusResult{}, fmt.Errorf("%w: conversation_id is required", ErrInvalidArgument)
	}
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return StatusResult{}, err
	}
	out := StatusResult{Status: conv.Status, IsCompleted: conv.IsFinished()}
	if !out.IsCompleted || s.repo == nil || userID == "" {
		return out, nil
	}

	rec, err := s.repo.FindByConversationID(ctx, userID, conversationID)
	switch {
	case errors.Is(err, ErrNotFound):
		return out, nil
	case err != nil:
		logger.From(ctx).Warn("call history lookup failed", "conversation_id", conversationID, "err", err)
		return out, nil
	}
	if rec.Status != StatusInitiated {
		return out, nil
	}
	if err := s.repo.UpdateOutcome(ctx, rec.ID, OutcomeFromConversation(conv), s.clock().UTC()); err != nil {
		logger.From(ctx).Warn("call history update failed", "conversation_id", conversationID, "err", err)
	}
	return out, nil
}
