package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
)

const (
	maxMessageLength        = 2000
	defaultConversationSize = 100
	maxConversationSize     = 500
)

// SendMessage stores a direct message. Vendor replies feed the response
// sub-score of the trust score.
func (s *Service) SendMessage(ctx context.Context, req domain.MessageCreateRequest) (domain.Message, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Message{}, err
	}

	req.RecipientID = strings.TrimSpace(req.RecipientID)
	req.ListingID = strings.TrimSpace(req.ListingID)
	req.Body = strings.TrimSpace(req.Body)
	if req.RecipientID == "" {
		return domain.Message{}, domain.BadRequest(nil, "recipient_id is required")
	}
	if req.RecipientID == actor.UserID {
		return domain.Message{}, domain.BadRequest(nil, "cannot message yourself")
	}
	if req.Body == "" {
		return domain.Message{}, domain.BadRequest(nil, "body is required")
	}
	if utf8.RuneCountInString(req.Body) > maxMessageLength {
		return domain.Message{}, domain.BadRequest(nil, "body must be at most %d characters", maxMessageLength)
	}

	if _, err := s.repo.GetUser(ctx, req.RecipientID); err != nil {
		return domain.Message{}, storeError(err, "recipient")
	}
	if req.ListingID != "" {
		if _, err := s.repo.GetListing(ctx, req.ListingID); err != nil {
			return domain.Message{}, storeError(err, "listing")
		}
	}

	msg, err := s.repo.CreateMessage(ctx, domain.Message{
		SenderID:    actor.UserID,
		RecipientID: req.RecipientID,
		ListingID:   req.ListingID,
		Body:        req.Body,
		CreatedAt:   s.clock(),
	})
	if err != nil {
		return domain.Message{}, storeError(err, "message")
	}
	return *msg, nil
}

func (s *Service) ListConversation(ctx context.Context, otherUserID string, limit int) (domain.ConversationResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ConversationResponse{}, err
	}
	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" {
		return domain.ConversationResponse{}, domain.BadRequest(nil, "user id is required")
	}
	messages, err := s.repo.ListConversation(ctx, actor.UserID, otherUserID, store.NormalizeLimit(limit, defaultConversationSize, maxConversationSize))
	if err != nil {
		return domain.ConversationResponse{}, storeError(err, "message")
	}
	return domain.ConversationResponse{Messages: messages}, nil
}
