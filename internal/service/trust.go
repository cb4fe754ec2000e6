package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/trust"
)

const maxCommentLength = 1000

// SubmitRating records the buyer's rating of a finished transaction and
// recomputes the vendor's trust score. A failed recompute does not fail the
// rating.
func (s *Service) SubmitRating(ctx context.Context, req domain.RatingCreateRequest) (domain.RatingResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.RatingResponse{}, err
	}

	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.Comment = strings.TrimSpace(req.Comment)
	if req.TransactionID == "" {
		return domain.RatingResponse{}, domain.BadRequest(nil, "transaction_id is required")
	}
	if !validStars(req.DeliveryRating) || !validStars(req.QualityRating) {
		return domain.RatingResponse{}, domain.BadRequest(nil, "ratings must be between 1 and 5")
	}
	if len(req.Comment) > maxCommentLength {
		return domain.RatingResponse{}, domain.BadRequest(nil, "comment must be at most %d characters", maxCommentLength)
	}

	tx, err := s.repo.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return domain.RatingResponse{}, storeError(err, "transaction")
	}
	if tx.BuyerID != actor.UserID {
		return domain.RatingResponse{}, domain.Forbidden(domain.ErrNotParticipant, "only the buyer can rate this transaction")
	}
	if tx.Status != domain.TxDelivered && tx.Status != domain.TxResolved {
		return domain.RatingResponse{}, domain.BadRequest(domain.ErrInvalidTransition, "transaction is %s, ratings open after delivery", tx.Status)
	}

	rating, err := s.repo.CreateRating(ctx, domain.Rating{
		TransactionID:  tx.ID,
		BuyerID:        tx.BuyerID,
		VendorID:       tx.VendorID,
		DeliveryRating: req.DeliveryRating,
		QualityRating:  req.QualityRating,
		Comment:        req.Comment,
		CreatedAt:      s.clock(),
	})
	if errors.Is(err, store.ErrConflict) {
		return domain.RatingResponse{}, domain.Conflict(domain.ErrDuplicateRating, "transaction %s is already rated", tx.ID)
	}
	if err != nil {
		return domain.RatingResponse{}, storeError(err, "rating")
	}

	resp := domain.RatingResponse{Rating: *rating}
	if score := s.refreshTrustScore(ctx, tx.VendorID); score != nil {
		resp.TrustScore = score
	}
	return resp, nil
}

// CalculateTrustScore recomputes and stores a vendor's trust score.
// Recomputes for the same vendor run one at a time.
func (s *Service) CalculateTrustScore(ctx context.Context, vendorID string) (domain.TrustScore, error) {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return domain.TrustScore{}, domain.BadRequest(nil, "vendor id is required")
	}

	unlock := s.vendorLocks.Lock(vendorID)
	defer unlock()

	now := s.clock()
	ratings, err := s.repo.ListVendorRatings(ctx, vendorID)
	if err != nil {
		return domain.TrustScore{}, storeError(err, "rating")
	}
	messages, err := s.repo.ListVendorMessages(ctx, vendorID, now.Add(-trust.ResponseWindow))
	if err != nil {
		return domain.TrustScore{}, storeError(err, "message")
	}
	counts, err := s.repo.CountVendorTransactions(ctx, vendorID)
	if err != nil {
		return domain.TrustScore{}, storeError(err, "transaction")
	}
	previous, err := s.repo.GetTrustScore(ctx, vendorID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.TrustScore{}, storeError(err, "trust score")
	}

	score := trust.Calculate(trust.Inputs{
		VendorID: vendorID,
		Ratings:  ratings,
		Messages: messages,
		Counts:   counts,
		Previous: previous,
		Now:      now,
	})
	if err := s.repo.UpsertTrustScore(ctx, score); err != nil {
		return domain.TrustScore{}, storeError(err, "trust score")
	}
	if err := s.trustCache.SetTrustScore(ctx, &score, s.trustTTL); err != nil {
		s.logger.Warn("trust cache write failed", zap.String("vendor_id", vendorID), zap.Error(err))
	}
	if score.FlaggedForReview && (previous == nil || !previous.FlaggedForReview) {
		s.logger.Warn("vendor flagged for review",
			zap.String("vendor_id", vendorID),
			zap.Float64("overall_score", score.OverallScore),
			zap.Int("transaction_count", score.TransactionCount),
		)
	}
	return score, nil
}

// GetTrustScore reads through the cache. A vendor without a stored score is
// scored on demand; ids that are not vendor accounts are 404.
func (s *Service) GetTrustScore(ctx context.Context, vendorID string) (domain.TrustScore, error) {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return domain.TrustScore{}, domain.BadRequest(nil, "vendor id is required")
	}

	cached, ok, err := s.trustCache.GetTrustScore(ctx, vendorID)
	if err != nil {
		s.logger.Debug("trust cache read failed", zap.String("vendor_id", vendorID), zap.Error(err))
	}
	if ok && cached != nil {
		return *cached, nil
	}

	stored, err := s.repo.GetTrustScore(ctx, vendorID)
	if errors.Is(err, store.ErrNotFound) {
		if err := s.requireVendorAccount(ctx, vendorID); err != nil {
			return domain.TrustScore{}, err
		}
		return s.CalculateTrustScore(ctx, vendorID)
	}
	if err != nil {
		return domain.TrustScore{}, storeError(err, "trust score")
	}
	if err := s.trustCache.SetTrustScore(ctx, stored, s.trustTTL); err != nil {
		s.logger.Debug("trust cache write failed", zap.String("vendor_id", vendorID), zap.Error(err))
	}
	return *stored, nil
}

func (s *Service) RecalculateTrustScore(ctx context.Context, vendorID string) (domain.TrustScore, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.TrustScore{}, err
	}
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return domain.TrustScore{}, domain.BadRequest(nil, "vendor id is required")
	}
	if err := s.requireVendorAccount(ctx, vendorID); err != nil {
		return domain.TrustScore{}, err
	}
	return s.CalculateTrustScore(ctx, vendorID)
}

func (s *Service) requireVendorAccount(ctx context.Context, vendorID string) error {
	user, err := s.repo.GetUser(ctx, vendorID)
	if err != nil {
		return storeError(err, "vendor")
	}
	if user.Role != domain.RoleVendor {
		return domain.NotFound("vendor not found")
	}
	return nil
}

// refreshTrustScore recomputes off the critical path. Failures are logged
// and counted, never returned.
func (s *Service) refreshTrustScore(ctx context.Context, vendorID string) *domain.TrustScore {
	score, err := s.CalculateTrustScore(ctx, vendorID)
	if err != nil {
		s.metrics.TrustRecomputeFailed()
		s.logger.Warn("trust score recompute failed", zap.String("vendor_id", vendorID), zap.Error(err))
		if cerr := s.trustCache.InvalidateTrustScore(ctx, vendorID); cerr != nil {
			s.logger.Debug("trust cache invalidate failed", zap.String("vendor_id", vendorID), zap.Error(cerr))
		}
		return nil
	}
	return &score
}

func validStars(v int) bool {
	return v >= 1 && v <= 5
}
