package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
)

const (
	defaultNegotiationLimit = 50
	maxNegotiationLimit     = 200
	maxReasoningLength      = 500
)

// CreateNegotiation opens a negotiation on an active listing with the
// buyer's first offer and returns an advisory counter for the vendor.
func (s *Service) CreateNegotiation(ctx context.Context, req domain.NegotiationCreateRequest) (domain.NegotiationResponse, error) {
	actor, err := requireRole(ctx, domain.RoleBuyer)
	if err != nil {
		return domain.NegotiationResponse{}, err
	}

	req.ListingID = strings.TrimSpace(req.ListingID)
	req.Reasoning = strings.TrimSpace(req.Reasoning)
	if req.ListingID == "" {
		return domain.NegotiationResponse{}, domain.BadRequest(nil, "listing_id is required")
	}
	if req.Amount <= 0 {
		return domain.NegotiationResponse{}, domain.BadRequest(nil, "amount must be greater than zero")
	}
	if len(req.Reasoning) > maxReasoningLength {
		return domain.NegotiationResponse{}, domain.BadRequest(nil, "reasoning must be at most %d characters", maxReasoningLength)
	}

	listing, err := s.repo.GetListing(ctx, req.ListingID)
	if err != nil {
		return domain.NegotiationResponse{}, storeError(err, "listing")
	}
	if listing.VendorID == actor.UserID {
		return domain.NegotiationResponse{}, domain.Forbidden(domain.ErrSelfNegotiation, "vendors cannot negotiate on their own listing")
	}
	if listing.Status != domain.ListingActive {
		return domain.NegotiationResponse{}, domain.BadRequest(domain.ErrListingUnavailable, "listing is %s", listing.Status)
	}

	validation := s.pricing.ValidateOfferPrice(req.Amount, listing.FinalPrice)
	if !validation.Valid {
		return domain.NegotiationResponse{}, domain.BadRequest(domain.ErrOfferOutOfRange, "%s", validation.Reason)
	}

	now := s.clock()
	negotiation := domain.Negotiation{
		ListingID: listing.ID,
		BuyerID:   actor.UserID,
		VendorID:  listing.VendorID,
		Status:    domain.NegotiationActive,
		ExpiresAt: now.Add(s.negotiationTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	first := domain.Offer{
		ProposedBy: actor.UserID,
		Amount:     req.Amount,
		Reasoning:  req.Reasoning,
		OfferType:  domain.OfferBuyer,
		CreatedAt:  now,
	}
	created, err := s.repo.CreateNegotiation(ctx, negotiation, first)
	if errors.Is(err, store.ErrConflict) {
		return domain.NegotiationResponse{}, domain.Conflict(domain.ErrDuplicateNegotiation, "an active negotiation already exists for this listing")
	}
	if err != nil {
		return domain.NegotiationResponse{}, storeError(err, "negotiation")
	}

	suggestion := s.pricing.GenerateCounterOffer(req.Amount, listing.FinalPrice)
	s.logger.Info("negotiation opened",
		zap.String("negotiation_id", created.ID),
		zap.String("listing_id", listing.ID),
		zap.Float64("amount", req.Amount),
	)
	return domain.NegotiationResponse{
		Negotiation: *created,
		Suggestion:  &suggestion,
		Validation:  &validation,
	}, nil
}

// SubmitCounterOffer appends an offer from either party. The offer type
// follows the role the actor holds on this negotiation.
func (s *Service) SubmitCounterOffer(ctx context.Context, negotiationID string, req domain.CounterOfferRequest) (domain.NegotiationResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.NegotiationResponse{}, err
	}

	req.Reasoning = strings.TrimSpace(req.Reasoning)
	if req.Amount <= 0 {
		return domain.NegotiationResponse{}, domain.BadRequest(nil, "amount must be greater than zero")
	}
	if len(req.Reasoning) > maxReasoningLength {
		return domain.NegotiationResponse{}, domain.BadRequest(nil, "reasoning must be at most %d characters", maxReasoningLength)
	}

	now := s.clock()
	n, err := s.openNegotiation(ctx, negotiationID, actor, now, false)
	if err != nil {
		return domain.NegotiationResponse{}, err
	}
	if s.maxOfferRounds > 0 && len(n.Offers) >= s.maxOfferRounds {
		return domain.NegotiationResponse{}, domain.TooManyRequests(domain.ErrTooManyRounds, "negotiation reached the limit of %d offers", s.maxOfferRounds)
	}

	offerType := domain.OfferBuyer
	if actor.UserID == n.VendorID {
		offerType = domain.OfferVendorCounter
	}
	updated, err := s.repo.AppendOffer(ctx, n.ID, n.Version, domain.Offer{
		ProposedBy: actor.UserID,
		Amount:     req.Amount,
		Reasoning:  req.Reasoning,
		OfferType:  offerType,
		CreatedAt:  now,
	})
	if err != nil {
		return domain.NegotiationResponse{}, storeError(err, "negotiation")
	}

	resp := domain.NegotiationResponse{Negotiation: *updated}
	if listing, err := s.repo.GetListing(ctx, n.ListingID); err == nil {
		validation := s.pricing.ValidateOfferPrice(req.Amount, listing.FinalPrice)
		resp.Validation = &validation
		if offerType == domain.OfferBuyer {
			suggestion := s.pricing.GenerateCounterOffer(req.Amount, listing.FinalPrice)
			resp.Suggestion = &suggestion
		}
	} else {
		s.logger.Warn("listing lookup failed after counter-offer", zap.String("listing_id", n.ListingID), zap.Error(err))
	}
	return resp, nil
}

// AcceptOffer closes the negotiation at its current offer and opens the
// resulting transaction. Either party may accept.
func (s *Service) AcceptOffer(ctx context.Context, negotiationID string) (domain.NegotiationResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.NegotiationResponse{}, err
	}

	now := s.clock()
	n, err := s.openNegotiation(ctx, negotiationID, actor, now, false)
	if err != nil {
		return domain.NegotiationResponse{}, err
	}
	if err := s.negotiations.Check(n.Status, domain.NegotiationAccepted); err != nil {
		return domain.NegotiationResponse{}, err
	}
	listing, err := s.repo.GetListing(ctx, n.ListingID)
	if err != nil {
		return domain.NegotiationResponse{}, storeError(err, "listing")
	}
	if listing.Status != domain.ListingActive {
		return domain.NegotiationResponse{}, domain.BadRequest(domain.ErrListingUnavailable, "listing is %s", listing.Status)
	}

	accepted, tx, err := s.repo.AcceptNegotiation(ctx, n.ID, n.Version, domain.Transaction{
		ListingID:   listing.ID,
		BuyerID:     n.BuyerID,
		VendorID:    n.VendorID,
		AgreedPrice: n.CurrentOffer,
		Quantity:    listing.Quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.NegotiationResponse{}, storeError(err, "negotiation")
	}

	s.metrics.NegotiationClosed(domain.NegotiationAccepted)
	s.metrics.TransactionMoved(tx.Status)
	s.logger.Info("negotiation accepted",
		zap.String("negotiation_id", accepted.ID),
		zap.String("transaction_id", tx.ID),
		zap.String("accepted_by", actor.UserID),
		zap.Float64("agreed_price", tx.AgreedPrice),
	)
	return domain.NegotiationResponse{Negotiation: *accepted, Transaction: tx}, nil
}

func (s *Service) RejectOffer(ctx context.Context, negotiationID string) (domain.Negotiation, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Negotiation{}, err
	}
	return s.closeNegotiation(ctx, negotiationID, actor, domain.NegotiationRejected)
}

// WithdrawNegotiation lets the buyer walk away from an open negotiation.
func (s *Service) WithdrawNegotiation(ctx context.Context, negotiationID string) (domain.Negotiation, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Negotiation{}, err
	}
	return s.closeNegotiation(ctx, negotiationID, actor, domain.NegotiationWithdrawn)
}

// ExpireNegotiations closes every active negotiation past its deadline.
func (s *Service) ExpireNegotiations(ctx context.Context) (int, error) {
	count, err := s.repo.ExpireNegotiations(ctx, s.clock())
	if err != nil {
		return 0, storeError(err, "negotiation")
	}
	return count, nil
}

func (s *Service) GetNegotiation(ctx context.Context, negotiationID string) (domain.Negotiation, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Negotiation{}, err
	}
	n, err := s.repo.GetNegotiation(ctx, strings.TrimSpace(negotiationID))
	if err != nil {
		return domain.Negotiation{}, storeError(err, "negotiation")
	}
	if !n.IsParticipant(actor.UserID) && actor.Role != domain.RoleAdmin {
		return domain.Negotiation{}, domain.Forbidden(domain.ErrNotParticipant, "not a participant in this negotiation")
	}
	return *n, nil
}

// ListNegotiations returns the actor's negotiations; admins see all of them.
func (s *Service) ListNegotiations(ctx context.Context, status string, limit int) (domain.NegotiationListResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.NegotiationListResponse{}, err
	}
	userID := actor.UserID
	if actor.Role == domain.RoleAdmin {
		userID = ""
	}
	items, err := s.repo.ListNegotiations(ctx, userID, strings.TrimSpace(status), store.NormalizeLimit(limit, defaultNegotiationLimit, maxNegotiationLimit))
	if err != nil {
		return domain.NegotiationListResponse{}, storeError(err, "negotiation")
	}
	return domain.NegotiationListResponse{Negotiations: items}, nil
}

// SuggestCounterOffer computes a counter for the negotiation's current
// offer. Nothing is persisted.
func (s *Service) SuggestCounterOffer(ctx context.Context, negotiationID string) (domain.CounterOffer, error) {
	n, err := s.GetNegotiation(ctx, negotiationID)
	if err != nil {
		return domain.CounterOffer{}, err
	}
	listing, err := s.repo.GetListing(ctx, n.ListingID)
	if err != nil {
		return domain.CounterOffer{}, storeError(err, "listing")
	}
	return s.pricing.GenerateCounterOffer(n.CurrentOffer, listing.FinalPrice), nil
}

func (s *Service) closeNegotiation(ctx context.Context, negotiationID string, actor domain.Actor, status string) (domain.Negotiation, error) {
	now := s.clock()
	n, err := s.openNegotiation(ctx, negotiationID, actor, now, status == domain.NegotiationWithdrawn)
	if err != nil {
		return domain.Negotiation{}, err
	}
	if err := s.negotiations.Check(n.Status, status); err != nil {
		return domain.Negotiation{}, err
	}

	updated, err := s.repo.UpdateNegotiationStatus(ctx, n.ID, n.Version, status, now)
	if err != nil {
		return domain.Negotiation{}, storeError(err, "negotiation")
	}
	s.metrics.NegotiationClosed(status)
	s.logger.Info("negotiation closed",
		zap.String("negotiation_id", updated.ID),
		zap.String("status", status),
		zap.String("actor_id", actor.UserID),
	)
	return *updated, nil
}

// openNegotiation loads a negotiation the actor takes part in and checks it
// is still open. A negotiation found past its deadline is expired on the
// spot and the call fails.
func (s *Service) openNegotiation(ctx context.Context, negotiationID string, actor domain.Actor, now time.Time, buyerOnly bool) (*domain.Negotiation, error) {
	negotiationID = strings.TrimSpace(negotiationID)
	if negotiationID == "" {
		return nil, domain.BadRequest(nil, "negotiation id is required")
	}
	n, err := s.repo.GetNegotiation(ctx, negotiationID)
	if err != nil {
		return nil, storeError(err, "negotiation")
	}
	if !n.IsParticipant(actor.UserID) {
		return nil, domain.Forbidden(domain.ErrNotParticipant, "not a participant in this negotiation")
	}
	if buyerOnly && actor.UserID != n.BuyerID {
		return nil, domain.Forbidden(domain.ErrNotParticipant, "only the buyer can withdraw a negotiation")
	}
	if n.Status != domain.NegotiationActive {
		return nil, domain.BadRequest(domain.ErrNegotiationClosed, "negotiation is %s", n.Status)
	}
	if n.IsExpired(now) {
		s.expireNow(ctx, n, now)
		return nil, domain.BadRequest(domain.ErrNegotiationExpired, "negotiation expired at %s", n.ExpiresAt.Format(time.RFC3339))
	}
	return n, nil
}

func (s *Service) expireNow(ctx context.Context, n *domain.Negotiation, now time.Time) {
	_, err := s.repo.UpdateNegotiationStatus(ctx, n.ID, n.Version, domain.NegotiationExpired, now)
	switch {
	case err == nil:
		s.metrics.NegotiationClosed(domain.NegotiationExpired)
	case errors.Is(err, store.ErrConflict):
		// already closed by the sweep or the other party
	default:
		s.logger.Warn("lazy expiry failed", zap.String("negotiation_id", n.ID), zap.Error(err))
	}
}
