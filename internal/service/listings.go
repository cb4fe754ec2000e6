package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
)

const (
	defaultListingLimit = 50
	maxListingLimit     = 200
	defaultUnit         = "kg"
)

func (s *Service) CreateListing(ctx context.Context, req domain.ListingCreateRequest) (domain.ListingResponse, error) {
	actor, err := requireRole(ctx, domain.RoleVendor)
	if err != nil {
		return domain.ListingResponse{}, err
	}

	req.CropType = strings.TrimSpace(req.CropType)
	req.Unit = strings.TrimSpace(req.Unit)
	req.Location = strings.TrimSpace(req.Location)
	req.QualityTier = strings.ToLower(strings.TrimSpace(req.QualityTier))
	if req.CropType == "" {
		return domain.ListingResponse{}, domain.BadRequest(nil, "crop_type is required")
	}
	if req.Quantity <= 0 {
		return domain.ListingResponse{}, domain.BadRequest(nil, "quantity must be greater than zero")
	}
	if req.BasePrice <= 0 {
		return domain.ListingResponse{}, domain.BadRequest(nil, "base_price must be greater than zero")
	}
	if !domain.IsQualityTier(req.QualityTier) {
		return domain.ListingResponse{}, domain.BadRequest(nil, "quality_tier must be one of premium, standard, basic")
	}
	if req.Unit == "" {
		req.Unit = defaultUnit
	}

	quote := s.pricing.CalculateFinalPrice(ctx, req.BasePrice, req.QualityTier, req.CropType, req.Location)
	now := s.clock()
	listing := domain.Listing{
		VendorID:          actor.UserID,
		CropType:          req.CropType,
		Quantity:          req.Quantity,
		Unit:              req.Unit,
		Location:          req.Location,
		BasePrice:         req.BasePrice,
		QualityTier:       req.QualityTier,
		QualityMultiplier: quote.QualityMultiplier,
		DemandAdjuster:    quote.DemandAdjuster,
		FinalPrice:        quote.FinalPrice,
		Status:            domain.ListingActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	created, err := s.repo.CreateListing(ctx, listing)
	if err != nil {
		return domain.ListingResponse{}, storeError(err, "listing")
	}

	s.logger.Info("listing created",
		zap.String("listing_id", created.ID),
		zap.String("vendor_id", created.VendorID),
		zap.Float64("final_price", created.FinalPrice),
	)
	return domain.ListingResponse{Listing: *created, Pricing: &quote}, nil
}

func (s *Service) UpdateListing(ctx context.Context, listingID string, req domain.ListingUpdateRequest) (domain.ListingResponse, error) {
	actor, err := requireRole(ctx, domain.RoleVendor, domain.RoleAdmin)
	if err != nil {
		return domain.ListingResponse{}, err
	}

	if req.BasePrice != nil && *req.BasePrice <= 0 {
		return domain.ListingResponse{}, domain.BadRequest(nil, "base_price must be greater than zero")
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return domain.ListingResponse{}, domain.BadRequest(nil, "quantity must be greater than zero")
	}
	tier := ""
	if req.QualityTier != nil {
		tier = strings.ToLower(strings.TrimSpace(*req.QualityTier))
		if !domain.IsQualityTier(tier) {
			return domain.ListingResponse{}, domain.BadRequest(nil, "quality_tier must be one of premium, standard, basic")
		}
	}

	existing, err := s.repo.GetListing(ctx, strings.TrimSpace(listingID))
	if err != nil {
		return domain.ListingResponse{}, storeError(err, "listing")
	}
	if existing.VendorID != actor.UserID && actor.Role != domain.RoleAdmin {
		return domain.ListingResponse{}, domain.Forbidden(domain.ErrNotParticipant, "only the listing owner can update it")
	}
	if existing.Status != domain.ListingActive {
		return domain.ListingResponse{}, domain.BadRequest(domain.ErrListingUnavailable, "listing is %s", existing.Status)
	}

	updated := *existing
	reprice := false
	if req.BasePrice != nil && *req.BasePrice != updated.BasePrice {
		updated.BasePrice = *req.BasePrice
		reprice = true
	}
	if tier != "" && tier != updated.QualityTier {
		updated.QualityTier = tier
		reprice = true
	}
	if req.Quantity != nil {
		updated.Quantity = *req.Quantity
	}
	if req.Location != nil {
		updated.Location = strings.TrimSpace(*req.Location)
	}

	var quote *domain.PriceQuote
	if reprice {
		q := s.pricing.CalculateFinalPrice(ctx, updated.BasePrice, updated.QualityTier, updated.CropType, updated.Location)
		updated.QualityMultiplier = q.QualityMultiplier
		updated.DemandAdjuster = q.DemandAdjuster
		updated.FinalPrice = q.FinalPrice
		quote = &q
	}
	updated.UpdatedAt = s.clock()

	saved, err := s.repo.UpdateListing(ctx, updated)
	if err != nil {
		return domain.ListingResponse{}, storeError(err, "listing")
	}
	return domain.ListingResponse{Listing: *saved, Pricing: quote}, nil
}

// WithdrawListing takes an active listing off the market and rejects every
// negotiation still open on it.
func (s *Service) WithdrawListing(ctx context.Context, listingID string) (domain.ListingResponse, error) {
	actor, err := requireRole(ctx, domain.RoleVendor, domain.RoleAdmin)
	if err != nil {
		return domain.ListingResponse{}, err
	}

	existing, err := s.repo.GetListing(ctx, strings.TrimSpace(listingID))
	if err != nil {
		return domain.ListingResponse{}, storeError(err, "listing")
	}
	if existing.VendorID != actor.UserID && actor.Role != domain.RoleAdmin {
		return domain.ListingResponse{}, domain.Forbidden(domain.ErrNotParticipant, "only the listing owner can withdraw it")
	}
	if existing.Status != domain.ListingActive {
		return domain.ListingResponse{}, domain.BadRequest(domain.ErrListingUnavailable, "listing is %s", existing.Status)
	}

	now := s.clock()
	updated := *existing
	updated.Status = domain.ListingUnavailable
	updated.UpdatedAt = now
	saved, err := s.repo.UpdateListing(ctx, updated)
	if err != nil {
		return domain.ListingResponse{}, storeError(err, "listing")
	}

	open, err := s.repo.ListActiveNegotiationsByListing(ctx, saved.ID)
	if err != nil {
		return domain.ListingResponse{}, storeError(err, "negotiation")
	}
	for _, n := range open {
		if _, err := s.repo.UpdateNegotiationStatus(ctx, n.ID, n.Version, domain.NegotiationRejected, now); err != nil {
			s.logger.Warn("failed to reject negotiation on withdrawn listing",
				zap.String("negotiation_id", n.ID),
				zap.String("listing_id", saved.ID),
				zap.Error(err),
			)
			continue
		}
		s.metrics.NegotiationClosed(domain.NegotiationRejected)
	}

	s.logger.Info("listing withdrawn", zap.String("listing_id", saved.ID), zap.Int("negotiations_closed", len(open)))
	return domain.ListingResponse{Listing: *saved}, nil
}

func (s *Service) GetListing(ctx context.Context, listingID string) (domain.Listing, error) {
	listing, err := s.repo.GetListing(ctx, strings.TrimSpace(listingID))
	if err != nil {
		return domain.Listing{}, storeError(err, "listing")
	}
	return *listing, nil
}

func (s *Service) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	filter.CropType = strings.TrimSpace(filter.CropType)
	filter.Status = strings.TrimSpace(filter.Status)
	filter.Limit = store.NormalizeLimit(filter.Limit, defaultListingLimit, maxListingLimit)
	listings, err := s.repo.ListListings(ctx, filter)
	if err != nil {
		return nil, storeError(err, "listing")
	}
	return listings, nil
}
