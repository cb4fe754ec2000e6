package service

import (
	"context"
	"strings"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

// QuotePrice prices a hypothetical listing without storing anything.
func (s *Service) QuotePrice(ctx context.Context, req domain.PriceQuoteRequest) (domain.PriceQuote, error) {
	if req.BasePrice <= 0 {
		return domain.PriceQuote{}, domain.BadRequest(nil, "base_price must be greater than zero")
	}
	tier := strings.ToLower(strings.TrimSpace(req.QualityTier))
	return s.pricing.CalculateFinalPrice(ctx, req.BasePrice, tier, strings.TrimSpace(req.CropType), strings.TrimSpace(req.Location)), nil
}

func (s *Service) ValidateOffer(_ context.Context, req domain.OfferCheckRequest) (domain.OfferValidation, error) {
	if req.OfferPrice <= 0 || req.ListingPrice <= 0 {
		return domain.OfferValidation{}, domain.BadRequest(nil, "offer_price and listing_price must be greater than zero")
	}
	return s.pricing.ValidateOfferPrice(req.OfferPrice, req.ListingPrice), nil
}

func (s *Service) CounterOffer(_ context.Context, req domain.OfferCheckRequest) (domain.CounterOffer, error) {
	if req.OfferPrice <= 0 || req.ListingPrice <= 0 {
		return domain.CounterOffer{}, domain.BadRequest(nil, "offer_price and listing_price must be greater than zero")
	}
	return s.pricing.GenerateCounterOffer(req.OfferPrice, req.ListingPrice), nil
}
