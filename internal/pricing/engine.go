package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/cache"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

// DemandWindow is the trailing window counted by the demand adjuster.
const DemandWindow = 7 * 24 * time.Hour

// demandCacheKey is global: the adjuster does not filter by crop or location.
const demandCacheKey = "global"

var demandStatuses = []string{domain.TxConfirmed, domain.TxInTransit, domain.TxDelivered}

type DemandCounter interface {
	CountTransactionsSince(ctx context.Context, since time.Time, statuses []string) (int, error)
}

type Engine struct {
	demand     DemandCounter
	cache      cache.DemandCache
	cacheTTL   time.Duration
	now        func() time.Time
	logger     *zap.Logger
	onFallback func()
}

type Option func(*Engine)

func WithCache(c cache.DemandCache, ttl time.Duration) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithFallbackHook registers fn to run whenever the demand lookup fails.
func WithFallbackHook(fn func()) Option {
	return func(e *Engine) {
		e.onFallback = fn
	}
}

func NewEngine(demand DemandCounter, opts ...Option) *Engine {
	e := &Engine{
		demand:   demand,
		cache:    cache.Noop{},
		cacheTTL: time.Minute,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "pricing"))
	return e
}

func QualityMultiplier(tier string) float64 {
	switch tier {
	case domain.QualityPremium:
		return 1.20
	case domain.QualityBasic:
		return 0.85
	default:
		return 1.00
	}
}

func DemandAdjuster(recentTransactions int) float64 {
	switch {
	case recentTransactions < 10:
		return 0.85
	case recentTransactions < 50:
		return 0.95
	case recentTransactions < 100:
		return 1.05
	default:
		return 1.15
	}
}

// CalculateFinalPrice never fails: a broken demand lookup degrades to a
// neutral adjuster of 1.0.
func (e *Engine) CalculateFinalPrice(ctx context.Context, basePrice float64, qualityTier string, cropType string, location string) domain.PriceQuote {
	qualityMultiplier := QualityMultiplier(qualityTier)

	adjuster := 1.0
	count, err := e.recentTransactions(ctx)
	fallback := err != nil
	if fallback {
		e.logger.Warn("demand lookup failed, using neutral adjuster",
			zap.String("crop_type", cropType),
			zap.String("location", location),
			zap.Error(err),
		)
		if e.onFallback != nil {
			e.onFallback()
		}
	} else {
		adjuster = DemandAdjuster(count)
	}

	base := decimal.NewFromFloat(basePrice)
	afterQuality := base.Mul(decimal.NewFromFloat(qualityMultiplier))
	final := afterQuality.Mul(decimal.NewFromFloat(adjuster)).Round(2)

	return domain.PriceQuote{
		FinalPrice:        final.InexactFloat64(),
		QualityMultiplier: qualityMultiplier,
		DemandAdjuster:    adjuster,
		Breakdown: domain.PriceBreakdown{
			BasePrice:          basePrice,
			QualityTier:        qualityTier,
			RecentTransactions: count,
			DemandFallback:     fallback,
			Steps: []domain.PriceStep{
				{Label: "base_price", Multiplier: 1, Result: base.Round(2).InexactFloat64()},
				{Label: "quality_" + tierLabel(qualityTier), Multiplier: qualityMultiplier, Result: afterQuality.Round(2).InexactFloat64()},
				{Label: "demand", Multiplier: adjuster, Result: final.InexactFloat64()},
			},
			FairRange: domain.PriceRange{
				Min: final.Mul(decimal.NewFromFloat(0.95)).Round(2).InexactFloat64(),
				Max: final.Mul(decimal.NewFromFloat(1.05)).Round(2).InexactFloat64(),
			},
		},
	}
}

func (e *Engine) recentTransactions(ctx context.Context) (int, error) {
	if count, ok, err := e.cache.GetDemandCount(ctx, demandCacheKey); err == nil && ok {
		return count, nil
	}
	if e.demand == nil {
		return 0, fmt.Errorf("no demand source configured")
	}

	count, err := e.demand.CountTransactionsSince(ctx, e.now().Add(-DemandWindow), demandStatuses)
	if err != nil {
		return 0, err
	}
	if err := e.cache.SetDemandCount(ctx, demandCacheKey, count, e.cacheTTL); err != nil {
		e.logger.Debug("demand cache write failed", zap.Error(err))
	}
	return count, nil
}

func (e *Engine) ValidateOfferPrice(offerPrice float64, listingPrice float64) domain.OfferValidation {
	return ValidateOfferPrice(offerPrice, listingPrice)
}

func (e *Engine) GenerateCounterOffer(buyerOffer float64, listingPrice float64) domain.CounterOffer {
	return GenerateCounterOffer(buyerOffer, listingPrice)
}

// ValidateOfferPrice classifies an offer against the listing price. It only
// advises; callers decide whether an invalid offer blocks anything.
func ValidateOfferPrice(offerPrice float64, listingPrice float64) domain.OfferValidation {
	if offerPrice <= 0 || listingPrice <= 0 {
		return domain.OfferValidation{Valid: false, Reason: "offer and listing price must be positive"}
	}

	offer := decimal.NewFromFloat(offerPrice)
	listing := decimal.NewFromFloat(listingPrice)
	percentDiff := offer.Sub(listing).Div(listing).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()

	if offer.GreaterThan(listing.Mul(decimal.NewFromFloat(1.10))) {
		suggestion := listing.Round(2).InexactFloat64()
		return domain.OfferValidation{
			Valid:       false,
			Reason:      "offer is too high: more than 10% above the listing price",
			PercentDiff: percentDiff,
			Suggestion:  &suggestion,
		}
	}

	floor := listing.Mul(decimal.NewFromFloat(0.70))
	if offer.LessThan(floor) {
		suggestion := floor.Round(2).InexactFloat64()
		return domain.OfferValidation{
			Valid:       false,
			Reason:      "offer is too low: more than 30% below the listing price",
			PercentDiff: percentDiff,
			Suggestion:  &suggestion,
		}
	}

	return domain.OfferValidation{
		Valid:       true,
		Reason:      fmt.Sprintf("offer is within the accepted range (%.2f%% from listing price)", percentDiff),
		PercentDiff: percentDiff,
	}
}

// GenerateCounterOffer suggests a vendor counter in whole currency units.
func GenerateCounterOffer(buyerOffer float64, listingPrice float64) domain.CounterOffer {
	if buyerOffer >= listingPrice {
		return domain.CounterOffer{
			SuggestedPrice: listingPrice,
			Reasoning:      "offer meets the listing price, accept at listing price",
			Confidence:     domain.ConfidenceVeryHigh,
		}
	}
	if listingPrice <= 0 {
		return domain.CounterOffer{
			SuggestedPrice: 0,
			Reasoning:      "listing has no price to negotiate from",
			Confidence:     domain.ConfidenceMedium,
		}
	}

	offer := decimal.NewFromFloat(buyerOffer)
	listing := decimal.NewFromFloat(listingPrice)
	percentBelow := listing.Sub(offer).Div(listing).Mul(decimal.NewFromInt(100))

	switch {
	case percentBelow.GreaterThan(decimal.NewFromInt(20)):
		return domain.CounterOffer{
			SuggestedPrice: offer.Add(listing).Div(decimal.NewFromInt(2)).Round(0).InexactFloat64(),
			Reasoning:      fmt.Sprintf("offer is %s%% below listing, meet halfway", percentBelow.Round(1).String()),
			Confidence:     domain.ConfidenceMedium,
		}
	case percentBelow.GreaterThan(decimal.NewFromInt(10)):
		return domain.CounterOffer{
			SuggestedPrice: listing.Mul(decimal.NewFromFloat(0.95)).Round(0).InexactFloat64(),
			Reasoning:      fmt.Sprintf("offer is %s%% below listing, counter with a 5%% discount", percentBelow.Round(1).String()),
			Confidence:     domain.ConfidenceHigh,
		}
	default:
		return domain.CounterOffer{
			SuggestedPrice: listing.Mul(decimal.NewFromFloat(0.98)).Round(0).InexactFloat64(),
			Reasoning:      fmt.Sprintf("offer is %s%% below listing, counter with a 2%% discount", percentBelow.Round(1).String()),
			Confidence:     domain.ConfidenceHigh,
		}
	}
}

func tierLabel(tier string) string {
	if domain.IsQualityTier(tier) {
		return tier
	}
	return "default"
}
