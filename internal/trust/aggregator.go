// Package trust computes vendor reputation from ratings, reply latency and
// transaction completion.
package trust

import (
	"math"
	"sort"
	"time"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

// ResponseWindow bounds the message history used for the response sub-score.
const ResponseWindow = 30 * 24 * time.Hour

const (
	WeightDelivery    = 0.4
	WeightQuality     = 0.3
	WeightResponse    = 0.2
	WeightFairPricing = 0.1
)

const (
	neutralResponseScore    = 4.0
	neutralFairPricingScore = 4.0
	flagScoreThreshold      = 3.0
	flagMinTransactions     = 10
)

type Inputs struct {
	VendorID string
	Ratings  []domain.Rating
	Messages []domain.Message
	Counts   domain.TransactionCounts
	Previous *domain.TrustScore
	Now      time.Time
}

// Calculate derives a vendor's trust score. Badges held in Previous are
// always carried over; nothing here revokes a badge.
func Calculate(in Inputs) domain.TrustScore {
	score := domain.TrustScore{
		VendorID:         in.VendorID,
		TransactionCount: in.Counts.Completed,
		RatingCount:      len(in.Ratings),
		Badges:           carriedBadges(in.Previous),
		UpdatedAt:        in.Now,
	}
	if len(in.Ratings) == 0 {
		return score
	}

	score.DeliveryScore = round2(meanRating(in.Ratings, func(r domain.Rating) int { return r.DeliveryRating }))
	score.QualityScore = round2(meanRating(in.Ratings, func(r domain.Rating) int { return r.QualityRating }))
	score.ResponseScore = ResponseScore(ResponseLatencies(in.VendorID, in.Messages))
	score.FairPricingScore = round2(FairPricingScore(in.Counts))
	score.OverallScore = round2(
		WeightDelivery*score.DeliveryScore +
			WeightQuality*score.QualityScore +
			WeightResponse*score.ResponseScore +
			WeightFairPricing*score.FairPricingScore,
	)
	score.Badges = mergeBadges(score.Badges, EarnedBadges(score))
	score.FlaggedForReview = ShouldFlag(score)
	return score
}

func meanRating(ratings []domain.Rating, pick func(domain.Rating) int) float64 {
	total := 0
	for _, r := range ratings {
		total += pick(r)
	}
	return float64(total) / float64(len(ratings))
}

// ResponseLatencies pairs each vendor reply with the latest incoming message
// from the same counterpart that precedes it.
func ResponseLatencies(vendorID string, messages []domain.Message) []time.Duration {
	ordered := make([]domain.Message, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	pending := make(map[string]time.Time)
	latencies := make([]time.Duration, 0, len(ordered)/2)
	for _, msg := range ordered {
		switch {
		case msg.RecipientID == vendorID && msg.SenderID != vendorID:
			pending[msg.SenderID] = msg.CreatedAt
		case msg.SenderID == vendorID && msg.RecipientID != vendorID:
			askedAt, waiting := pending[msg.RecipientID]
			if !waiting {
				continue
			}
			latencies = append(latencies, msg.CreatedAt.Sub(askedAt))
			delete(pending, msg.RecipientID)
		}
	}
	return latencies
}

func ResponseScore(latencies []time.Duration) float64 {
	if len(latencies) == 0 {
		return neutralResponseScore
	}
	total := 0.0
	for _, l := range latencies {
		total += l.Minutes()
	}
	return ResponseBucket(total / float64(len(latencies)))
}

func ResponseBucket(avgMinutes float64) float64 {
	switch {
	case avgMinutes < 30:
		return 5.0
	case avgMinutes < 60:
		return 4.5
	case avgMinutes < 120:
		return 4.0
	case avgMinutes < 240:
		return 3.5
	case avgMinutes < 480:
		return 3.0
	default:
		return 2.5
	}
}

// FairPricingScore is a completion-rate proxy; it does not look at prices.
func FairPricingScore(counts domain.TransactionCounts) float64 {
	if counts.Total <= 0 {
		return neutralFairPricingScore
	}
	return float64(counts.Completed) / float64(counts.Total) * 5
}

func EarnedBadges(score domain.TrustScore) []string {
	badges := make([]string, 0, 5)
	tx := score.TransactionCount
	if score.OverallScore >= 4.5 && tx >= 20 {
		badges = append(badges, domain.BadgeTrustedVendor)
	}
	if score.OverallScore >= 4.0 && tx >= 50 {
		badges = append(badges, domain.BadgeVerifiedSeller)
	}
	if score.OverallScore >= 4.5 && tx >= 5 && tx < 20 {
		badges = append(badges, domain.BadgeRisingStar)
	}
	if score.QualityScore >= 4.8 {
		badges = append(badges, domain.BadgeQualityChampion)
	}
	if score.ResponseScore >= 4.8 {
		badges = append(badges, domain.BadgeFastResponder)
	}
	return badges
}

func ShouldFlag(score domain.TrustScore) bool {
	return score.OverallScore < flagScoreThreshold && score.TransactionCount >= flagMinTransactions
}

func carriedBadges(previous *domain.TrustScore) []string {
	if previous == nil {
		return []string{}
	}
	return mergeBadges(nil, previous.Badges)
}

func mergeBadges(held []string, earned []string) []string {
	out := make([]string, 0, len(held)+len(earned))
	seen := make(map[string]struct{}, len(held)+len(earned))
	for _, list := range [][]string{held, earned} {
		for _, b := range list {
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			out = append(out, b)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
