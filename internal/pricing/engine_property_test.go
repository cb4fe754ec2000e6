package pricing

import (
	"context"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

func TestFinalPriceFormulaProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("final price is base x quality x demand rounded to cents", prop.ForAll(
		func(base float64, tierIndex int, count int) bool {
			tier := []string{domain.QualityPremium, domain.QualityStandard, domain.QualityBasic}[tierIndex]
			engine := NewEngine(&stubDemand{count: count})
			quote := engine.CalculateFinalPrice(context.Background(), base, tier, "wheat", "")

			exact := base * QualityMultiplier(tier) * DemandAdjuster(count)
			if math.Abs(quote.FinalPrice-exact) > 0.005+1e-9 {
				return false
			}
			cents := quote.FinalPrice * 100
			return math.Abs(cents-math.Round(cents)) < 1e-6
		},
		gen.Float64Range(0.01, 100000),
		gen.IntRange(0, 2),
		gen.IntRange(0, 250),
	))

	properties.TestingRun(t)
}

func TestOfferValidationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("offer at listing price is valid with zero difference", prop.ForAll(
		func(listing float64) bool {
			v := ValidateOfferPrice(listing, listing)
			return v.Valid && v.PercentDiff == 0
		},
		gen.Float64Range(0.01, 100000),
	))

	properties.Property("120% of listing is too high and 50% is too low", prop.ForAll(
		func(listing float64) bool {
			high := ValidateOfferPrice(1.2*listing, listing)
			low := ValidateOfferPrice(0.5*listing, listing)
			return !high.Valid && !low.Valid
		},
		gen.Float64Range(0.01, 100000),
	))

	properties.Property("offers at or above listing get the listing price back", prop.ForAll(
		func(listing float64, markup float64) bool {
			c := GenerateCounterOffer(listing*(1+markup), listing)
			return c.SuggestedPrice == listing && c.Confidence == domain.ConfidenceVeryHigh
		},
		gen.Float64Range(0.01, 100000),
		gen.Float64Range(0, 2),
	))

	properties.TestingRun(t)
}
