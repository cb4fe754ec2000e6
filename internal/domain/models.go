package domain

import "time"

type Listing struct {
	ID                string    `json:"id"`
	VendorID          string    `json:"vendor_id"`
	CropType          string    `json:"crop_type"`
	Quantity          float64   `json:"quantity"`
	Unit              string    `json:"unit"`
	Location          string    `json:"location"`
	BasePrice         float64   `json:"base_price"`
	QualityTier       string    `json:"quality_tier"`
	QualityMultiplier float64   `json:"quality_multiplier"`
	DemandAdjuster    float64   `json:"demand_adjuster"`
	FinalPrice        float64   `json:"final_price"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Version           int       `json:"version"`
}

type ListingCreateRequest struct {
	CropType    string  `json:"crop_type"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Location    string  `json:"location"`
	BasePrice   float64 `json:"base_price"`
	QualityTier string  `json:"quality_tier"`
}

type ListingUpdateRequest struct {
	BasePrice   *float64 `json:"base_price,omitempty"`
	QualityTier *string  `json:"quality_tier,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Location    *string  `json:"location,omitempty"`
}

type ListingFilter struct {
	VendorID string
	CropType string
	Status   string
	Limit    int
}

type ListingResponse struct {
	Listing Listing     `json:"listing"`
	Pricing *PriceQuote `json:"pricing,omitempty"`
}

type Negotiation struct {
	ID           string    `json:"id"`
	ListingID    string    `json:"listing_id"`
	BuyerID      string    `json:"buyer_id"`
	VendorID     string    `json:"vendor_id"`
	Status       string    `json:"status"`
	CurrentOffer float64   `json:"current_offer"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"version"`
	Offers       []Offer   `json:"offers,omitempty"`
}

// IsExpired is the single expiry predicate shared by the lazy check and the sweep.
func (n Negotiation) IsExpired(now time.Time) bool {
	return n.Status == NegotiationActive && !now.Before(n.ExpiresAt)
}

func (n Negotiation) IsParticipant(userID string) bool {
	return userID != "" && (userID == n.BuyerID || userID == n.VendorID)
}

type Offer struct {
	ID            string    `json:"id"`
	NegotiationID string    `json:"negotiation_id"`
	ProposedBy    string    `json:"proposed_by"`
	Amount        float64   `json:"amount"`
	Reasoning     string    `json:"reasoning,omitempty"`
	OfferType     string    `json:"offer_type"`
	CreatedAt     time.Time `json:"created_at"`
}

type NegotiationCreateRequest struct {
	ListingID string  `json:"listing_id"`
	Amount    float64 `json:"amount"`
	Reasoning string  `json:"reasoning"`
}

type CounterOfferRequest struct {
	Amount    float64 `json:"amount"`
	Reasoning string  `json:"reasoning"`
}

type NegotiationResponse struct {
	Negotiation Negotiation      `json:"negotiation"`
	Suggestion  *CounterOffer    `json:"suggestion,omitempty"`
	Validation  *OfferValidation `json:"validation,omitempty"`
	Transaction *Transaction     `json:"transaction,omitempty"`
}

type NegotiationListResponse struct {
	Negotiations []Negotiation `json:"negotiations"`
}

type Transaction struct {
	ID            string     `json:"id"`
	NegotiationID string     `json:"negotiation_id"`
	ListingID     string     `json:"listing_id"`
	BuyerID       string     `json:"buyer_id"`
	VendorID      string     `json:"vendor_id"`
	AgreedPrice   float64    `json:"agreed_price"`
	Quantity      float64    `json:"quantity"`
	Status        string     `json:"status"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CancelledBy   string     `json:"cancelled_by,omitempty"`
	DisputeReason string     `json:"dispute_reason,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	ShippedAt     *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	DisputedAt    *time.Time `json:"disputed_at,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	Version       int        `json:"version"`
}

func (t Transaction) IsParty(userID string) bool {
	return userID != "" && (userID == t.BuyerID || userID == t.VendorID)
}

type TransactionNoteRequest struct {
	Reason string `json:"reason"`
}

type TransactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type Rating struct {
	ID             string    `json:"id"`
	TransactionID  string    `json:"transaction_id"`
	BuyerID        string    `json:"buyer_id"`
	VendorID       string    `json:"vendor_id"`
	DeliveryRating int       `json:"delivery_rating"`
	QualityRating  int       `json:"quality_rating"`
	Comment        string    `json:"comment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type RatingCreateRequest struct {
	TransactionID  string `json:"transaction_id"`
	DeliveryRating int    `json:"delivery_rating"`
	QualityRating  int    `json:"quality_rating"`
	Comment        string `json:"comment"`
}

type RatingResponse struct {
	Rating     Rating      `json:"rating"`
	TrustScore *TrustScore `json:"trust_score,omitempty"`
}

type TrustScore struct {
	VendorID         string    `json:"vendor_id"`
	OverallScore     float64   `json:"overall_score"`
	DeliveryScore    float64   `json:"delivery_score"`
	QualityScore     float64   `json:"quality_score"`
	ResponseScore    float64   `json:"response_score"`
	FairPricingScore float64   `json:"fair_pricing_score"`
	TransactionCount int       `json:"transaction_count"`
	RatingCount      int       `json:"rating_count"`
	Badges           []string  `json:"badges"`
	FlaggedForReview bool      `json:"flagged_for_review"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s TrustScore) HasBadge(badge string) bool {
	for _, b := range s.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// TransactionCounts are the vendor-attributed totals used by the fair-pricing proxy.
type TransactionCounts struct {
	Total     int
	Completed int
}

type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	ListingID   string    `json:"listing_id,omitempty"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

type MessageCreateRequest struct {
	RecipientID string `json:"recipient_id"`
	ListingID   string `json:"listing_id"`
	Body        string `json:"body"`
}

type ConversationResponse struct {
	Messages []Message `json:"messages"`
}

type PriceQuoteRequest struct {
	BasePrice   float64 `json:"base_price"`
	QualityTier string  `json:"quality_tier"`
	CropType    string  `json:"crop_type"`
	Location    string  `json:"location"`
}

type PriceStep struct {
	Label      string  `json:"label"`
	Multiplier float64 `json:"multiplier"`
	Result     float64 `json:"result"`
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type PriceBreakdown struct {
	BasePrice          float64     `json:"base_price"`
	QualityTier        string      `json:"quality_tier"`
	RecentTransactions int         `json:"recent_transactions"`
	DemandFallback     bool        `json:"demand_fallback"`
	Steps              []PriceStep `json:"steps"`
	FairRange          PriceRange  `json:"fair_range"`
}

type PriceQuote struct {
	FinalPrice        float64        `json:"final_price"`
	QualityMultiplier float64        `json:"quality_multiplier"`
	DemandAdjuster    float64        `json:"demand_adjuster"`
	Breakdown         PriceBreakdown `json:"breakdown"`
}

type OfferCheckRequest struct {
	OfferPrice   float64 `json:"offer_price"`
	ListingPrice float64 `json:"listing_price"`
}

type OfferValidation struct {
	Valid       bool     `json:"valid"`
	Reason      string   `json:"reason"`
	PercentDiff float64  `json:"percent_diff"`
	Suggestion  *float64 `json:"suggestion,omitempty"`
}

type CounterOffer struct {
	SuggestedPrice float64 `json:"suggested_price"`
	Reasoning      string  `json:"reasoning"`
	Confidence     string  `json:"confidence"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	UserID string
	Role   string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleBuyer  = "buyer"
	RoleVendor = "vendor"
	RoleAdmin  = "admin"
)

const (
	QualityPremium  = "premium"
	QualityStandard = "standard"
	QualityBasic    = "basic"
)

const (
	ListingActive      = "active"
	ListingSold        = "sold"
	ListingUnavailable = "unavailable"
)

const (
	NegotiationActive    = "active"
	NegotiationAccepted  = "accepted"
	NegotiationRejected  = "rejected"
	NegotiationExpired   = "expired"
	NegotiationWithdrawn = "withdrawn"
)

const (
	OfferBuyer         = "buyer_offer"
	OfferVendorCounter = "vendor_counter"
	OfferAISuggestion  = "ai_suggestion"
)

const (
	TxPending   = "pending"
	TxConfirmed = "confirmed"
	TxInTransit = "in_transit"
	TxDelivered = "delivered"
	TxDisputed  = "disputed"
	TxCancelled = "cancelled"
	TxResolved  = "resolved"
)

const (
	ConfidenceMedium   = "medium"
	ConfidenceHigh     = "high"
	ConfidenceVeryHigh = "very_high"
)

const (
	BadgeTrustedVendor   = "trusted_vendor"
	BadgeVerifiedSeller  = "verified_seller"
	BadgeRisingStar      = "rising_star"
	BadgeQualityChampion = "quality_champion"
	BadgeFastResponder   = "fast_responder"
)

func IsQualityTier(tier string) bool {
	switch tier {
	case QualityPremium, QualityStandard, QualityBasic:
		return true
	}
	return false
}
