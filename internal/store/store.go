package store

import (
	"context"
	"errors"
	"time"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidRecord = errors.New("invalid record")
)

// Repository is the persistence boundary. Methods taking an expectedVersion
// fail with ErrConflict when the stored row has moved on.
type Repository interface {
	CreateListing(ctx context.Context, listing domain.Listing) (*domain.Listing, error)
	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	UpdateListing(ctx context.Context, listing domain.Listing) (*domain.Listing, error)
	ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error)

	CreateNegotiation(ctx context.Context, negotiation domain.Negotiation, first domain.Offer) (*domain.Negotiation, error)
	GetNegotiation(ctx context.Context, id string) (*domain.Negotiation, error)
	ListNegotiations(ctx context.Context, userID string, status string, limit int) ([]domain.Negotiation, error)
	ListActiveNegotiationsByListing(ctx context.Context, listingID string) ([]domain.Negotiation, error)
	AppendOffer(ctx context.Context, negotiationID string, expectedVersion int, offer domain.Offer) (*domain.Negotiation, error)
	UpdateNegotiationStatus(ctx context.Context, id string, expectedVersion int, status string, at time.Time) (*domain.Negotiation, error)
	AcceptNegotiation(ctx context.Context, id string, expectedVersion int, tx domain.Transaction) (*domain.Negotiation, *domain.Transaction, error)
	ExpireNegotiations(ctx context.Context, now time.Time) (int, error)

	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, userID string, status string, limit int) ([]domain.Transaction, error)
	TransitionTransaction(ctx context.Context, tx domain.Transaction, expectedVersion int, listing *domain.Listing) (*domain.Transaction, error)
	CountTransactionsSince(ctx context.Context, since time.Time, statuses []string) (int, error)
	CountVendorTransactions(ctx context.Context, vendorID string) (domain.TransactionCounts, error)

	CreateRating(ctx context.Context, rating domain.Rating) (*domain.Rating, error)
	ListVendorRatings(ctx context.Context, vendorID string) ([]domain.Rating, error)

	GetTrustScore(ctx context.Context, vendorID string) (*domain.TrustScore, error)
	UpsertTrustScore(ctx context.Context, score domain.TrustScore) error

	CreateMessage(ctx context.Context, message domain.Message) (*domain.Message, error)
	ListVendorMessages(ctx context.Context, vendorID string, since time.Time) ([]domain.Message, error)
	ListConversation(ctx context.Context, userID string, otherUserID string, limit int) ([]domain.Message, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUser(ctx context.Context, id string) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// CompletedTransactionStatus is the status counted as a completed sale.
const CompletedTransactionStatus = domain.TxDelivered

// NormalizeLimit clamps list limits to a sane page size.
func NormalizeLimit(limit int, fallback int, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
