package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 200
	maxNoteLength           = 1000
)

type party int

const (
	eitherParty party = iota
	vendorParty
	buyerParty
	adminOnly
)

// transition describes one guarded move of a transaction.
type transition struct {
	target string
	by     party
	// validate checks request input once the caller is known.
	validate func() error
	// stamp records the transition on tx.
	stamp func(tx *domain.Transaction, actor domain.Actor, at time.Time)
	// listing optionally edits the listing in the same write. It reports
	// whether anything changed.
	listing func(listing *domain.Listing, tx domain.Transaction) bool
}

func (s *Service) ConfirmTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	return s.moveTransaction(ctx, transactionID, transition{
		target: domain.TxConfirmed,
		by:     vendorParty,
		stamp: func(tx *domain.Transaction, _ domain.Actor, at time.Time) {
			tx.ConfirmedAt = &at
		},
	})
}

func (s *Service) MarkAsShipped(ctx context.Context, transactionID string) (domain.Transaction, error) {
	return s.moveTransaction(ctx, transactionID, transition{
		target: domain.TxInTransit,
		by:     vendorParty,
		stamp: func(tx *domain.Transaction, _ domain.Actor, at time.Time) {
			tx.ShippedAt = &at
		},
	})
}

// ConfirmDelivery completes the sale and draws the sold quantity down from
// the listing.
func (s *Service) ConfirmDelivery(ctx context.Context, transactionID string) (domain.Transaction, error) {
	tx, err := s.moveTransaction(ctx, transactionID, transition{
		target: domain.TxDelivered,
		by:     buyerParty,
		stamp: func(tx *domain.Transaction, _ domain.Actor, at time.Time) {
			tx.DeliveredAt = &at
		},
		listing: func(listing *domain.Listing, tx domain.Transaction) bool {
			listing.Quantity -= tx.Quantity
			if listing.Quantity <= 0 {
				listing.Quantity = 0
				listing.Status = domain.ListingSold
			} else if listing.Status == domain.ListingSold {
				listing.Status = domain.ListingActive
			}
			return true
		},
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	s.refreshTrustScore(ctx, tx.VendorID)
	return tx, nil
}

// CancelTransaction abandons a transaction that has not shipped. The
// listing goes back on the market if it still has stock.
func (s *Service) CancelTransaction(ctx context.Context, transactionID string, req domain.TransactionNoteRequest) (domain.Transaction, error) {
	reason := strings.TrimSpace(req.Reason)
	return s.moveTransaction(ctx, transactionID, transition{
		target: domain.TxCancelled,
		by:     eitherParty,
		validate: func() error {
			return checkNote("reason", reason, false)
		},
		stamp: func(tx *domain.Transaction, actor domain.Actor, at time.Time) {
			tx.CancelledAt = &at
			tx.CancelledBy = actor.UserID
			tx.CancelReason = reason
		},
		listing: func(listing *domain.Listing, _ domain.Transaction) bool {
			if listing.Status != domain.ListingSold || listing.Quantity <= 0 {
				return false
			}
			listing.Status = domain.ListingActive
			return true
		},
	})
}

func (s *Service) RaiseDispute(ctx context.Context, transactionID string, req domain.TransactionNoteRequest) (domain.Transaction, error) {
	reason := strings.TrimSpace(req.Reason)
	return s.moveTransaction(ctx, transactionID, transition{
		target: domain.TxDisputed,
		by:     eitherParty,
		validate: func() error {
			return checkNote("reason", reason, true)
		},
		stamp: func(tx *domain.Transaction, _ domain.Actor, at time.Time) {
			tx.DisputedAt = &at
			tx.DisputeReason = reason
		},
	})
}

func (s *Service) ResolveDispute(ctx context.Context, transactionID string, req domain.TransactionNoteRequest) (domain.Transaction, error) {
	resolution := strings.TrimSpace(req.Reason)
	return s.moveTransaction(ctx, transactionID, transition{
		target: domain.TxResolved,
		by:     adminOnly,
		validate: func() error {
			return checkNote("resolution", resolution, true)
		},
		stamp: func(tx *domain.Transaction, _ domain.Actor, at time.Time) {
			tx.ResolvedAt = &at
			tx.Resolution = resolution
		},
	})
}

func (s *Service) GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.repo.GetTransaction(ctx, strings.TrimSpace(transactionID))
	if err != nil {
		return domain.Transaction{}, storeError(err, "transaction")
	}
	if !tx.IsParty(actor.UserID) && actor.Role != domain.RoleAdmin {
		return domain.Transaction{}, domain.Forbidden(domain.ErrNotParticipant, "not a party to this transaction")
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, status string, limit int) (domain.TransactionListResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.TransactionListResponse{}, err
	}
	userID := actor.UserID
	if actor.Role == domain.RoleAdmin {
		userID = ""
	}
	items, err := s.repo.ListTransactions(ctx, userID, strings.TrimSpace(status), store.NormalizeLimit(limit, defaultTransactionLimit, maxTransactionLimit))
	if err != nil {
		return domain.TransactionListResponse{}, storeError(err, "transaction")
	}
	return domain.TransactionListResponse{Transactions: items}, nil
}

func (s *Service) moveTransaction(ctx context.Context, transactionID string, t transition) (domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if t.by == adminOnly && actor.Role != domain.RoleAdmin {
		return domain.Transaction{}, domain.Forbidden(nil, "admin role required")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.Transaction{}, domain.BadRequest(nil, "transaction id is required")
	}
	if t.validate != nil {
		if err := t.validate(); err != nil {
			return domain.Transaction{}, err
		}
	}

	current, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, storeError(err, "transaction")
	}
	if err := authorizeParty(actor, *current, t.by); err != nil {
		return domain.Transaction{}, err
	}
	if err := s.transactions.Check(current.Status, t.target); err != nil {
		return domain.Transaction{}, err
	}

	now := s.clock()
	next := *current
	next.Status = t.target
	next.UpdatedAt = now
	if t.stamp != nil {
		t.stamp(&next, actor, now)
	}

	var listing *domain.Listing
	if t.listing != nil {
		found, err := s.repo.GetListing(ctx, current.ListingID)
		if err != nil {
			return domain.Transaction{}, storeError(err, "listing")
		}
		if t.listing(found, next) {
			found.UpdatedAt = now
			listing = found
		}
	}

	saved, err := s.repo.TransitionTransaction(ctx, next, current.Version, listing)
	if err != nil {
		return domain.Transaction{}, storeError(err, "transaction")
	}

	s.metrics.TransactionMoved(saved.Status)
	s.logger.Info("transaction moved",
		zap.String("transaction_id", saved.ID),
		zap.String("from", current.Status),
		zap.String("to", saved.Status),
		zap.String("actor_id", actor.UserID),
	)
	return *saved, nil
}

func authorizeParty(actor domain.Actor, tx domain.Transaction, by party) error {
	switch by {
	case adminOnly:
		return nil
	case vendorParty:
		if actor.UserID != tx.VendorID {
			return domain.Forbidden(domain.ErrNotParticipant, "only the vendor can perform this step")
		}
	case buyerParty:
		if actor.UserID != tx.BuyerID {
			return domain.Forbidden(domain.ErrNotParticipant, "only the buyer can perform this step")
		}
	default:
		if !tx.IsParty(actor.UserID) {
			return domain.Forbidden(domain.ErrNotParticipant, "not a party to this transaction")
		}
	}
	return nil
}

func checkNote(field string, value string, required bool) error {
	if required && value == "" {
		return domain.BadRequest(nil, "%s is required", field)
	}
	if len(value) > maxNoteLength {
		return domain.BadRequest(nil, "%s must be at most %d characters", field, maxNoteLength)
	}
	return nil
}
