package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func seedListing(t *testing.T, s *Store) *domain.Listing {
	t.Helper()
	listing, err := s.CreateListing(context.Background(), domain.Listing{
		VendorID:    "vendor-1",
		CropType:    "tomato",
		Quantity:    50,
		Unit:        "kg",
		BasePrice:   100,
		QualityTier: domain.QualityPremium,
		FinalPrice:  102,
		CreatedAt:   t0,
	})
	require.NoError(t, err)
	return listing
}

func openNegotiation(t *testing.T, s *Store, listing *domain.Listing, buyerID string) *domain.Negotiation {
	t.Helper()
	n, err := s.CreateNegotiation(context.Background(), domain.Negotiation{
		ListingID: listing.ID,
		BuyerID:   buyerID,
		VendorID:  listing.VendorID,
		ExpiresAt: t0.Add(24 * time.Hour),
		CreatedAt: t0,
		UpdatedAt: t0,
	}, domain.Offer{ProposedBy: buyerID, Amount: 90, OfferType: domain.OfferBuyer, CreatedAt: t0})
	require.NoError(t, err)
	return n
}

func TestNewSeededHashesPasswords(t *testing.T) {
	t.Setenv("SEED_VENDOR_PASSWORD", "vendor-secret")
	s := NewSeeded(nil)

	vendor, err := s.GetUserByUsername(context.Background(), "VENDOR")
	require.NoError(t, err)
	assert.Equal(t, SeedVendorID, vendor.ID)
	assert.Equal(t, domain.RoleVendor, vendor.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(vendor.Password), []byte("vendor-secret")))

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "admin", users[0].Username)
}

func TestCreateNegotiationRejectsSecondActivePair(t *testing.T) {
	s := New()
	listing := seedListing(t, s)
	n := openNegotiation(t, s, listing, "buyer-1")

	assert.Equal(t, 1, n.Version)
	assert.Equal(t, 90.0, n.CurrentOffer)
	require.Len(t, n.Offers, 1)
	assert.Equal(t, n.ID, n.Offers[0].NegotiationID)

	_, err := s.CreateNegotiation(context.Background(), domain.Negotiation{
		ListingID: listing.ID, BuyerID: "buyer-1", VendorID: listing.VendorID,
	}, domain.Offer{ProposedBy: "buyer-1", Amount: 95})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.UpdateNegotiationStatus(context.Background(), n.ID, n.Version, domain.NegotiationWithdrawn, t0)
	require.NoError(t, err)
	openNegotiation(t, s, listing, "buyer-1")
}

func TestAppendOfferChecksVersion(t *testing.T) {
	s := New()
	n := openNegotiation(t, s, seedListing(t, s), "buyer-1")

	updated, err := s.AppendOffer(context.Background(), n.ID, n.Version, domain.Offer{
		ProposedBy: "vendor-1", Amount: 97, OfferType: domain.OfferVendorCounter, CreatedAt: t0.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, 97.0, updated.CurrentOffer)
	assert.Equal(t, 2, updated.Version)
	assert.Len(t, updated.Offers, 2)

	_, err = s.AppendOffer(context.Background(), n.ID, n.Version, domain.Offer{ProposedBy: "buyer-1", Amount: 93})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.AppendOffer(context.Background(), "neg-missing", 1, domain.Offer{ProposedBy: "buyer-1", Amount: 93})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAcceptNegotiationCreatesTransactionAndSellsListing(t *testing.T) {
	s := New()
	listing := seedListing(t, s)
	n := openNegotiation(t, s, listing, "buyer-1")

	accepted, tx, err := s.AcceptNegotiation(context.Background(), n.ID, n.Version, domain.Transaction{
		ListingID: listing.ID, BuyerID: "buyer-1", VendorID: listing.VendorID,
		AgreedPrice: 90, Quantity: listing.Quantity, CreatedAt: t0.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationAccepted, accepted.Status)
	assert.Equal(t, domain.TxPending, tx.Status)
	assert.Equal(t, 1, tx.Version)

	stored, err := s.GetListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingSold, stored.Status)

	_, _, err = s.AcceptNegotiation(context.Background(), n.ID, accepted.Version, domain.Transaction{})
	assert.ErrorIs(t, err, store.ErrConflict)

	txs, err := s.ListTransactions(context.Background(), "buyer-1", "", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestExpireNegotiationsUsesDeadline(t *testing.T) {
	s := New()
	listing := seedListing(t, s)
	first := openNegotiation(t, s, listing, "buyer-1")
	openNegotiation(t, s, listing, "buyer-2")

	count, err := s.ExpireNegotiations(context.Background(), first.ExpiresAt.Add(-time.Second))
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = s.ExpireNegotiations(context.Background(), first.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.ExpireNegotiations(context.Background(), first.ExpiresAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := s.GetNegotiation(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationExpired, got.Status)
}

func TestTransitionTransactionUpdatesListing(t *testing.T) {
	s := New()
	listing := seedListing(t, s)
	n := openNegotiation(t, s, listing, "buyer-1")
	_, tx, err := s.AcceptNegotiation(context.Background(), n.ID, n.Version, domain.Transaction{
		ListingID: listing.ID, BuyerID: "buyer-1", VendorID: listing.VendorID, AgreedPrice: 90, Quantity: 50, CreatedAt: t0,
	})
	require.NoError(t, err)

	cancelledAt := t0.Add(time.Hour)
	next := *tx
	next.Status = domain.TxCancelled
	next.CancelledAt = &cancelledAt
	restored, err := s.GetListing(context.Background(), listing.ID)
	require.NoError(t, err)
	restored.Status = domain.ListingActive

	updated, err := s.TransitionTransaction(context.Background(), next, tx.Version, restored)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	got, err := s.GetListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingActive, got.Status)

	_, err = s.TransitionTransaction(context.Background(), next, tx.Version, nil)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestTransactionCounts(t *testing.T) {
	s := New()
	s.transactions["t1"] = domain.Transaction{ID: "t1", VendorID: "vendor-1", Status: domain.TxDelivered, CreatedAt: t0}
	s.transactions["t2"] = domain.Transaction{ID: "t2", VendorID: "vendor-1", Status: domain.TxInTransit, CreatedAt: t0.Add(-10 * 24 * time.Hour)}
	s.transactions["t3"] = domain.Transaction{ID: "t3", VendorID: "vendor-2", Status: domain.TxPending, CreatedAt: t0}

	recent, err := s.CountTransactionsSince(context.Background(), t0.Add(-7*24*time.Hour), []string{domain.TxDelivered, domain.TxInTransit})
	require.NoError(t, err)
	assert.Equal(t, 1, recent)

	counts, err := s.CountVendorTransactions(context.Background(), "vendor-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionCounts{Total: 2, Completed: 1}, counts)
}

func TestRatingsAndTrustScores(t *testing.T) {
	s := New()
	rating := domain.Rating{TransactionID: "txn-1", BuyerID: "buyer-1", VendorID: "vendor-1", DeliveryRating: 5, QualityRating: 4, CreatedAt: t0}
	_, err := s.CreateRating(context.Background(), rating)
	require.NoError(t, err)
	_, err = s.CreateRating(context.Background(), rating)
	assert.ErrorIs(t, err, store.ErrConflict)

	ratings, err := s.ListVendorRatings(context.Background(), "vendor-1")
	require.NoError(t, err)
	assert.Len(t, ratings, 1)

	_, err = s.GetTrustScore(context.Background(), "vendor-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	score := domain.TrustScore{VendorID: "vendor-1", OverallScore: 4.2, Badges: []string{domain.BadgeRisingStar}}
	require.NoError(t, s.UpsertTrustScore(context.Background(), score))
	score.Badges[0] = "mutated"

	got, err := s.GetTrustScore(context.Background(), "vendor-1")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.BadgeRisingStar}, got.Badges)
}

func TestMessagesByVendorAndConversation(t *testing.T) {
	s := New()
	for i, m := range []domain.Message{
		{SenderID: "buyer-1", RecipientID: "vendor-1", Body: "hi", CreatedAt: t0.Add(2 * time.Minute)},
		{SenderID: "vendor-1", RecipientID: "buyer-1", Body: "hello", CreatedAt: t0.Add(5 * time.Minute)},
		{SenderID: "buyer-2", RecipientID: "vendor-1", Body: "old", CreatedAt: t0.Add(-40 * 24 * time.Hour)},
		{SenderID: "buyer-2", RecipientID: "buyer-1", Body: "unrelated", CreatedAt: t0},
	} {
		_, err := s.CreateMessage(context.Background(), m)
		require.NoError(t, err, "message %d", i)
	}

	vendorMsgs, err := s.ListVendorMessages(context.Background(), "vendor-1", t0.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, vendorMsgs, 2)
	assert.Equal(t, "hi", vendorMsgs[0].Body)

	convo, err := s.ListConversation(context.Background(), "vendor-1", "buyer-1", 1)
	require.NoError(t, err)
	require.Len(t, convo, 1)
	assert.Equal(t, "hello", convo[0].Body)

	_, err = s.CreateMessage(context.Background(), domain.Message{SenderID: "a", RecipientID: "b", Body: "  "})
	assert.ErrorIs(t, err, store.ErrInvalidRecord)
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	s := New()
	created, err := s.CreateUser(context.Background(), domain.UserAccount{Username: " Farmer ", Password: "hash", Role: domain.RoleVendor})
	require.NoError(t, err)
	assert.Equal(t, "farmer", created.Username)
	assert.NotEmpty(t, created.ID)

	_, err = s.CreateUser(context.Background(), domain.UserAccount{Username: "farmer", Password: "hash"})
	assert.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, s.UpdateUserPassword(context.Background(), "FARMER", "new-hash"))
	got, err := s.GetUser(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.Password)
}

func TestUpdateListingRejectsStaleVersion(t *testing.T) {
	s := New()
	listing := seedListing(t, s)
	assert.Equal(t, 1, listing.Version)

	edit := *listing
	edit.Quantity = 40
	saved, err := s.UpdateListing(context.Background(), edit)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)

	stale := *listing
	stale.Status = domain.ListingUnavailable
	_, err = s.UpdateListing(context.Background(), stale)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.GetListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingActive, got.Status)
	assert.Equal(t, 40.0, got.Quantity)
}

func TestAcceptedListingCannotBeOverwrittenByEarlierRead(t *testing.T) {
	s := New()
	listing := seedListing(t, s)
	n := openNegotiation(t, s, listing, "buyer-1")

	before, err := s.GetListing(context.Background(), listing.ID)
	require.NoError(t, err)
	_, tx, err := s.AcceptNegotiation(context.Background(), n.ID, n.Version, domain.Transaction{
		ListingID: listing.ID, BuyerID: "buyer-1", VendorID: listing.VendorID, AgreedPrice: 90, Quantity: 50, CreatedAt: t0,
	})
	require.NoError(t, err)

	before.Quantity = 10
	_, err = s.UpdateListing(context.Background(), *before)
	assert.ErrorIs(t, err, store.ErrConflict)

	next := *tx
	next.Status = domain.TxCancelled
	before.Status = domain.ListingActive
	_, err = s.TransitionTransaction(context.Background(), next, tx.Version, before)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.GetListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingSold, got.Status)
	storedTx, err := s.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxPending, storedTx.Status)
}
