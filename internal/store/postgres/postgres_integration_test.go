package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

func TestAcceptNegotiationSellsListing(t *testing.T) {
	databaseURL := os.Getenv("AGRIMARKET_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set AGRIMARKET_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	vendor, err := s.CreateUser(ctx, domain.UserAccount{Username: fmt.Sprintf("vendor-it-%d", stamp), Password: "hash", Role: domain.RoleVendor})
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	listing, err := s.CreateListing(ctx, domain.Listing{
		VendorID: vendor.ID, CropType: "wheat", Quantity: 20, Unit: "quintal", BasePrice: 100,
		QualityTier: domain.QualityPremium, QualityMultiplier: 1.2, DemandAdjuster: 0.85, FinalPrice: 102, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	buyerID := fmt.Sprintf("buyer-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE listing_id = $1`, listing.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM offers WHERE negotiation_id IN (SELECT id FROM negotiations WHERE listing_id = $1)`, listing.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM negotiations WHERE listing_id = $1`, listing.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, listing.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM app_users WHERE id = $1`, vendor.ID)
	})

	n, err := s.CreateNegotiation(ctx, domain.Negotiation{
		ListingID: listing.ID, BuyerID: buyerID, VendorID: vendor.ID,
		ExpiresAt: now.Add(24 * time.Hour), CreatedAt: now, UpdatedAt: now,
	}, domain.Offer{ProposedBy: buyerID, Amount: 90, OfferType: domain.OfferBuyer, CreatedAt: now})
	if err != nil {
		t.Fatalf("create negotiation: %v", err)
	}

	n, err = s.AppendOffer(ctx, n.ID, n.Version, domain.Offer{ProposedBy: vendor.ID, Amount: 97, OfferType: domain.OfferVendorCounter, CreatedAt: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("append offer: %v", err)
	}
	if len(n.Offers) != 2 || n.CurrentOffer != 97 {
		t.Fatalf("expected two offers and current offer 97, got %d / %.2f", len(n.Offers), n.CurrentOffer)
	}

	_, tx, err := s.AcceptNegotiation(ctx, n.ID, n.Version, domain.Transaction{
		ListingID: listing.ID, BuyerID: buyerID, VendorID: vendor.ID, AgreedPrice: n.CurrentOffer,
		Quantity: listing.Quantity, CreatedAt: now.Add(2 * time.Minute), UpdatedAt: now.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("accept negotiation: %v", err)
	}
	if tx.AgreedPrice != 97 || tx.Status != domain.TxPending {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	sold, err := s.GetListing(ctx, listing.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if sold.Status != domain.ListingSold {
		t.Fatalf("expected listing sold, got %s", sold.Status)
	}
}
