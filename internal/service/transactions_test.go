package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/metrics"
)

func mustAcceptedTransaction(t *testing.T, env testEnv) (domain.Listing, domain.Transaction) {
	t.Helper()
	listing := mustCreateListing(t, env.svc)
	n := mustOpenNegotiation(t, env.svc, buyerCtx(), listing.ID, 97)
	resp, err := env.svc.AcceptOffer(vendorCtx(), n.ID)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	return listing, *resp.Transaction
}

func TestTransactionHappyPath(t *testing.T) {
	m := metrics.New(nil)
	env := newTestService(t, WithMetrics(m))
	listing, tx := mustAcceptedTransaction(t, env)

	env.clock.Advance(time.Hour)
	confirmed, err := env.svc.ConfirmTransaction(vendorCtx(), tx.ID)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if confirmed.Status != domain.TxConfirmed || confirmed.ConfirmedAt == nil {
		t.Fatalf("expected confirmed with timestamp, got %+v", confirmed)
	}

	env.clock.Advance(time.Hour)
	shipped, err := env.svc.MarkAsShipped(vendorCtx(), tx.ID)
	if err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if shipped.Status != domain.TxInTransit || shipped.ShippedAt == nil {
		t.Fatalf("expected in_transit with timestamp, got %+v", shipped)
	}

	env.clock.Advance(time.Hour)
	delivered, err := env.svc.ConfirmDelivery(buyerCtx(), tx.ID)
	if err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if delivered.Status != domain.TxDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("expected delivered with timestamp, got %+v", delivered)
	}
	if !delivered.DeliveredAt.Equal(env.clock.Now()) {
		t.Fatalf("expected delivery stamped at clock time, got %s", delivered.DeliveredAt)
	}

	stored, err := env.svc.GetListing(context.Background(), listing.ID)
	if err != nil {
		t.Fatalf("get listing failed: %v", err)
	}
	if stored.Quantity != 0 || stored.Status != domain.ListingSold {
		t.Fatalf("expected drained sold listing, got qty=%v status=%s", stored.Quantity, stored.Status)
	}

	score, err := env.svc.GetTrustScore(context.Background(), vendorID)
	if err != nil {
		t.Fatalf("get trust score failed: %v", err)
	}
	if score.TransactionCount != 1 || score.OverallScore != 0 {
		t.Fatalf("expected one completed sale and no rating-based score, got %+v", score)
	}

	if got := testutil.ToFloat64(m.TransactionTransitions.WithLabelValues(domain.TxDelivered)); got != 1 {
		t.Fatalf("expected one delivered transition recorded, got %v", got)
	}
}

func TestTransactionRejectsOutOfOrderMoves(t *testing.T) {
	env := newTestService(t)
	_, tx := mustAcceptedTransaction(t, env)

	_, err := env.svc.MarkAsShipped(vendorCtx(), tx.ID)
	assertStatus(t, err, http.StatusBadRequest)
	assertIs(t, err, domain.ErrInvalidTransition)

	_, err = env.svc.ConfirmDelivery(buyerCtx(), tx.ID)
	assertIs(t, err, domain.ErrInvalidTransition)

	if _, err := env.svc.ConfirmTransaction(vendorCtx(), tx.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	_, err = env.svc.ConfirmTransaction(vendorCtx(), tx.ID)
	assertIs(t, err, domain.ErrInvalidTransition)
}

func TestTransactionRoleChecks(t *testing.T) {
	env := newTestService(t)
	_, tx := mustAcceptedTransaction(t, env)

	_, err := env.svc.ConfirmTransaction(buyerCtx(), tx.ID)
	assertStatus(t, err, http.StatusForbidden)

	_, err = env.svc.CancelTransaction(buyer2Ctx(), tx.ID, domain.TransactionNoteRequest{Reason: "nope"})
	assertStatus(t, err, http.StatusForbidden)

	_, err = env.svc.GetTransaction(buyer2Ctx(), tx.ID)
	assertStatus(t, err, http.StatusForbidden)

	_, err = env.svc.ConfirmTransaction(vendorCtx(), "txn-missing")
	assertStatus(t, err, http.StatusNotFound)

	if _, err := env.svc.GetTransaction(adminCtx(), tx.ID); err != nil {
		t.Fatalf("admin should read any transaction: %v", err)
	}
}

func TestCancelRestoresListing(t *testing.T) {
	env := newTestService(t)
	listing, tx := mustAcceptedTransaction(t, env)

	cancelled, err := env.svc.CancelTransaction(buyerCtx(), tx.ID, domain.TransactionNoteRequest{Reason: " changed plans "})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.TxCancelled || cancelled.CancelledBy != buyerID || cancelled.CancelReason != "changed plans" {
		t.Fatalf("unexpected cancelled transaction %+v", cancelled)
	}

	stored, err := env.svc.GetListing(context.Background(), listing.ID)
	if err != nil {
		t.Fatalf("get listing failed: %v", err)
	}
	if stored.Status != domain.ListingActive {
		t.Fatalf("expected listing back on the market, got %s", stored.Status)
	}

	_, err = env.svc.ConfirmTransaction(vendorCtx(), tx.ID)
	assertIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelNotAllowedAfterShipping(t *testing.T) {
	env := newTestService(t)
	_, tx := mustAcceptedTransaction(t, env)
	if _, err := env.svc.ConfirmTransaction(vendorCtx(), tx.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := env.svc.MarkAsShipped(vendorCtx(), tx.ID); err != nil {
		t.Fatalf("ship failed: %v", err)
	}

	_, err := env.svc.CancelTransaction(vendorCtx(), tx.ID, domain.TransactionNoteRequest{})
	assertIs(t, err, domain.ErrInvalidTransition)
}

func TestDisputeAndResolve(t *testing.T) {
	env := newTestService(t)
	_, tx := mustAcceptedTransaction(t, env)
	if _, err := env.svc.ConfirmTransaction(vendorCtx(), tx.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := env.svc.MarkAsShipped(vendorCtx(), tx.ID); err != nil {
		t.Fatalf("ship failed: %v", err)
	}

	_, err := env.svc.RaiseDispute(buyerCtx(), tx.ID, domain.TransactionNoteRequest{Reason: "  "})
	assertStatus(t, err, http.StatusBadRequest)

	disputed, err := env.svc.RaiseDispute(buyerCtx(), tx.ID, domain.TransactionNoteRequest{Reason: "crates arrived damaged"})
	if err != nil {
		t.Fatalf("dispute failed: %v", err)
	}
	if disputed.Status != domain.TxDisputed || disputed.DisputedAt == nil {
		t.Fatalf("expected disputed with timestamp, got %+v", disputed)
	}

	_, err = env.svc.ResolveDispute(vendorCtx(), tx.ID, domain.TransactionNoteRequest{Reason: "refund half"})
	assertStatus(t, err, http.StatusForbidden)

	resolved, err := env.svc.ResolveDispute(adminCtx(), tx.ID, domain.TransactionNoteRequest{Reason: "refund half"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Status != domain.TxResolved || resolved.Resolution != "refund half" {
		t.Fatalf("unexpected resolved transaction %+v", resolved)
	}

	list, err := env.svc.ListTransactions(buyerCtx(), domain.TxResolved, 0)
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if len(list.Transactions) != 1 {
		t.Fatalf("expected 1 resolved transaction, got %d", len(list.Transactions))
	}
}
