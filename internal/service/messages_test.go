package service

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

func TestSendMessageValidation(t *testing.T) {
	env := newTestService(t)

	cases := []struct {
		name string
		req  domain.MessageCreateRequest
		want int
	}{
		{"missing recipient", domain.MessageCreateRequest{Body: "hi"}, http.StatusBadRequest},
		{"self", domain.MessageCreateRequest{RecipientID: buyerID, Body: "hi"}, http.StatusBadRequest},
		{"blank body", domain.MessageCreateRequest{RecipientID: vendorID, Body: "   "}, http.StatusBadRequest},
		{"too long", domain.MessageCreateRequest{RecipientID: vendorID, Body: strings.Repeat("a", 2001)}, http.StatusBadRequest},
		{"unknown recipient", domain.MessageCreateRequest{RecipientID: "usr-ghost", Body: "hi"}, http.StatusNotFound},
		{"unknown listing", domain.MessageCreateRequest{RecipientID: vendorID, ListingID: "lst-ghost", Body: "hi"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.SendMessage(buyerCtx(), tc.req)
			assertStatus(t, err, tc.want)
		})
	}
}

func TestConversationIsOrderedAndScoped(t *testing.T) {
	env := newTestService(t)
	listing := mustCreateListing(t, env.svc)

	if _, err := env.svc.SendMessage(buyerCtx(), domain.MessageCreateRequest{RecipientID: vendorID, ListingID: listing.ID, Body: "price for 40kg?"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	env.clock.Advance(time.Minute)
	if _, err := env.svc.SendMessage(vendorCtx(), domain.MessageCreateRequest{RecipientID: buyerID, Body: "102 per kg"}); err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	env.clock.Advance(time.Minute)
	if _, err := env.svc.SendMessage(buyer2Ctx(), domain.MessageCreateRequest{RecipientID: vendorID, Body: "unrelated"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	convo, err := env.svc.ListConversation(buyerCtx(), vendorID, 0)
	if err != nil {
		t.Fatalf("list conversation failed: %v", err)
	}
	if len(convo.Messages) != 2 {
		t.Fatalf("expected 2 messages between buyer and vendor, got %d", len(convo.Messages))
	}
	if convo.Messages[0].Body != "price for 40kg?" || convo.Messages[1].Body != "102 per kg" {
		t.Fatalf("expected chronological order, got %+v", convo.Messages)
	}
	if convo.Messages[0].ListingID != listing.ID {
		t.Fatalf("expected listing reference to be kept")
	}

	_, err = env.svc.ListConversation(buyerCtx(), " ", 0)
	assertStatus(t, err, http.StatusBadRequest)
}
