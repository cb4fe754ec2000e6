package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	listings      map[string]domain.Listing
	negotiations  map[string]domain.Negotiation
	offers        map[string][]domain.Offer
	transactions  map[string]domain.Transaction
	ratingsByTx   map[string]domain.Rating
	trustScores   map[string]domain.TrustScore
	messages      []domain.Message
	usersByID     map[string]domain.UserAccount
	userIDsByName map[string]string
}

func New() *Store {
	return &Store{
		listings:      make(map[string]domain.Listing),
		negotiations:  make(map[string]domain.Negotiation),
		offers:        make(map[string][]domain.Offer),
		transactions:  make(map[string]domain.Transaction),
		ratingsByTx:   make(map[string]domain.Rating),
		trustScores:   make(map[string]domain.TrustScore),
		messages:      make([]domain.Message, 0, 64),
		usersByID:     make(map[string]domain.UserAccount),
		userIDsByName: make(map[string]string),
	}
}

// Seed account IDs are fixed so demo tokens stay valid across restarts.
const (
	SeedAdminID  = "usr-admin"
	SeedVendorID = "usr-vendor"
	SeedBuyerID  = "usr-buyer"
)

// NewSeeded builds a store with one admin, one vendor and one buyer for
// dev/demo mode. Passwords come from SEED_ADMIN_PASSWORD,
// SEED_VENDOR_PASSWORD and SEED_BUYER_PASSWORD; unset values fall back to
// dev defaults with a warning. The server uses PostgreSQL when
// DATABASE_URL is set, so these accounts never reach production.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()

	seeds := []struct {
		id       string
		username string
		envKey   string
		fallback string
		role     string
	}{
		{SeedAdminID, "admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{SeedVendorID, "vendor", "SEED_VENDOR_PASSWORD", "vendor123", domain.RoleVendor},
		{SeedBuyerID, "buyer", "SEED_BUYER_PASSWORD", "buyer123", domain.RoleBuyer},
	}
	now := time.Now().UTC()
	for _, seed := range seeds {
		password := os.Getenv(seed.envKey)
		if password == "" {
			logger.Warn("using default dev credentials", zap.String("username", seed.username), zap.String("override_env", seed.envKey))
			password = seed.fallback
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("username", seed.username), zap.Error(err))
		}
		account := domain.UserAccount{
			ID:        seed.id,
			Username:  seed.username,
			Password:  string(hash),
			Role:      seed.role,
			Active:    true,
			CreatedAt: now,
		}
		s.usersByID[account.ID] = account
		s.userIDsByName[account.Username] = account.ID
	}
	return s
}

func (s *Store) CreateListing(_ context.Context, listing domain.Listing) (*domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if listing.VendorID == "" || listing.CropType == "" || listing.BasePrice <= 0 || listing.Quantity <= 0 {
		return nil, store.ErrInvalidRecord
	}
	if listing.ID == "" {
		listing.ID = xid.New("lst")
	}
	if _, exists := s.listings[listing.ID]; exists {
		return nil, store.ErrConflict
	}
	if listing.Status == "" {
		listing.Status = domain.ListingActive
	}
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = time.Now().UTC()
	}
	if listing.UpdatedAt.IsZero() {
		listing.UpdatedAt = listing.CreatedAt
	}
	listing.Version = 1
	s.listings[listing.ID] = listing
	created := listing
	return &created, nil
}

func (s *Store) GetListing(_ context.Context, id string) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, exists := s.listings[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyListing := listing
	return &copyListing, nil
}

// UpdateListing writes listing only if its Version still matches the stored row.
func (s *Store) UpdateListing(_ context.Context, listing domain.Listing) (*domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.listings[listing.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if listing.BasePrice <= 0 || listing.Quantity < 0 {
		return nil, store.ErrInvalidRecord
	}
	if current.Version != listing.Version {
		return nil, store.ErrConflict
	}
	listing.VendorID = current.VendorID
	listing.CreatedAt = current.CreatedAt
	listing.Version = current.Version + 1
	s.listings[listing.ID] = listing
	updated := listing
	return &updated, nil
}

func (s *Store) ListListings(_ context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Listing, 0, len(s.listings))
	for _, listing := range s.listings {
		if filter.VendorID != "" && listing.VendorID != filter.VendorID {
			continue
		}
		if filter.CropType != "" && !strings.EqualFold(listing.CropType, filter.CropType) {
			continue
		}
		if filter.Status != "" && listing.Status != filter.Status {
			continue
		}
		out = append(out, listing)
	}
	slices.SortFunc(out, func(a, b domain.Listing) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(out, filter.Limit), nil
}

func (s *Store) CreateNegotiation(_ context.Context, negotiation domain.Negotiation, first domain.Offer) (*domain.Negotiation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if negotiation.ListingID == "" || negotiation.BuyerID == "" || negotiation.VendorID == "" || first.Amount <= 0 {
		return nil, store.ErrInvalidRecord
	}
	for _, existing := range s.negotiations {
		if existing.Status == domain.NegotiationActive &&
			existing.BuyerID == negotiation.BuyerID &&
			existing.ListingID == negotiation.ListingID {
			return nil, store.ErrConflict
		}
	}
	if negotiation.ID == "" {
		negotiation.ID = xid.New("neg")
	}
	if first.ID == "" {
		first.ID = xid.New("ofr")
	}
	first.NegotiationID = negotiation.ID
	negotiation.Status = domain.NegotiationActive
	negotiation.CurrentOffer = first.Amount
	negotiation.Version = 1
	negotiation.Offers = nil

	s.negotiations[negotiation.ID] = negotiation
	s.offers[negotiation.ID] = []domain.Offer{first}
	return s.negotiationLocked(negotiation.ID), nil
}

func (s *Store) GetNegotiation(_ context.Context, id string) (*domain.Negotiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.negotiations[id]; !exists {
		return nil, store.ErrNotFound
	}
	return s.negotiationLocked(id), nil
}

func (s *Store) ListNegotiations(_ context.Context, userID string, status string, limit int) ([]domain.Negotiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Negotiation, 0)
	for _, n := range s.negotiations {
		if userID != "" && !n.IsParticipant(userID) {
			continue
		}
		if status != "" && n.Status != status {
			continue
		}
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b domain.Negotiation) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(out, limit), nil
}

func (s *Store) ListActiveNegotiationsByListing(_ context.Context, listingID string) ([]domain.Negotiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Negotiation, 0)
	for _, n := range s.negotiations {
		if n.ListingID == listingID && n.Status == domain.NegotiationActive {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b domain.Negotiation) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) AppendOffer(_ context.Context, negotiationID string, expectedVersion int, offer domain.Offer) (*domain.Negotiation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.activeNegotiationLocked(negotiationID, expectedVersion)
	if err != nil {
		return nil, err
	}
	if offer.Amount <= 0 || offer.ProposedBy == "" {
		return nil, store.ErrInvalidRecord
	}
	if offer.ID == "" {
		offer.ID = xid.New("ofr")
	}
	offer.NegotiationID = n.ID
	n.CurrentOffer = offer.Amount
	n.UpdatedAt = offer.CreatedAt
	n.Version++

	s.negotiations[n.ID] = n
	s.offers[n.ID] = append(s.offers[n.ID], offer)
	return s.negotiationLocked(n.ID), nil
}

func (s *Store) UpdateNegotiationStatus(_ context.Context, id string, expectedVersion int, status string, at time.Time) (*domain.Negotiation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.activeNegotiationLocked(id, expectedVersion)
	if err != nil {
		return nil, err
	}
	n.Status = status
	n.UpdatedAt = at
	n.Version++
	s.negotiations[n.ID] = n
	return s.negotiationLocked(n.ID), nil
}

func (s *Store) AcceptNegotiation(_ context.Context, id string, expectedVersion int, tx domain.Transaction) (*domain.Negotiation, *domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.activeNegotiationLocked(id, expectedVersion)
	if err != nil {
		return nil, nil, err
	}
	listing, exists := s.listings[n.ListingID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	if listing.Status != domain.ListingActive {
		return nil, nil, store.ErrConflict
	}
	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	tx.NegotiationID = n.ID
	tx.Status = domain.TxPending
	tx.Version = 1

	n.Status = domain.NegotiationAccepted
	n.UpdatedAt = tx.CreatedAt
	n.Version++
	listing.Status = domain.ListingSold
	listing.UpdatedAt = tx.CreatedAt
	listing.Version++

	s.negotiations[n.ID] = n
	s.listings[listing.ID] = listing
	s.transactions[tx.ID] = tx

	created := tx
	return s.negotiationLocked(n.ID), &created, nil
}

func (s *Store) ExpireNegotiations(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, n := range s.negotiations {
		if !n.IsExpired(now) {
			continue
		}
		n.Status = domain.NegotiationExpired
		n.UpdatedAt = now
		n.Version++
		s.negotiations[id] = n
		expired++
	}
	return expired, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactions[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, status string, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for _, tx := range s.transactions {
		if userID != "" && !tx.IsParty(userID) {
			continue
		}
		if status != "" && tx.Status != status {
			continue
		}
		out = append(out, *cloneTransaction(tx))
	}
	slices.SortFunc(out, func(a, b domain.Transaction) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(out, limit), nil
}

func (s *Store) TransitionTransaction(_ context.Context, tx domain.Transaction, expectedVersion int, listing *domain.Listing) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.transactions[tx.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, store.ErrConflict
	}
	if listing != nil {
		stored, ok := s.listings[listing.ID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if stored.Version != listing.Version {
			return nil, store.ErrConflict
		}
		updated := *listing
		updated.VendorID = stored.VendorID
		updated.CreatedAt = stored.CreatedAt
		updated.Version = stored.Version + 1
		s.listings[listing.ID] = updated
	}
	tx.Version = expectedVersion + 1
	s.transactions[tx.ID] = tx
	return cloneTransaction(tx), nil
}

func (s *Store) CountTransactionsSince(_ context.Context, since time.Time, statuses []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, tx := range s.transactions {
		if tx.CreatedAt.Before(since) {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, tx.Status) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Store) CountVendorTransactions(_ context.Context, vendorID string) (domain.TransactionCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := domain.TransactionCounts{}
	for _, tx := range s.transactions {
		if tx.VendorID != vendorID {
			continue
		}
		counts.Total++
		if tx.Status == store.CompletedTransactionStatus {
			counts.Completed++
		}
	}
	return counts, nil
}

func (s *Store) CreateRating(_ context.Context, rating domain.Rating) (*domain.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rating.TransactionID == "" || rating.VendorID == "" || rating.BuyerID == "" {
		return nil, store.ErrInvalidRecord
	}
	if _, exists := s.ratingsByTx[rating.TransactionID]; exists {
		return nil, store.ErrConflict
	}
	if rating.ID == "" {
		rating.ID = xid.New("rat")
	}
	s.ratingsByTx[rating.TransactionID] = rating
	created := rating
	return &created, nil
}

func (s *Store) ListVendorRatings(_ context.Context, vendorID string) ([]domain.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Rating, 0)
	for _, rating := range s.ratingsByTx {
		if rating.VendorID == vendorID {
			out = append(out, rating)
		}
	}
	slices.SortFunc(out, func(a, b domain.Rating) int {
		return -newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetTrustScore(_ context.Context, vendorID string) (*domain.TrustScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, exists := s.trustScores[vendorID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneTrustScore(score), nil
}

func (s *Store) UpsertTrustScore(_ context.Context, score domain.TrustScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if score.VendorID == "" {
		return store.ErrInvalidRecord
	}
	s.trustScores[score.VendorID] = *cloneTrustScore(score)
	return nil
}

func (s *Store) CreateMessage(_ context.Context, message domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.SenderID == "" || message.RecipientID == "" || strings.TrimSpace(message.Body) == "" {
		return nil, store.ErrInvalidRecord
	}
	if message.ID == "" {
		message.ID = xid.New("msg")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, message)
	created := message
	return &created, nil
}

func (s *Store) ListVendorMessages(_ context.Context, vendorID string, since time.Time) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, 0)
	for _, msg := range s.messages {
		if msg.SenderID != vendorID && msg.RecipientID != vendorID {
			continue
		}
		if msg.CreatedAt.Before(since) {
			continue
		}
		out = append(out, msg)
	}
	sortMessages(out)
	return out, nil
}

func (s *Store) ListConversation(_ context.Context, userID string, otherUserID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, 0)
	for _, msg := range s.messages {
		if (msg.SenderID == userID && msg.RecipientID == otherUserID) ||
			(msg.SenderID == otherUserID && msg.RecipientID == userID) {
			out = append(out, msg)
		}
	}
	sortMessages(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.ErrInvalidRecord
	}
	if _, exists := s.userIDsByName[username]; exists {
		return nil, store.ErrConflict
	}
	user.Username = username
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleBuyer
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByID[user.ID] = user
	s.userIDsByName[username] = user.ID
	created := user
	return &created, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.userIDsByName[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, user := range s.usersByID {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	id, exists := s.userIDsByName[username]
	if !exists {
		return store.ErrNotFound
	}
	user := s.usersByID[id]
	user.Password = password
	s.usersByID[id] = user
	return nil
}

func (s *Store) activeNegotiationLocked(id string, expectedVersion int) (domain.Negotiation, error) {
	n, exists := s.negotiations[id]
	if !exists {
		return domain.Negotiation{}, store.ErrNotFound
	}
	if n.Version != expectedVersion || n.Status != domain.NegotiationActive {
		return domain.Negotiation{}, store.ErrConflict
	}
	return n, nil
}

func (s *Store) negotiationLocked(id string) *domain.Negotiation {
	n := s.negotiations[id]
	offers := s.offers[id]
	n.Offers = make([]domain.Offer, len(offers))
	copy(n.Offers, offers)
	return &n
}

func newestFirst(a time.Time, b time.Time, aID string, bID string) int {
	if c := b.Compare(a); c != 0 {
		return c
	}
	return strings.Compare(aID, bID)
}

func sortMessages(msgs []domain.Message) {
	slices.SortStableFunc(msgs, func(a, b domain.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func cloneTransaction(src domain.Transaction) *domain.Transaction {
	dst := src
	for _, ts := range []**time.Time{&dst.ConfirmedAt, &dst.ShippedAt, &dst.DeliveredAt, &dst.CancelledAt, &dst.DisputedAt, &dst.ResolvedAt} {
		if *ts != nil {
			v := **ts
			*ts = &v
		}
	}
	return &dst
}

func cloneTrustScore(src domain.TrustScore) *domain.TrustScore {
	dst := src
	dst.Badges = append([]string{}, src.Badges...)
	return &dst
}

var _ store.Repository = (*Store)(nil)
