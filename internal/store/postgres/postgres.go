package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an already opened handle.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables and indexes. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const listingColumns = `id, vendor_id, crop_type, quantity, unit, location, base_price, quality_tier,
	quality_multiplier, demand_adjuster, final_price, status, created_at, updated_at, version`

const negotiationColumns = `id, listing_id, buyer_id, vendor_id, status, current_offer,
	expires_at, created_at, updated_at, version`

const transactionColumns = `id, negotiation_id, listing_id, buyer_id, vendor_id, agreed_price, quantity, status,
	cancel_reason, cancelled_by, dispute_reason, resolution, created_at, updated_at,
	confirmed_at, shipped_at, delivered_at, cancelled_at, disputed_at, resolved_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateListing(ctx context.Context, listing domain.Listing) (*domain.Listing, error) {
	if listing.VendorID == "" || listing.CropType == "" || listing.BasePrice <= 0 || listing.Quantity <= 0 {
		return nil, store.ErrInvalidRecord
	}
	if listing.ID == "" {
		listing.ID = xid.New("lst")
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, listing.ID, listing.VendorID, listing.CropType, listing.Quantity, listing.Unit, listing.Location,
		listing.BasePrice, listing.QualityTier, listing.QualityMultiplier, listing.DemandAdjuster,
		listing.FinalPrice, listing.Status, listing.CreatedAt, listing.UpdatedAt, listing.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &listing, nil
}

func (s *Store) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	listing, err := scanListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return listing, nil
}

// UpdateListing writes listing only if its Version still matches the stored row.
func (s *Store) UpdateListing(ctx context.Context, listing domain.Listing) (*domain.Listing, error) {
	if listing.BasePrice <= 0 || listing.Quantity < 0 {
		return nil, store.ErrInvalidRecord
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE listings
		SET quantity = $2, location = $3, base_price = $4, quality_tier = $5,
			quality_multiplier = $6, demand_adjuster = $7, final_price = $8, status = $9, updated_at = $10,
			version = version + 1
		WHERE id = $1 AND version = $11
		RETURNING `+listingColumns,
		listing.ID, listing.Quantity, listing.Location, listing.BasePrice, listing.QualityTier,
		listing.QualityMultiplier, listing.DemandAdjuster, listing.FinalPrice, listing.Status, listing.UpdatedAt,
		listing.Version)
	updated, err := scanListing(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, listing.ID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrConflict
}

func (s *Store) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	limit := store.NormalizeLimit(filter.Limit, 200, 500)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE ($1 = '' OR vendor_id = $1)
			AND ($2 = '' OR lower(crop_type) = lower($2))
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC, id ASC
		LIMIT $4
	`, filter.VendorID, filter.CropType, filter.Status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	listings := make([]domain.Listing, 0, 32)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *listing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return listings, nil
}

func (s *Store) CreateNegotiation(ctx context.Context, negotiation domain.Negotiation, first domain.Offer) (*domain.Negotiation, error) {
	if negotiation.ListingID == "" || negotiation.BuyerID == "" || negotiation.VendorID == "" || first.Amount <= 0 {
		return nil, store.ErrInvalidRecord
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

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO negotiations (`+negotiationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, negotiation.ID, negotiation.ListingID, negotiation.BuyerID, negotiation.VendorID, negotiation.Status,
		negotiation.CurrentOffer, negotiation.ExpiresAt, negotiation.CreatedAt, negotiation.UpdatedAt, negotiation.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := insertOffer(ctx, pgTx, first); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	negotiation.Offers = []domain.Offer{first}
	return &negotiation, nil
}

func (s *Store) GetNegotiation(ctx context.Context, id string) (*domain.Negotiation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+negotiationColumns+` FROM negotiations WHERE id = $1`, id)
	negotiation, err := scanNegotiation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, negotiation_id, proposed_by, amount, reasoning, offer_type, created_at
		FROM offers
		WHERE negotiation_id = $1
		ORDER BY created_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offers := make([]domain.Offer, 0, 4)
	for rows.Next() {
		var offer domain.Offer
		if err := rows.Scan(&offer.ID, &offer.NegotiationID, &offer.ProposedBy, &offer.Amount, &offer.Reasoning, &offer.OfferType, &offer.CreatedAt); err != nil {
			return nil, err
		}
		offer.CreatedAt = offer.CreatedAt.UTC()
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	negotiation.Offers = offers
	return negotiation, nil
}

func (s *Store) ListNegotiations(ctx context.Context, userID string, status string, limit int) ([]domain.Negotiation, error) {
	limit = store.NormalizeLimit(limit, 200, 500)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+negotiationColumns+`
		FROM negotiations
		WHERE ($1 = '' OR buyer_id = $1 OR vendor_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id ASC
		LIMIT $3
	`, userID, status, limit)
	if err != nil {
		return nil, err
	}
	return collectNegotiations(rows)
}

func (s *Store) ListActiveNegotiationsByListing(ctx context.Context, listingID string) ([]domain.Negotiation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+negotiationColumns+`
		FROM negotiations
		WHERE listing_id = $1 AND status = $2
		ORDER BY created_at DESC, id ASC
	`, listingID, domain.NegotiationActive)
	if err != nil {
		return nil, err
	}
	return collectNegotiations(rows)
}

func (s *Store) AppendOffer(ctx context.Context, negotiationID string, expectedVersion int, offer domain.Offer) (*domain.Negotiation, error) {
	if offer.Amount <= 0 || offer.ProposedBy == "" {
		return nil, store.ErrInvalidRecord
	}
	if offer.ID == "" {
		offer.ID = xid.New("ofr")
	}
	offer.NegotiationID = negotiationID

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE negotiations
		SET current_offer = $3, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'active'
	`, negotiationID, expectedVersion, offer.Amount, offer.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := s.checkVersionedWrite(ctx, pgTx, res, "negotiations", negotiationID); err != nil {
		return nil, err
	}
	if err := insertOffer(ctx, pgTx, offer); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetNegotiation(ctx, negotiationID)
}

func (s *Store) UpdateNegotiationStatus(ctx context.Context, id string, expectedVersion int, status string, at time.Time) (*domain.Negotiation, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE negotiations
		SET status = $3, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'active'
	`, id, expectedVersion, status, at)
	if err != nil {
		return nil, err
	}
	if err := s.checkVersionedWrite(ctx, s.db, res, "negotiations", id); err != nil {
		return nil, err
	}
	return s.GetNegotiation(ctx, id)
}

func (s *Store) AcceptNegotiation(ctx context.Context, id string, expectedVersion int, tx domain.Transaction) (*domain.Negotiation, *domain.Transaction, error) {
	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	tx.NegotiationID = id
	tx.Status = domain.TxPending
	tx.Version = 1

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE negotiations
		SET status = $3, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'active'
	`, id, expectedVersion, domain.NegotiationAccepted, tx.CreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkVersionedWrite(ctx, pgTx, res, "negotiations", id); err != nil {
		return nil, nil, err
	}

	res, err = pgTx.ExecContext(ctx, `
		UPDATE listings
		SET status = $2, updated_at = $3, version = version + 1
		WHERE id = $1 AND status = $4
	`, tx.ListingID, domain.ListingSold, tx.CreatedAt, domain.ListingActive)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkVersionedWrite(ctx, pgTx, res, "listings", tx.ListingID); err != nil {
		return nil, nil, err
	}

	if err := insertTransaction(ctx, pgTx, tx); err != nil {
		return nil, nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}

	negotiation, err := s.GetNegotiation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return negotiation, &tx, nil
}

func (s *Store) ExpireNegotiations(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE negotiations
		SET status = $1, updated_at = $2, version = version + 1
		WHERE status = $3 AND expires_at <= $2
	`, domain.NegotiationExpired, now, domain.NegotiationActive)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, status string, limit int) ([]domain.Transaction, error) {
	limit = store.NormalizeLimit(limit, 200, 500)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1 = '' OR buyer_id = $1 OR vendor_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id ASC
		LIMIT $3
	`, userID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) TransitionTransaction(ctx context.Context, tx domain.Transaction, expectedVersion int, listing *domain.Listing) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3, cancel_reason = $4, cancelled_by = $5, dispute_reason = $6, resolution = $7,
			updated_at = $8, confirmed_at = $9, shipped_at = $10, delivered_at = $11,
			cancelled_at = $12, disputed_at = $13, resolved_at = $14, version = version + 1
		WHERE id = $1 AND version = $2
	`, tx.ID, expectedVersion, tx.Status, tx.CancelReason, tx.CancelledBy, tx.DisputeReason, tx.Resolution,
		tx.UpdatedAt, nullTime(tx.ConfirmedAt), nullTime(tx.ShippedAt), nullTime(tx.DeliveredAt),
		nullTime(tx.CancelledAt), nullTime(tx.DisputedAt), nullTime(tx.ResolvedAt))
	if err != nil {
		return nil, err
	}
	if err := s.checkVersionedWrite(ctx, pgTx, res, "transactions", tx.ID); err != nil {
		return nil, err
	}

	if listing != nil {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE listings
			SET quantity = $2, status = $3, updated_at = $4, version = version + 1
			WHERE id = $1 AND version = $5
		`, listing.ID, listing.Quantity, listing.Status, listing.UpdatedAt, listing.Version)
		if err != nil {
			return nil, err
		}
		if err := s.checkVersionedWrite(ctx, pgTx, res, "listings", listing.ID); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	tx.Version = expectedVersion + 1
	return &tx, nil
}

func (s *Store) CountTransactionsSince(ctx context.Context, since time.Time, statuses []string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM transactions
		WHERE created_at >= $1
			AND (cardinality($2::text[]) = 0 OR status = ANY($2))
	`, since, statuses).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CountVendorTransactions(ctx context.Context, vendorID string) (domain.TransactionCounts, error) {
	var counts domain.TransactionCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $2)
		FROM transactions
		WHERE vendor_id = $1
	`, vendorID, store.CompletedTransactionStatus).Scan(&counts.Total, &counts.Completed)
	if err != nil {
		return domain.TransactionCounts{}, err
	}
	return counts, nil
}

func (s *Store) CreateRating(ctx context.Context, rating domain.Rating) (*domain.Rating, error) {
	if rating.TransactionID == "" || rating.VendorID == "" || rating.BuyerID == "" {
		return nil, store.ErrInvalidRecord
	}
	if rating.ID == "" {
		rating.ID = xid.New("rat")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ratings (id, transaction_id, buyer_id, vendor_id, delivery_rating, quality_rating, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rating.ID, rating.TransactionID, rating.BuyerID, rating.VendorID, rating.DeliveryRating, rating.QualityRating, rating.Comment, rating.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &rating, nil
}

func (s *Store) ListVendorRatings(ctx context.Context, vendorID string) ([]domain.Rating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, buyer_id, vendor_id, delivery_rating, quality_rating, comment, created_at
		FROM ratings
		WHERE vendor_id = $1
		ORDER BY created_at ASC
	`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ratings := make([]domain.Rating, 0, 16)
	for rows.Next() {
		var r domain.Rating
		if err := rows.Scan(&r.ID, &r.TransactionID, &r.BuyerID, &r.VendorID, &r.DeliveryRating, &r.QualityRating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ratings, nil
}

func (s *Store) GetTrustScore(ctx context.Context, vendorID string) (*domain.TrustScore, error) {
	var score domain.TrustScore
	var badges []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT vendor_id, overall_score, delivery_score, quality_score, response_score, fair_pricing_score,
			transaction_count, rating_count, badges, flagged_for_review, updated_at
		FROM trust_scores
		WHERE vendor_id = $1
	`, vendorID).Scan(
		&score.VendorID,
		&score.OverallScore,
		&score.DeliveryScore,
		&score.QualityScore,
		&score.ResponseScore,
		&score.FairPricingScore,
		&score.TransactionCount,
		&score.RatingCount,
		&badges,
		&score.FlaggedForReview,
		&score.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	score.Badges = []string{}
	if len(badges) > 0 {
		if err := json.Unmarshal(badges, &score.Badges); err != nil {
			return nil, err
		}
	}
	score.UpdatedAt = score.UpdatedAt.UTC()
	return &score, nil
}

func (s *Store) UpsertTrustScore(ctx context.Context, score domain.TrustScore) error {
	if score.VendorID == "" {
		return store.ErrInvalidRecord
	}
	if score.Badges == nil {
		score.Badges = []string{}
	}
	badges, err := json.Marshal(score.Badges)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trust_scores (
			vendor_id, overall_score, delivery_score, quality_score, response_score, fair_pricing_score,
			transaction_count, rating_count, badges, flagged_for_review, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (vendor_id)
		DO UPDATE SET
			overall_score = EXCLUDED.overall_score,
			delivery_score = EXCLUDED.delivery_score,
			quality_score = EXCLUDED.quality_score,
			response_score = EXCLUDED.response_score,
			fair_pricing_score = EXCLUDED.fair_pricing_score,
			transaction_count = EXCLUDED.transaction_count,
			rating_count = EXCLUDED.rating_count,
			badges = EXCLUDED.badges,
			flagged_for_review = EXCLUDED.flagged_for_review,
			updated_at = EXCLUDED.updated_at
	`, score.VendorID, score.OverallScore, score.DeliveryScore, score.QualityScore, score.ResponseScore,
		score.FairPricingScore, score.TransactionCount, score.RatingCount, string(badges), score.FlaggedForReview, score.UpdatedAt)
	return err
}

func (s *Store) CreateMessage(ctx context.Context, message domain.Message) (*domain.Message, error) {
	if message.SenderID == "" || message.RecipientID == "" || strings.TrimSpace(message.Body) == "" {
		return nil, store.ErrInvalidRecord
	}
	if message.ID == "" {
		message.ID = xid.New("msg")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, listing_id, body, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, message.ID, message.SenderID, message.RecipientID, nullIfEmpty(message.ListingID), message.Body, message.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (s *Store) ListVendorMessages(ctx context.Context, vendorID string, since time.Time) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, recipient_id, listing_id, body, created_at
		FROM messages
		WHERE (sender_id = $1 OR recipient_id = $1) AND created_at >= $2
		ORDER BY created_at ASC, id ASC
	`, vendorID, since)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (s *Store) ListConversation(ctx context.Context, userID string, otherUserID string, limit int) ([]domain.Message, error) {
	limit = store.NormalizeLimit(limit, 200, 1000)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, recipient_id, listing_id, body, created_at
		FROM (
			SELECT id, sender_id, recipient_id, listing_id, body, created_at
			FROM messages
			WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC, id ASC
	`, userID, otherUserID, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.ErrInvalidRecord
	}
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.ID, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.UserAccount, error) {
	return s.findUser(ctx, `id = $1`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	return s.findUser(ctx, `username = $1`, strings.ToLower(strings.TrimSpace(username)))
}

func (s *Store) findUser(ctx context.Context, where string, value string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM app_users
		WHERE `+where, value).Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// checkVersionedWrite turns a zero-row guarded update into ErrNotFound when
// the row is missing and ErrConflict when it exists but the guard failed.
func (s *Store) checkVersionedWrite(ctx context.Context, q queryer, res sql.Result, table string, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func insertOffer(ctx context.Context, db execer, offer domain.Offer) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO offers (id, negotiation_id, proposed_by, amount, reasoning, offer_type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, offer.ID, offer.NegotiationID, offer.ProposedBy, offer.Amount, offer.Reasoning, offer.OfferType, offer.CreatedAt)
	return err
}

func insertTransaction(ctx context.Context, db execer, tx domain.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, negotiation_id, listing_id, buyer_id, vendor_id, agreed_price, quantity, status,
			created_at, updated_at, version
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, tx.ID, tx.NegotiationID, tx.ListingID, tx.BuyerID, tx.VendorID, tx.AgreedPrice, tx.Quantity, tx.Status,
		tx.CreatedAt, tx.UpdatedAt, tx.Version)
	if err != nil && isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func scanListing(row rowScanner) (*domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(
		&l.ID,
		&l.VendorID,
		&l.CropType,
		&l.Quantity,
		&l.Unit,
		&l.Location,
		&l.BasePrice,
		&l.QualityTier,
		&l.QualityMultiplier,
		&l.DemandAdjuster,
		&l.FinalPrice,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
		&l.Version,
	)
	if err != nil {
		return nil, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}

func scanNegotiation(row rowScanner) (*domain.Negotiation, error) {
	var n domain.Negotiation
	err := row.Scan(
		&n.ID,
		&n.ListingID,
		&n.BuyerID,
		&n.VendorID,
		&n.Status,
		&n.CurrentOffer,
		&n.ExpiresAt,
		&n.CreatedAt,
		&n.UpdatedAt,
		&n.Version,
	)
	if err != nil {
		return nil, err
	}
	n.ExpiresAt = n.ExpiresAt.UTC()
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return &n, nil
}

func collectNegotiations(rows *sql.Rows) ([]domain.Negotiation, error) {
	defer rows.Close()

	result := make([]domain.Negotiation, 0, 16)
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var confirmedAt, shippedAt, deliveredAt, cancelledAt, disputedAt, resolvedAt sql.NullTime
	err := row.Scan(
		&tx.ID,
		&tx.NegotiationID,
		&tx.ListingID,
		&tx.BuyerID,
		&tx.VendorID,
		&tx.AgreedPrice,
		&tx.Quantity,
		&tx.Status,
		&tx.CancelReason,
		&tx.CancelledBy,
		&tx.DisputeReason,
		&tx.Resolution,
		&tx.CreatedAt,
		&tx.UpdatedAt,
		&confirmedAt,
		&shippedAt,
		&deliveredAt,
		&cancelledAt,
		&disputedAt,
		&resolvedAt,
		&tx.Version,
	)
	if err != nil {
		return nil, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	tx.ConfirmedAt = timePtr(confirmedAt)
	tx.ShippedAt = timePtr(shippedAt)
	tx.DeliveredAt = timePtr(deliveredAt)
	tx.CancelledAt = timePtr(cancelledAt)
	tx.DisputedAt = timePtr(disputedAt)
	tx.ResolvedAt = timePtr(resolvedAt)
	return &tx, nil
}

func collectMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer rows.Close()

	messages := make([]domain.Message, 0, 32)
	for rows.Next() {
		var msg domain.Message
		var listingID sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &listingID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if listingID.Valid {
			msg.ListingID = listingID.String
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	at := val.Time.UTC()
	return &at
}

var _ store.Repository = (*Store)(nil)
