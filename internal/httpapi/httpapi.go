package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/metrics"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/service"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *clientLimiter
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

type Option func(*API)

func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *API) {
		a.metrics = m
	}
}

// WithLoginRate caps login attempts per client per minute.
func WithLoginRate(perMinute int) Option {
	return func(a *API) {
		a.loginLimiter = newClientLimiter(perMinute)
	}
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, opts ...Option) *API {
	a := &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newClientLimiter(5),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "http"))
	return a
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(a.securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(limitBody)

	r.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/register", a.handleRegister)

		r.Post("/pricing/quote", a.handlePriceQuote)
		r.Post("/pricing/validate-offer", a.handleValidateOffer)
		r.Post("/pricing/counter-offer", a.handleCounterOffer)

		r.Get("/listings", a.handleListListings)
		r.Get("/listings/{id}", a.handleGetListing)
		r.Get("/vendors/{id}/trust-score", a.handleGetTrustScore)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Post("/listings", a.handleCreateListing)
			r.Patch("/listings/{id}", a.handleUpdateListing)
			r.Post("/listings/{id}/withdraw", a.handleWithdrawListing)

			r.Get("/negotiations", a.handleListNegotiations)
			r.Post("/negotiations", a.handleCreateNegotiation)
			r.Get("/negotiations/{id}", a.handleGetNegotiation)
			r.Post("/negotiations/{id}/offers", a.handleCounterOfferSubmit)
			r.Post("/negotiations/{id}/accept", a.handleAcceptOffer)
			r.Post("/negotiations/{id}/reject", a.handleRejectOffer)
			r.Post("/negotiations/{id}/withdraw", a.handleWithdrawNegotiation)
			r.Get("/negotiations/{id}/suggestion", a.handleSuggestCounterOffer)

			r.Get("/transactions", a.handleListTransactions)
			r.Get("/transactions/{id}", a.handleGetTransaction)
			r.Post("/transactions/{id}/confirm", a.handleTransactionStep(a.service.ConfirmTransaction))
			r.Post("/transactions/{id}/ship", a.handleTransactionStep(a.service.MarkAsShipped))
			r.Post("/transactions/{id}/deliver", a.handleTransactionStep(a.service.ConfirmDelivery))
			r.Post("/transactions/{id}/cancel", a.handleTransactionNote(a.service.CancelTransaction, false))
			r.Post("/transactions/{id}/dispute", a.handleTransactionNote(a.service.RaiseDispute, true))
			r.Post("/transactions/{id}/resolve", a.handleTransactionNote(a.service.ResolveDispute, true))

			r.Post("/ratings", a.handleSubmitRating)
			r.Post("/vendors/{id}/trust-score/recalculate", a.handleRecalculateTrustScore)

			r.Post("/messages", a.handleSendMessage)
			r.Get("/messages/{userId}", a.handleConversation)

			r.Get("/users", a.handleListUsers)
		})
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog records one line and one latency sample per request, keyed by
// the matched route pattern rather than the raw path.
func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(startedAt)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.metrics.ObserveRequest(r.Method, route, status, elapsed)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrInactiveAccount) {
			status = http.StatusInternalServerError
		}
		a.writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := a.auth.Register(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handlePriceQuote(w http.ResponseWriter, r *http.Request) {
	var req domain.PriceQuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.QuotePrice(r.Context(), req)
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleValidateOffer(w http.ResponseWriter, r *http.Request) {
	var req domain.OfferCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.ValidateOffer(r.Context(), req)
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleCounterOffer(w http.ResponseWriter, r *http.Request) {
	var req domain.OfferCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CounterOffer(r.Context(), req)
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleListListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listings, err := a.service.ListListings(r.Context(), domain.ListingFilter{
		VendorID: strings.TrimSpace(q.Get("vendor_id")),
		CropType: q.Get("crop_type"),
		Status:   q.Get("status"),
		Limit:    parsePositiveLimit(q.Get("limit"), 50, 200),
	})
	a.respond(w, http.StatusOK, map[string]any{"listings": listings}, err)
}

func (a *API) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := a.service.GetListing(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, listing, err)
}

func (a *API) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req domain.ListingCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CreateListing(r.Context(), req)
	a.respond(w, http.StatusCreated, resp, err)
}

func (a *API) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	var req domain.ListingUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.UpdateListing(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleWithdrawListing(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.WithdrawListing(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleListNegotiations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := a.service.ListNegotiations(r.Context(), q.Get("status"), parsePositiveLimit(q.Get("limit"), 50, 200))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleCreateNegotiation(w http.ResponseWriter, r *http.Request) {
	var req domain.NegotiationCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CreateNegotiation(r.Context(), req)
	a.respond(w, http.StatusCreated, resp, err)
}

func (a *API) handleGetNegotiation(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetNegotiation(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleCounterOfferSubmit(w http.ResponseWriter, r *http.Request) {
	var req domain.CounterOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.SubmitCounterOffer(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.AcceptOffer(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleRejectOffer(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.RejectOffer(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleWithdrawNegotiation(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.WithdrawNegotiation(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleSuggestCounterOffer(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.SuggestCounterOffer(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := a.service.ListTransactions(r.Context(), q.Get("status"), parsePositiveLimit(q.Get("limit"), 50, 200))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, resp, err)
}

type transactionStep func(ctx context.Context, transactionID string) (domain.Transaction, error)

type transactionNoteStep func(ctx context.Context, transactionID string, req domain.TransactionNoteRequest) (domain.Transaction, error)

func (a *API) handleTransactionStep(step transactionStep) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := step(r.Context(), chi.URLParam(r, "id"))
		a.respond(w, http.StatusOK, resp, err)
	}
}

// handleTransactionNote serves steps that carry a reason. An empty body is
// accepted when the note is optional.
func (a *API) handleTransactionNote(step transactionNoteStep, bodyRequired bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.TransactionNoteRequest
		if r.ContentLength != 0 || bodyRequired {
			if err := decodeJSON(r, &req); err != nil {
				a.writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		resp, err := step(r.Context(), chi.URLParam(r, "id"), req)
		a.respond(w, http.StatusOK, resp, err)
	}
}

func (a *API) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req domain.RatingCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.SubmitRating(r.Context(), req)
	a.respond(w, http.StatusCreated, resp, err)
}

func (a *API) handleGetTrustScore(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetTrustScore(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleRecalculateTrustScore(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.RecalculateTrustScore(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.MessageCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.SendMessage(r.Context(), req)
	a.respond(w, http.StatusCreated, resp, err)
}

func (a *API) handleConversation(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListConversation(r.Context(), chi.URLParam(r, "userId"), parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500))
	a.respond(w, http.StatusOK, resp, err)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListUsers(r.Context())
	a.respond(w, http.StatusOK, map[string]any{"users": users}, err)
}

func (a *API) respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, status, payload)
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	a.writeError(w, statusFromError(err), err)
}

// statusFromError maps domain errors by their status hint and any store
// sentinel that escaped translation by its meaning.
func statusFromError(err error) int {
	var derr *domain.Error
	switch {
	case errors.As(err, &derr):
		return domain.StatusCode(err)
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; clients get a generic message.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
