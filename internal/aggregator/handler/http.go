// Package handler exposes the aggregator operations over HTTP. All routes but
// OAuthRedirect expect the identity set by the session gate.
package handler

import (
	"context"
	"errors"
	"net/http"

	"canny/backend/internal/aggregator"
	"canny/backend/internal/aggregator/domain"
	"canny/backend/internal/aggregator/service"
	"canny/backend/internal/logging"
	"canny/backend/internal/server/httpx"
	"canny/backend/internal/server/middleware"
)

// HeaderPublicToken carries the one-time public token on exchange.
const HeaderPublicToken = "plaid-public-token"

// Service is the subset of *service.Service used by the handlers.
type Service interface {
	LinkToken(ctx context.Context, userID string) (string, error)
	Exchange(ctx context.Context, userID, publicToken string) (*aggregator.ExchangeResult, error)
	ListAccessTokens(ctx context.Context, userID string) ([]string, error)
	AccountSummary(ctx context.Context, userID string, accessTokens []string) (map[string][]domain.Account, error)
}

// Handler serves /api/plaid.
type Handler struct {
	svc Service
	log logging.Logger
}

// New returns a Handler. log may be nil.
func New(svc Service, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{svc: svc, log: log}
}

type linkTokenResponse struct {
	LinkToken string `json:"linkToken"`
}

type exchangeResponse struct {
	AccessToken string `json:"accessToken"`
	ItemID      string `json:"itemId"`
}

type oauthRedirectResponse struct {
	Message     string `json:"message"`
	PublicToken string `json:"publicToken,omitempty"`
}

// LinkToken handles POST /api/plaid/get-link-token.
func (h *Handler) LinkToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	tok, err := h.svc.LinkToken(r.Context(), userID)
	if err != nil {
		h.writeError(r.Context(), w, "get link token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, linkTokenResponse{LinkToken: tok})
}

// Exchange handles GET /api/plaid/exchange-public-for-access-token.
func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Exchange(r.Context(), userID, r.Header.Get(HeaderPublicToken))
	if err != nil {
		h.writeError(r.Context(), w, "exchange public token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, exchangeResponse{AccessToken: res.AccessToken, ItemID: res.ItemID})
}

// AccessTokens handles GET /api/plaid/get-access-tokens.
func (h *Handler) AccessTokens(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	toks, err := h.svc.ListAccessTokens(r.Context(), userID)
	if err != nil {
		h.writeError(r.Context(), w, "get access tokens", err)
		return
	}
	if toks == nil {
		toks = []string{}
	}
	httpx.JSON(w, http.StatusOK, toks)
}

// AccountSummary handles POST /api/plaid/get-account-summary. The optional body
// is a JSON array of access tokens.
func (h *Handler) AccountSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var tokens []string
	if err := httpx.Decode(w, r, &tokens); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "body must be an array of access tokens")
		return
	}
	summary, err := h.svc.AccountSummary(r.Context(), userID, tokens)
	if err != nil {
		h.writeError(r.Context(), w, "get account summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

// OAuthRedirect handles GET /api/plaid/oauth-redirect, the landing page after an
// institution's OAuth flow. It is public.
func (h *Handler) OAuthRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	publicToken := q.Get("public_token")
	if publicToken == "" {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "oauth failed: missing public token")
		return
	}
	h.log.Info(r.Context(), "aggregator oauth redirect", "oauth_state_id", q.Get("oauth_state_id"))
	httpx.JSON(w, http.StatusOK, oauthRedirectResponse{Message: "oauth completed", PublicToken: publicToken})
}

// userID reads the gated identity. Its absence means the route was mounted without the gate.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok || userID == "" {
		h.log.Error(r.Context(), "aggregator route reached without identity", "path", r.URL.Path)
		httpx.Upstream(w)
		return "", false
	}
	return userID, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, verr.Message)
		return
	}
	h.log.Error(ctx, op+" failed", "error", err)
	httpx.Upstream(w)
}
