// Package handler exposes account creation, login and logout over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"canny/backend/internal/identity/service"
	"canny/backend/internal/logging"
	"canny/backend/internal/server/httpx"
	userdomain "canny/backend/internal/user/domain"
)

// AuthService is the subset of *service.AuthService used by the handlers.
type AuthService interface {
	CreateAccount(ctx context.Context, in service.CreateAccountInput) (*userdomain.User, error)
	Login(ctx context.Context, in service.LoginInput) (*service.AuthResult, error)
	Logout(ctx context.Context, accessToken string) error
}

// Handler serves /api/auth.
type Handler struct {
	auth AuthService
	log  logging.Logger
}

// New returns a Handler. log may be nil.
func New(auth AuthService, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{auth: auth, log: log}
}

type createAccountRequest struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// CreateAccount handles POST /api/auth/create-account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
		return
	}
	_, err := h.auth.CreateAccount(r.Context(), service.CreateAccountInput{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		h.writeError(r.Context(), w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, messageResponse{Message: "account created successfully"})
}

// Login handles POST /api/auth/login. The device comes from the device-id,
// device-name and device-model headers.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
		return
	}
	res, err := h.auth.Login(r.Context(), service.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		DeviceID:    r.Header.Get(httpx.HeaderDeviceID),
		DeviceName:  r.Header.Get(httpx.HeaderDeviceName),
		DeviceModel: r.Header.Get(httpx.HeaderDeviceModel),
	})
	if err != nil {
		h.writeError(r.Context(), w, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{
		UserID:       res.UserID,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

// Logout handles POST /api/auth/logout. It answers 200 whether or not a session
// existed; a store failure is a 500 since the refresh token may still be live.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), r.Header.Get(httpx.HeaderAccessToken)); err != nil {
		h.writeError(r.Context(), w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, verr.Message)
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		httpx.Error(w, http.StatusBadRequest, httpx.CodeConflict, "unable to create account")
	case errors.Is(err, service.ErrAuthFailed):
		httpx.Error(w, http.StatusUnauthorized, httpx.CodeAuthFailed, "invalid email or password")
	default:
		h.log.Error(ctx, op+" failed", "error", err)
		httpx.Upstream(w)
	}
}
