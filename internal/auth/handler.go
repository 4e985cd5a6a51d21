package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	listings  []UserListing
}

// UserListing is a per-user collection served under /users/{userId}, such as
// the stock and invoice listings older clients read from there.
type UserListing struct {
	Path    string
	Handler http.HandlerFunc
}

// AddUserListings registers listings mounted by MountRoutes. The handlers
// read the userId URL parameter and run after Authenticate.
func (h *Handler) AddUserListings(listings ...UserListing) {
	for _, l := range listings {
		if l.Path == "" || l.Handler == nil {
			continue
		}
		h.listings = append(h.listings, l)
	}
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: shared.NewValidator()}
}

// MountRoutes registers user routes. Login is public; the rest sit behind
// Authenticate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(h.service, h.logger))
		r.Post("/logout", h.handleLogout)
		r.Get("/{userId}", h.showUser)
		for _, l := range h.listings {
			r.Get("/{userId}/"+strings.TrimPrefix(l.Path, "/"), l.Handler)
		}
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if problems := shared.ValidationProblems(h.validator.Struct(req)); len(problems) > 0 {
		httpx.RespondError(w, h.logger, httpx.Validation("Email and password are required", problems...))
		return
	}
	resp, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), SessionIDFromContext(r.Context())); err != nil {
		h.logger.Warn("remove session", slog.Any("error", err))
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.RespondError(w, h.logger, httpx.Validation("Invalid user ID format."))
		return
	}
	if _, err := shared.AuthorizeUser(r.Context(), userID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.service.User(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}
