package items

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
)

// Handler exposes the stock endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers item routes. Every route expects an authenticated
// principal in the request context.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/search", h.search)
	r.Get("/low-stock", h.lowStock)
	r.Get("/cat-no/{catNo}", h.getByCatNo)
	r.Get("/user/{userId}", h.listByUser)
	r.Get("/user/{userId}/export", h.export)
	r.Get("/{itemId}", h.get)
	r.Put("/{itemId}", h.update)
	r.Delete("/{itemId}", h.delete)
}

// GetByCatNo is shared with the invoice form lookup route.
func (h *Handler) GetByCatNo(w http.ResponseWriter, r *http.Request) {
	h.getByCatNo(w, r)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if req.UserID == 0 {
		req.UserID = p.UserID
	}
	if _, err := shared.AuthorizeUser(r.Context(), req.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	item, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := strconv.ParseInt(q.Get("userId"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.RespondError(w, h.logger, httpx.Validation("Invalid search parameters", "userId must be a positive number"))
		return
	}
	if _, err := shared.AuthorizeUser(r.Context(), userID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.Search(r.Context(), userID, SearchType(q.Get("searchType")), q.Get("searchTerm"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// DefaultLowStockThreshold is used when the request names no threshold.
const DefaultLowStockThreshold = 5

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	threshold := DefaultLowStockThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		threshold, err = strconv.Atoi(raw)
		if err != nil || threshold < 0 {
			httpx.RespondError(w, h.logger, httpx.Validation("Invalid threshold", "threshold must be 0 or more"))
			return
		}
	}
	list, err := h.service.LowStock(r.Context(), p.UserID, threshold)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, SearchResult{Count: len(list), Items: list})
}

func (h *Handler) getByCatNo(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	item, err := h.service.GetByCatNo(r.Context(), p.UserID, chi.URLParam(r, "catNo"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) listByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUser(w, r)
	if !ok {
		return
	}
	page, err := h.service.List(r.Context(), userID, shared.ParsePageRequest(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

// ListAllByUser returns every item of the user in the path as a plain array.
func (h *Handler) ListAllByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUser(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListAll(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []Item{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUser(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListAll(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", ExportContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=stock-"+strconv.FormatInt(userID, 10)+".xlsx")
	if err := WriteWorkbook(w, list); err != nil {
		h.logger.Error("write stock workbook", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.pathItem(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), p.UserID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.pathItem(w, r)
	if !ok {
		return
	}
	var patch ItemPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	item, err := h.service.Update(r.Context(), p.UserID, id, patch)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.pathItem(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p.UserID, id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Item deleted successfully"})
}

func (h *Handler) pathUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.RespondError(w, h.logger, httpx.Validation("Invalid user ID format."))
		return 0, false
	}
	if _, err := shared.AuthorizeUser(r.Context(), userID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return 0, false
	}
	return userID, true
}

func (h *Handler) pathItem(w http.ResponseWriter, r *http.Request) (shared.Principal, int64, bool) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return shared.Principal{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, h.logger, httpx.Validation("Invalid item ID format."))
		return shared.Principal{}, 0, false
	}
	return p, id, true
}
