package invoices

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
	"github.com/mpk-pharma/kanha/report"
)

// IdempotencyHeader carries the optional client key of a submission.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the invoice endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	printer *Printer
	lookup  http.HandlerFunc
}

// NewHandler builds Handler. lookup serves the cat-no search of the invoice
// form and may be nil.
func NewHandler(logger *slog.Logger, service *Service, printer *Printer, lookup http.HandlerFunc) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, printer: printer, lookup: lookup}
}

// MountRoutes registers invoice routes behind authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/next-invoice-number", h.nextNumber)
	if h.lookup != nil {
		r.Get("/items/cat-no/{catNo}", h.lookup)
	}
	r.Get("/user/{userId}", h.ListByUser)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/print", h.print)
	r.Get("/{id}/pdf", h.pdf)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	result, err := h.service.Create(r.Context(), p, key, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) nextNumber(w http.ResponseWriter, r *http.Request) {
	number, err := h.service.NextNumber(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"invoice_no": number})
}

// ListByUser lists the invoice summaries of the user in the path.
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.RespondError(w, h.logger, httpx.Validation("Invalid user ID format."))
		return
	}
	if _, err := shared.AuthorizeUser(r.Context(), userID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var page shared.PageRequest
	q := r.URL.Query()
	if q.Has("page") || q.Has("pageSize") {
		page = shared.ParsePageRequest(r)
	}
	list, total, err := h.service.List(r.Context(), userID, page)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []Summary{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	_, detail, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.pathInvoice(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p.UserID, id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Invoice deleted successfully"})
}

func (h *Handler) print(w http.ResponseWriter, r *http.Request) {
	p, detail, ok := h.load(w, r)
	if !ok {
		return
	}
	html, err := h.printer.HTML(p, detail)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(html)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	p, detail, ok := h.load(w, r)
	if !ok {
		return
	}
	pdf, err := h.printer.PDF(r.Context(), p, detail)
	if errors.Is(err, report.ErrDisabled) {
		httpx.Fail(w, http.StatusServiceUnavailable, "PDF rendering is not available")
		return
	}
	if err != nil {
		h.logger.Error("render invoice pdf", slog.Int64("invoice_id", detail.Invoice.ID), slog.Any("error", err))
		httpx.Fail(w, http.StatusBadGateway, "Could not render invoice PDF")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=\""+fileName(detail.Invoice.InvoiceNo)+".pdf\"")
	_, _ = w.Write(pdf)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (shared.Principal, Detail, bool) {
	p, id, ok := h.pathInvoice(w, r)
	if !ok {
		return shared.Principal{}, Detail{}, false
	}
	detail, err := h.service.Get(r.Context(), p.UserID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return shared.Principal{}, Detail{}, false
	}
	return p, detail, true
}

func (h *Handler) pathInvoice(w http.ResponseWriter, r *http.Request) (shared.Principal, int64, bool) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return shared.Principal{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, h.logger, httpx.Validation("Invalid invoice ID format."))
		return shared.Principal{}, 0, false
	}
	return p, id, true
}

// fileName turns MPK/25-26/00008 into MPK-25-26-00008.
func fileName(invoiceNo string) string {
	return strings.ReplaceAll(invoiceNo, "/", "-")
}
