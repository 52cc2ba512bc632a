package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pdvlite/go-pos-sync.git/internal/loyalty"
	"github.com/pdvlite/go-pos-sync.git/internal/pos"
	"github.com/pdvlite/go-pos-sync.git/internal/remote"
	"github.com/pdvlite/go-pos-sync.git/internal/service"
	"github.com/pdvlite/go-pos-sync.git/internal/syncx"
	"github.com/pdvlite/go-pos-sync.git/internal/ws"
)

// PosHandler exposes the engine to the UI surfaces: cashier terminal,
// kitchen display and self-order devices.
type PosHandler struct {
	Svc   *service.OrderService
	Coord *syncx.Coordinator
	Hub   *ws.Hub
}

func (h *PosHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Post("/orders/{id}/confirm", h.confirmPayment)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/kitchen/done", h.kitchenDone)
	r.Post("/orders/{id}/kitchen/prep", h.kitchenPrep)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/products", h.listProducts)
	r.Get("/customers/{phone}", h.lookupCustomer)
	r.Post("/customers/{id}/redeem", h.redeemPoints)
	r.Post("/customers/{id}/points", h.addPoints)
	r.Get("/status", h.connectivity)
	r.Get("/ws", h.serveWS)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps engine errors onto the taxonomy: validation failures are
// 400 with a user-facing message, transition conflicts 409, lookups 404.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pos.ErrInsufficientStock),
		errors.Is(err, loyalty.ErrInsufficientPoints),
		errors.Is(err, service.ErrCustomerRequired),
		errors.Is(err, service.ErrCustomerNameRequired),
		errors.Is(err, service.ErrProductNotFound):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, pos.ErrInvalidTransition), errors.Is(err, pos.ErrOrderCancelled):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, remote.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrRemoteUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *PosHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if errs := validateStruct(req); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": errs})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.Checkout(ctx, req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

type confirmPaymentRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=cash card pix loyalty_points"`
	SellerName    string `json:"seller_name"`
}

func (h *PosHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if errs := validateStruct(req); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": errs})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.ConfirmPayment(ctx, orderID, pos.PaymentMethod(req.PaymentMethod), req.SellerName)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *PosHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.Cancel(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *PosHandler) kitchenDone(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.MarkKitchenDone(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *PosHandler) kitchenPrep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.ReturnToPrep(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// listOrders serves the current snapshot. Filters: ?status=, ?today=1.
// Served from memory; works identically while offline.
func (h *PosHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	snap := h.Coord.Snapshot()
	status := r.URL.Query().Get("status")
	todayOnly := r.URL.Query().Get("today") == "1"
	dayStart := pos.StartOfDay(time.Now())

	out := make([]pos.Order, 0, len(snap.Orders))
	for _, o := range snap.Orders {
		if status != "" && string(o.Status) != status {
			continue
		}
		if todayOnly && o.CreatedAt.Before(dayStart) {
			continue
		}
		out = append(out, o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PosHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.Coord.Order(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type productView struct {
	pos.Product
	Availability pos.Stock `json:"availability"`
}

// listProducts serves the catalog with computed availability, so every
// surface gates add-to-cart on the same number.
func (h *PosHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	catalog := h.Coord.Catalog()
	snap := h.Coord.Snapshot()

	out := make([]productView, 0, len(snap.Products))
	for _, p := range snap.Products {
		out = append(out, productView{Product: p, Availability: pos.Availability(p, catalog)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PosHandler) lookupCustomer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Svc.LookupCustomer(ctx, chi.URLParam(r, "phone"), r.URL.Query().Get("name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type pointsRequest struct {
	Points int64 `json:"points" validate:"required,gt=0"`
}

func (h *PosHandler) redeemPoints(w http.ResponseWriter, r *http.Request) {
	h.mutatePoints(w, r, h.Svc.RedeemPoints)
}

func (h *PosHandler) addPoints(w http.ResponseWriter, r *http.Request) {
	h.mutatePoints(w, r, h.Svc.AddPoints)
}

func (h *PosHandler) mutatePoints(w http.ResponseWriter, r *http.Request, op func(context.Context, string, int64) (int64, error)) {
	var req pointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if errs := validateStruct(req); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": errs})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	balance, err := op(ctx, chi.URLParam(r, "id"), req.Points)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"points": balance})
}

// connectivity surfaces the offline indicator the operator watches.
func (h *PosHandler) connectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": h.Coord.State().String()})
}
