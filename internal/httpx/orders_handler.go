package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// StatusCache is satisfied by *redisx.StatusCache.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (*redisx.StatusView, bool, error)
	Set(ctx context.Context, v redisx.StatusView) error
}

// Idempotency is satisfied by *redisx.Idempotency.
type Idempotency interface {
	Lookup(ctx context.Context, externalID string) (string, bool, error)
	Remember(ctx context.Context, externalID, orderID string) error
}

type OrdersHandler struct {
	Svc *fulfillment.Service
	// Cache and Idem are optional shortcuts; the store stays the truth.
	Cache StatusCache
	Idem  Idempotency
}

type CreateOrderResp struct {
	Order      *orders.Order `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type claimReq struct {
	PickerID string `json:"picker_id"`
}

type packReq struct {
	PackerID string `json:"packer_id"`
}

type quantityReq struct {
	Quantity int `json:"quantity"`
}

type reasonReq struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Get("/status", h.getStatus)
			r.Get("/history", h.history)
			r.Get("/pick-tasks", h.pickTasks)

			r.Post("/claim", h.claim)
			r.Post("/items/{itemID}/pick", h.itemQuantity(h.Svc.PickItem))
			r.Post("/items/{itemID}/unpick", h.itemQuantity(h.Svc.UndoPick))
			r.Post("/complete-picking", h.plain(h.Svc.CompletePicking))
			r.Post("/start-packing", h.startPacking)
			r.Post("/items/{itemID}/verify", h.itemQuantity(h.Svc.VerifyItem))
			r.Post("/items/{itemID}/unverify", h.itemQuantity(h.Svc.UndoVerify))
			r.Post("/complete-packing", h.plain(h.Svc.CompletePacking))
			r.Post("/ship", h.ship)
			r.Post("/cancel", h.withReason(h.Svc.CancelOrder))
			r.Post("/backorder", h.withReason(h.Svc.MarkBackorder))
			r.Post("/restore", h.plain(h.Svc.RestoreBackorder))
		})
	})
	r.Route("/admin/orders", func(r chi.Router) {
		r.Get("/stuck", h.stuck)
		r.Post("/{id}/reset", h.plain(h.Svc.ResetStuckOrder))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid json")
		return false
	}
	return true
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req fulfillment.NewOrder
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.Idem != nil && req.ExternalID != "" {
		if id, ok, err := h.Idem.Lookup(ctx, req.ExternalID); err == nil && ok {
			if o, err := h.Svc.GetOrder(ctx, id); err == nil {
				writeJSON(w, http.StatusOK, CreateOrderResp{Order: o, Idempotent: true})
				return
			}
		}
	}

	o, existed, err := h.Svc.CreateOrder(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Idem != nil && req.ExternalID != "" {
		if err := h.Idem.Remember(ctx, req.ExternalID, o.ID); err != nil {
			log.Warn().Err(err).Str("external_id", req.ExternalID).Msg("idempotency key not stored")
		}
	}
	h.cache(ctx, o)
	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, CreateOrderResp{Order: o, Idempotent: existed})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	o, err := h.Svc.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus serves the cached status view, falling back to the store.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		if v, ok, err := h.Cache.Get(ctx, id); err == nil && ok {
			writeJSON(w, http.StatusOK, v)
			return
		} else if err != nil {
			log.Warn().Err(err).Str("order_id", id).Msg("status cache read failed")
		}
	}
	o, err := h.Svc.GetOrder(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cache(ctx, o)
	writeJSON(w, http.StatusOK, redisx.ViewOf(*o))
}

func (h *OrdersHandler) cache(ctx context.Context, o *orders.Order) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Set(ctx, redisx.ViewOf(*o)); err != nil {
		log.Warn().Err(err).Str("order_id", o.ID).Msg("status cache write failed")
	}
}

func (h *OrdersHandler) history(w http.ResponseWriter, r *http.Request) {
	changes, err := h.Svc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (h *OrdersHandler) pickTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Svc.PickTasks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *OrdersHandler) claim(w http.ResponseWriter, r *http.Request) {
	var req claimReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Svc.ClaimOrder(r.Context(), chi.URLParam(r, "id"), req.PickerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) startPacking(w http.ResponseWriter, r *http.Request) {
	var req packReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Svc.StartPacking(r.Context(), chi.URLParam(r, "id"), req.PackerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) ship(w http.ResponseWriter, r *http.Request) {
	var req orders.ShippingInfo
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Svc.ShipOrder(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) stuck(w http.ResponseWriter, r *http.Request) {
	list, err := h.Svc.StuckOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) plain(op func(ctx context.Context, orderID string) (*orders.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := op(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func (h *OrdersHandler) withReason(op func(ctx context.Context, orderID, reason string) (*orders.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reasonReq
		if !decode(w, r, &req) {
			return
		}
		o, err := op(r.Context(), chi.URLParam(r, "id"), req.Reason)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func (h *OrdersHandler) itemQuantity(op func(ctx context.Context, orderID, itemID string, qty int) (*orders.OrderItem, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req quantityReq
		if !decode(w, r, &req) {
			return
		}
		it, err := op(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), req.Quantity)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}
