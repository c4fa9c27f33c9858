package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/fulfillment"
	"github.com/go-chi/chi/v5"
)

type InventoryHandler struct {
	Svc *fulfillment.Service
}

type restockReq struct {
	SKU         string `json:"sku"`
	BinLocation string `json:"bin_location"`
	Quantity    int    `json:"quantity"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Post("/inventory/restock", h.restock)
	r.Get("/inventory/{sku}/{bin}", h.get)
}

func (h *InventoryHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if !decode(w, r, &req) {
		return
	}
	u, err := h.Svc.Restock(r.Context(), req.SKU, req.BinLocation, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	u, err := h.Svc.Inventory(r.Context(), chi.URLParam(r, "sku"), chi.URLParam(r, "bin"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
