package handler

import (
	"net/http"

	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
)

type placeOrderRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// PlaceOrder оформляет заказ текущего пользователя.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "access token required")
		return
	}

	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.service.PlaceOrder(r.Context(), actor, req.ProductID, req.Quantity)
	if err != nil {
		h.writeServiceError(w, r, "place order", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) writeOrders(w http.ResponseWriter, orders []model.Order) {
	if orders == nil {
		orders = []model.Order{}
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// ListOrders возвращает все заказы магазина.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list orders", err)
		return
	}
	h.writeOrders(w, orders)
}

// ListMyOrders возвращает заказы текущего пользователя.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "access token required")
		return
	}

	orders, err := h.service.ListUserOrders(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, "list user orders", err)
		return
	}
	h.writeOrders(w, orders)
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

// SetOrderStatus меняет статус заказа.
func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "access token required")
		return
	}
	id, ok := pathID(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req orderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.service.SetOrderStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		h.writeServiceError(w, r, "set order status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// RemoveOrder удаляет зарезервированный заказ.
func (h *Handler) RemoveOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "access token required")
		return
	}
	id, ok := pathID(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.service.RemoveOrder(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, r, "remove order", err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Order removed"})
}
