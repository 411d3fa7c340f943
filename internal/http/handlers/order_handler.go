// README: Order handlers for list/get/cancel/rate plus status progression and assignment.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"foodtrack/internal/http/middleware"
	"foodtrack/internal/modules/order"
	"foodtrack/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

func actorOf(c *gin.Context) order.Actor {
	who := middleware.Caller(c)
	return order.Actor{ID: who.ID, Role: who.Role}
}

func (h *OrderHandler) orderID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return "", false
	}
	return types.ID(id), true
}

func (h *OrderHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	orders, err := h.order.ListFor(c.Request.Context(), middleware.Caller(c), limit)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	o, err := h.order.GetFor(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type cancelReq struct {
	CancellationReason string `json:"cancellationReason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	o, err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID: id,
		Actor:   actorOf(c),
		Reason:  req.CancellationReason,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type rateReq struct {
	DriverStars       int    `json:"driverStars"`
	DriverComment     string `json:"driverComment"`
	RestaurantStars   int    `json:"restaurantStars"`
	RestaurantComment string `json:"restaurantComment"`
}

func (h *OrderHandler) Rate(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	var req rateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.order.Rate(c.Request.Context(), order.RateCommand{
		OrderID:           id,
		Actor:             actorOf(c),
		DriverStars:       req.DriverStars,
		DriverComment:     req.DriverComment,
		RestaurantStars:   req.RestaurantStars,
		RestaurantComment: req.RestaurantComment,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *OrderHandler) Advance(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "status required")
		return
	}
	o, err := h.order.Advance(c.Request.Context(), order.AdvanceCommand{
		OrderID: id,
		To:      order.Status(req.Status),
		Actor:   actorOf(c),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type assignReq struct {
	DriverID string `json:"driverId"`
}

func (h *OrderHandler) Assign(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.DriverID) {
		writeError(c, http.StatusBadRequest, "driverId required")
		return
	}
	o, err := h.order.Assign(c.Request.Context(), order.AssignCommand{
		OrderID:  id,
		DriverID: types.ID(req.DriverID),
		Actor:    actorOf(c),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
