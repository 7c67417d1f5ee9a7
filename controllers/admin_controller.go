package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/myseetara-source/seetara-website-sub001/services"
)

// AdminController serves the back-office order endpoints.
type AdminController struct {
	orderService services.OrderService
}

func NewAdminController(svc services.OrderService) *AdminController {
	return &AdminController{orderService: svc}
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ListOrders handles GET /admin/orders
func (ac *AdminController) ListOrders(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)

	resp, svcErr := ac.orderService.ListOrders(ctx.Request.Context(), ctx.Query("status"), page, limit)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

// GetOrder handles GET /admin/orders/:order_id
func (ac *AdminController) GetOrder(ctx *gin.Context) {
	order, svcErr := ac.orderService.GetOrder(ctx.Request.Context(), ctx.Param("order_id"))
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

// UpdateStatus handles PATCH /admin/orders/:order_id/status
func (ac *AdminController) UpdateStatus(ctx *gin.Context) {
	var req statusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	order, svcErr := ac.orderService.UpdateStatus(ctx.Request.Context(), ctx.Param("order_id"), req.Status, actorOf(ctx))
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func actorOf(ctx *gin.Context) string {
	if v, ok := ctx.Get("admin_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "admin"
}
