package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/myseetara-source/seetara-website-sub001/controllers"
	"github.com/myseetara-source/seetara-website-sub001/middleware"
)

// Controllers groups the HTTP handlers registered by RegisterRoutes.
type Controllers struct {
	Orders  *controllers.OrderController
	Admin   *controllers.AdminController
	Uploads *controllers.UploadController
}

// RegisterRoutes sets up the public storefront API, the admin API and the
// operational endpoints.
func RegisterRoutes(r *gin.Engine, c Controllers, adminSecret []byte, limiter *middleware.RateLimiter) {
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "storefront"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if limiter != nil {
		api.Use(middleware.RateLimit(limiter))
	}
	api.POST("/orders", c.Orders.CreateOrder)
	api.POST("/inquiries", c.Orders.CreateInquiry)
	api.GET("/orders/:order_id/confirmation", c.Orders.GetConfirmation)

	admin := r.Group("/admin")
	admin.Use(middleware.AdminAuth(adminSecret))
	admin.GET("/orders", c.Admin.ListOrders)
	admin.GET("/orders/:order_id", c.Admin.GetOrder)
	admin.PATCH("/orders/:order_id/status", c.Admin.UpdateStatus)
	if c.Uploads != nil {
		admin.POST("/uploads/presign", c.Uploads.Presign)
	}
}
