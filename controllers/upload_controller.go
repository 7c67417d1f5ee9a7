package controllers

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/myseetara-source/seetara-website-sub001/pkg/apperrors"
	aws_pkg "github.com/myseetara-source/seetara-website-sub001/pkg/aws"
)

const presignExpiry = 15 * time.Minute

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadController issues presigned URLs for product image uploads.
type UploadController struct {
	presigner aws_pkg.Presigner
	bucket    string
	publicURL string
}

func NewUploadController(presigner aws_pkg.Presigner, bucket, publicURL string) *UploadController {
	return &UploadController{presigner: presigner, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

type presignRequest struct {
	Filename    string `json:"filename" binding:"required,max=200"`
	ContentType string `json:"content_type" binding:"required"`
}

// Presign handles POST /admin/uploads/presign. Errors are rendered by
// apperrors.ErrorMiddleware.
func (uc *UploadController) Presign(ctx *gin.Context) {
	if uc.presigner == nil || uc.bucket == "" {
		_ = ctx.Error(apperrors.New(http.StatusServiceUnavailable, "Uploads are not configured", nil))
		return
	}

	var req presignRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		_ = ctx.Error(apperrors.BadRequest("Invalid request"))
		return
	}
	ext, ok := allowedImageTypes[strings.ToLower(req.ContentType)]
	if !ok {
		_ = ctx.Error(apperrors.BadRequest("Only jpeg, png and webp images are allowed"))
		return
	}
	if e := strings.ToLower(filepath.Ext(req.Filename)); e == ".jpeg" || e == ".jpg" || e == ".png" || e == ".webp" {
		ext = e
	}

	key := "products/" + uuid.NewString() + ext

	c, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()
	uploadURL, headers, err := uc.presigner.PresignPut(c, uc.bucket, key, req.ContentType, presignExpiry)
	if err != nil {
		_ = ctx.Error(apperrors.Internal("Failed to generate presigned upload", err))
		return
	}

	resp := gin.H{
		"upload_url": uploadURL,
		"method":     http.MethodPut,
		"key":        key,
		"headers":    headers,
		"expires_in": int(presignExpiry.Seconds()),
	}
	if uc.publicURL != "" {
		resp["public_url"] = uc.publicURL + "/" + key
	}
	ctx.JSON(http.StatusOK, resp)
}
