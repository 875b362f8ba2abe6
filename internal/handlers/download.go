package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/velikanov/digital_shop/internal/models"
	"github.com/velikanov/digital_shop/internal/storage"
)

type DownloadHandler struct {
	DB      *gorm.DB
	Store   storage.Presigner
	LinkTTL time.Duration
}

func (h *DownloadHandler) linkTTL() time.Duration {
	if h.LinkTTL > 0 {
		return h.LinkTTL
	}
	return 15 * time.Minute
}

// Redeem exchanges a grant token for a short-lived presigned URL. The
// download counter decrements in the same statement that checks it, so
// two concurrent redeems cannot both consume the last download.
func (h *DownloadHandler) Redeem(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token required")
	}

	var grant models.DownloadGrant
	if err := h.DB.Where("token = ?", token).First(&grant).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "download grant not found")
	}
	if time.Now().Unix() > grant.ExpiresAt {
		return echo.NewHTTPError(http.StatusGone, "download grant expired")
	}

	res := h.DB.Model(&models.DownloadGrant{}).
		Where("id = ? AND downloads_left > 0", grant.ID).
		Update("downloads_left", gorm.Expr("downloads_left - 1"))
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusGone, "download limit reached")
	}

	if h.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "downloads are not configured")
	}
	url, err := h.Store.PresignGet(c.Request().Context(), grant.ObjectKey, h.linkTTL())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Redirect(http.StatusFound, url)
}
