package handlers

import (
	"context"
	"errors"
	"net/http"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/notify"

	"github.com/gin-gonic/gin"
)

type Notifier interface {
	SendContactForm(ctx context.Context, req models.ContactFormRequest) (int64, error)
	SendVinRequest(ctx context.Context, req models.VinRequest) (int64, error)
}

// ContactHandler serves the public storefront forms.
type ContactHandler struct {
	notifier Notifier
}

func NewContactHandler(notifier Notifier) *ContactHandler {
	return &ContactHandler{notifier: notifier}
}

// SubmitContactForm
// @Summary Send contact form
// @Tags Forms
// @Accept json
// @Produce json
// @Param request body models.ContactFormRequest true "Contact form"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /contact-form [post]
func (h *ContactHandler) SubmitContactForm(c *gin.Context) {
	var req models.ContactFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		formResult(c, http.StatusBadRequest, "Missing required fields")
		return
	}

	_, err := h.notifier.SendContactForm(c.Request.Context(), req)
	respondSent(c, err)
}

// SubmitVinRequest
// @Summary Send VIN request
// @Tags Forms
// @Accept json
// @Produce json
// @Param request body models.VinRequest true "VIN request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /vin-request [post]
func (h *ContactHandler) SubmitVinRequest(c *gin.Context) {
	var req models.VinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		formResult(c, http.StatusBadRequest, "Missing required fields")
		return
	}

	_, err := h.notifier.SendVinRequest(c.Request.Context(), req)
	respondSent(c, err)
}

func respondSent(c *gin.Context, err error) {
	switch {
	case err == nil:
		formResult(c, http.StatusOK, "Email sent successfully")
	case errors.Is(err, notify.ErrInvalidRequest):
		formResult(c, http.StatusBadRequest, "Missing required fields")
	default:
		formResult(c, http.StatusInternalServerError, "Failed to send email")
	}
}

func formResult(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": status == http.StatusOK,
		"message": message,
	})
}
