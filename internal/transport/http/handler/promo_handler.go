package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"promo-code-service/internal/service"
	"promo-code-service/internal/transport/http/middleware"
	resp "promo-code-service/internal/transport/http/response"
)

type PromoCodeHandler struct {
	promos *service.PromoCodeService
}

func NewPromoCodeHandler(promos *service.PromoCodeService) *PromoCodeHandler {
	return &PromoCodeHandler{promos: promos}
}

type createPromoIn struct {
	Code             string     `json:"code" binding:"omitempty,max=20"`
	Type             string     `json:"type" binding:"required,oneof=percentage value"`
	Value            *float64   `json:"value" binding:"required,gte=0"`
	ExpiryDate       *time.Time `json:"expiry_date" binding:"omitempty"`
	MaxUsages        *int       `json:"max_usages" binding:"omitempty,min=1"`
	MaxUsagesPerUser *int       `json:"max_usages_per_user" binding:"omitempty,min=1"`
	UserIDs          []string   `json:"user_ids" binding:"omitempty"`
}

// Create makes a new promo code (admin only). A supplied restriction list
// limits the code to exactly those users.
func (h *PromoCodeHandler) Create(c *gin.Context) {
	var in createPromoIn
	if err := c.ShouldBindJSON(&in); err != nil {
		resp.ValidationFailed(c, bindingErrors(err))
		return
	}
	p, err := h.promos.Create(c.Request.Context(), service.CreatePromoCodeInput{
		Code:             in.Code,
		Type:             in.Type,
		Value:            *in.Value,
		ExpiryDate:       in.ExpiryDate,
		MaxUsages:        in.MaxUsages,
		MaxUsagesPerUser: in.MaxUsagesPerUser,
		UserIDs:          in.UserIDs,
	}, c.GetString(middleware.CtxUserID))
	if err != nil {
		var fe service.FieldErrors
		if errors.As(err, &fe) {
			resp.ValidationFailed(c, fe)
			return
		}
		var de *service.DomainError
		if errors.As(err, &de) {
			resp.Message(c, http.StatusUnprocessableEntity, de.Message)
			return
		}
		_ = c.Error(err)
		resp.Message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":    "Promo code created successfully",
		"promo_code": p,
	})
}

// Index lists every promo code with restriction users and creator (admin
// only). Served from the ten-minute listing cache.
func (h *PromoCodeHandler) Index(c *gin.Context) {
	codes, err := h.promos.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		resp.Message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, codes)
}

type validatePromoIn struct {
	Price     *float64 `json:"price" binding:"required,gte=0"`
	PromoCode string   `json:"promo_code" binding:"required"`
}

// Validate previews a code against a price. Every ineligibility reason is
// a 404 with its own machine code; nothing is recorded.
func (h *PromoCodeHandler) Validate(c *gin.Context) {
	var in validatePromoIn
	if err := c.ShouldBindJSON(&in); err != nil {
		resp.ValidationFailed(c, bindingErrors(err))
		return
	}
	q, err := h.promos.Validate(c.Request.Context(), in.PromoCode, *in.Price, c.GetString(middleware.CtxUserID))
	if err != nil {
		var rej *service.Rejection
		if errors.As(err, &rej) {
			resp.ErrorCode(c, http.StatusNotFound, rej.Message, rej.Code)
			return
		}
		_ = c.Error(err)
		resp.Message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, q)
}

type usePromoIn struct {
	Code string `json:"code" binding:"required"`
}

// Use redeems a code for the caller: one redemption per user, ever.
func (h *PromoCodeHandler) Use(c *gin.Context) {
	var in usePromoIn
	if err := c.ShouldBindJSON(&in); err != nil {
		resp.ValidationFailed(c, bindingErrors(err))
		return
	}
	p, err := h.promos.Use(c.Request.Context(), in.Code, c.GetString(middleware.CtxUserID))
	if err != nil {
		var rej *service.Rejection
		if errors.As(err, &rej) {
			status := http.StatusBadRequest
			if rej.Code == service.CodePromoNotFound {
				status = http.StatusNotFound
			}
			resp.ErrorCode(c, status, rej.Message, rej.Code)
			return
		}
		_ = c.Error(err)
		resp.Message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Promo code applied successfully",
		"promo_code": gin.H{
			"code":  p.Code,
			"type":  p.Type,
			"value": p.Value,
		},
	})
}

// Deactivate soft-disables a code (admin only) and sweeps its cache
// entries.
func (h *PromoCodeHandler) Deactivate(c *gin.Context) {
	err := h.promos.Deactivate(c.Request.Context(), c.Param("code"))
	if err != nil {
		var rej *service.Rejection
		if errors.As(err, &rej) {
			resp.ErrorCode(c, http.StatusNotFound, rej.Message, rej.Code)
			return
		}
		_ = c.Error(err)
		resp.Message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	resp.Message(c, http.StatusOK, "Promo code deactivated")
}
