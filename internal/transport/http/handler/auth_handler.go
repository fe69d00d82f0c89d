package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"promo-code-service/internal/service"
	"promo-code-service/internal/transport/http/middleware"
	resp "promo-code-service/internal/transport/http/response"
)

type AuthHandler struct {
	users *service.UserService
}

func NewAuthHandler(users *service.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

type registerIn struct {
	Name                 string `json:"name" binding:"required,max=255"`
	Email                string `json:"email" binding:"required,email,max=255"`
	Password             string `json:"password" binding:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
	IsAdmin              bool   `json:"is_admin"`
}

// Register creates a user and hands back their first access token.
func (h *AuthHandler) Register(c *gin.Context) {
	var in registerIn
	if err := c.ShouldBindJSON(&in); err != nil {
		resp.ValidationFailed(c, bindingErrors(err))
		return
	}
	_, token, err := h.users.Register(c.Request.Context(), service.RegisterInput{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		IsAdmin:  in.IsAdmin,
	})
	if err != nil {
		var fe service.FieldErrors
		if errors.As(err, &fe) {
			resp.ValidationFailed(c, fe)
			return
		}
		_ = c.Error(err)
		resp.Message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":     "Successfully created user!",
		"accessToken": token,
	})
}

type loginIn struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var in loginIn
	if err := c.ShouldBindJSON(&in); err != nil {
		resp.ValidationFailed(c, bindingErrors(err))
		return
	}
	token, err := h.users.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			resp.Message(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		_ = c.Error(err)
		resp.Message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken": token,
		"token_type":  "Bearer",
	})
}

// Logout revokes every token the caller holds.
func (h *AuthHandler) Logout(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserID)
	if err := h.users.Logout(c.Request.Context(), uid); err != nil {
		_ = c.Error(err)
		resp.Message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	resp.Message(c, http.StatusOK, "Successfully logged out")
}

// User returns the authenticated caller.
func (h *AuthHandler) User(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.GetString(middleware.CtxUserID))
	if err != nil {
		_ = c.Error(err)
		resp.Message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if u == nil {
		resp.Message(c, http.StatusNotFound, "User not found")
		return
	}
	c.JSON(http.StatusOK, u)
}

// Users lists every registered user, trimmed to id/name/email.
func (h *AuthHandler) Users(c *gin.Context) {
	us, err := h.users.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		resp.Message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	type row struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	out := make([]row, 0, len(us))
	for _, u := range us {
		out = append(out, row{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	c.JSON(http.StatusOK, out)
}
