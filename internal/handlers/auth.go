package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger/internal/auth"
	"messenger/internal/models"
	"messenger/internal/repositories"
	"messenger/internal/telemetry"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	users  repositories.UserRepository
	tokens *auth.TokenManager
	audit  *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(users repositories.UserRepository, tokens *auth.TokenManager, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, audit: audit}
}

type authResponse struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// Register creates an account. A taken phone number is reported as such;
// login is the call that stays vague on purpose.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		PhoneNumber    string  `json:"phone_number" binding:"required"`
		Name           string  `json:"name" binding:"required"`
		Password       string  `json:"password" binding:"required,min=6"`
		ProfilePicture *string `json:"profile_picture"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid register payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.PhoneNumber, req.Name, hash, req.ProfilePicture)
	if err != nil {
		if errors.Is(err, repositories.ErrPhoneTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "phone number already registered"})
			return
		}
		h.emitAudit(c, "ERROR", "user creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	h.emitAudit(c, "INFO", "user registered")
	h.setTokenCookie(c, token)
	c.JSON(http.StatusCreated, authResponse{User: user.Public(), Token: token})
}

// Login authenticates by phone and password. Unknown phone and wrong password
// return the same message so the endpoint never confirms which part failed.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		PhoneNumber string `json:"phone_number" binding:"required"`
		Password    string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetByPhone(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid phone or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		h.emitAudit(c, "WARN", "failed login attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid phone or password"})
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	h.emitAudit(c, "INFO", "user logged in")
	h.setTokenCookie(c, token)
	c.JSON(http.StatusOK, authResponse{User: user.Public(), Token: token})
}

func (h *AuthHandler) setTokenCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("token", token, 24*60*60, "/", "", false, true)
}

func (h *AuthHandler) emitAudit(c *gin.Context, level, text string) {
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
