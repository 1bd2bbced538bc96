package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	core "giftvault/server/internal/service"
	"giftvault/server/pkg/config"
)

// AuthHandler issues access tokens against the configured admin account
type AuthHandler struct {
	cfg *config.AuthConfig
}

// NewAuthHandler creates an AuthHandler
func NewAuthHandler(cfg *config.AuthConfig) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// LoginRequest is the login payload
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the login response data
type LoginResponse struct {
	Token   string `json:"token,omitempty"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.FailWithMessage(c, core.ErrInvalidParam, "invalid request body")
		return
	}

	if req.Username != h.cfg.Username || !core.VerifyPassword(req.Password, h.cfg.PasswordHash) {
		log.Debug().Str("username", req.Username).Msg("Login rejected")
		core.Success(c, LoginResponse{Success: false, Message: "invalid username or password"})
		return
	}

	expiry := time.Duration(h.cfg.AccessTokenExpireMinutes) * time.Minute
	token, err := core.CreateAccessToken(req.Username, h.cfg.SecretKey, expiry)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create token")
		core.FailWithMessage(c, core.ErrInternalServer, "token generation failed")
		return
	}

	core.Success(c, LoginResponse{Success: true, Token: token, Message: "login ok"})
}
