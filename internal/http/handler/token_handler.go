package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/iskim1407-claw/makeit/internal/domain"
	"github.com/iskim1407-claw/makeit/internal/http/middleware"
	"github.com/iskim1407-claw/makeit/internal/service/credential"
)

// TokenHandler reports and removes the signed-in user's provider connections.
type TokenHandler struct {
	Credentials credential.Service
	Logger      *zap.Logger
}

// NewTokenHandler creates the token handler.
func NewTokenHandler(credentials credential.Service, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{Credentials: credentials, Logger: logger}
}

type connectionResponse struct {
	Connected domain.ConnectionStatus `json:"connected"`
	CanDeploy bool                    `json:"canDeploy"`
}

// Status answers which providers are connected and whether a deploy is possible.
func (h *TokenHandler) Status(c *gin.Context) {
	status, err := h.Credentials.ConnectionStatus(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		if respondAuthError(c, err) {
			return
		}
		h.log().Error("connection status failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load connections"})
		return
	}
	c.JSON(http.StatusOK, connectionResponse{Connected: status, CanDeploy: status.CanDeploy()})
}

// Disconnect deletes the credential named by the provider query parameter.
func (h *TokenHandler) Disconnect(c *gin.Context) {
	provider, ok := domain.ParseProvider(c.Query("provider"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid provider"})
		return
	}

	if err := h.Credentials.Delete(c.Request.Context(), middleware.UserID(c), provider); err != nil {
		if respondAuthError(c, err) {
			return
		}
		h.log().Error("credential delete failed", zap.String("provider", string(provider)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *TokenHandler) log() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}
