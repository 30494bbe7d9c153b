package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/iskim1407-claw/makeit/internal/adapter/codegen"
	"github.com/iskim1407-claw/makeit/internal/domain"
	"github.com/iskim1407-claw/makeit/internal/http/middleware"
)

// Deployer publishes a generated project for a user.
type Deployer interface {
	Deploy(ctx context.Context, userID string, project domain.GeneratedProject) (domain.DeploymentResult, error)
}

// DeployHandler serves code generation and deployment.
type DeployHandler struct {
	Deployer  Deployer
	Generator codegen.Generator
	Logger    *zap.Logger
}

// NewDeployHandler creates the deploy handler.
func NewDeployHandler(deployer Deployer, generator codegen.Generator, logger *zap.Logger) *DeployHandler {
	return &DeployHandler{Deployer: deployer, Generator: generator, Logger: logger}
}

type deployResponse struct {
	Success bool                `json:"success"`
	GitHub  domain.GitHubResult `json:"github"`
	Vercel  domain.VercelResult `json:"vercel"`
}

// Deploy pushes the posted files to GitHub and triggers a Vercel deployment.
// Field validation is left to the deployer so a missing connection is
// reported before an incomplete project.
func (h *DeployHandler) Deploy(c *gin.Context) {
	var req domain.GeneratedProject
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.Deployer.Deploy(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		h.respondDeployError(c, err)
		return
	}
	c.JSON(http.StatusOK, deployResponse{Success: true, GitHub: result.GitHub, Vercel: result.Vercel})
}

type generateRequest struct {
	Prompt              string            `json:"prompt"`
	ConversationHistory []codegen.Message `json:"conversationHistory"`
}

// Generate asks the code generator for a project and returns it as JSON.
func (h *DeployHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if h.Generator == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "OPENAI_API_KEY not configured"})
		return
	}

	project, err := h.Generator.Generate(c.Request.Context(), codegen.GenerateRequest{
		Prompt:  req.Prompt,
		History: req.ConversationHistory,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, project)
	case errors.Is(err, codegen.ErrNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "OPENAI_API_KEY not configured"})
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, codegen.ErrUnparseable):
		h.log().Warn("generated code unparseable", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse generated code"})
	default:
		h.log().Error("generate failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate code"})
	}
}

type chatRequest struct {
	Messages []codegen.Message `json:"messages"`
}

// Chat relays the requirement-gathering conversation to the assistant.
func (h *DeployHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if h.Generator == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "OPENAI_API_KEY not configured"})
		return
	}

	reply, err := h.Generator.Chat(c.Request.Context(), req.Messages)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": reply})
	case errors.Is(err, codegen.ErrNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "OPENAI_API_KEY not configured"})
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log().Error("chat failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response"})
	}
}

func (h *DeployHandler) respondDeployError(c *gin.Context, err error) {
	if respondAuthError(c, err) {
		return
	}

	var notConnected *domain.NotConnectedError
	var upstream *domain.UpstreamError
	switch {
	case errors.As(err, &notConnected):
		c.JSON(http.StatusBadRequest, gin.H{"error": notConnectedMessage(notConnected.Provider)})
	case errors.Is(err, domain.ErrProviderNotConnected):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provider not connected"})
	case errors.Is(err, domain.ErrProjectIncomplete):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project name and files required"})
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &upstream):
		c.JSON(http.StatusBadRequest, gin.H{"error": upstream.Provider.DisplayName() + " error: " + upstream.Message})
	default:
		h.log().Error("deployment failed", zap.String("user_id", middleware.UserID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Deployment failed"})
	}
}

func (h *DeployHandler) log() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

func notConnectedMessage(p domain.Provider) string {
	if p == domain.ProviderGitHub {
		return "GitHub not connected. Please re-login with GitHub."
	}
	return p.DisplayName() + " not connected. Please connect your " + p.DisplayName() + " account."
}

// respondAuthError answers 401 for unauthenticated calls and reports whether it did.
func respondAuthError(c *gin.Context, err error) bool {
	if !errors.Is(err, domain.ErrUnauthorized) {
		return false
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized. Please log in."})
	return true
}
