package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/velabrowser/vela/backend/internal/providers/adblock"
	"github.com/velabrowser/vela/backend/internal/providers/credentials"
	"github.com/velabrowser/vela/backend/internal/service"
	"github.com/velabrowser/vela/backend/internal/shared/types"
)

// AuthResolver resolves pending re-authentication challenges.
type AuthResolver interface {
	Resolve(challengeID string, outcome credentials.AuthOutcome) bool
}

// FormAgentBuilder renders the per-tab form agent script.
type FormAgentBuilder func(tabID string) (string, error)

// Handlers contains all HTTP handlers
type Handlers struct {
	registry    *service.Registry
	engine      *adblock.Engine
	auth        AuthResolver
	buildAgent  FormAgentBuilder
	cosmeticCSS string
	cosmeticJS  string
}

// NewHandlers creates a new handler set
func NewHandlers(registry *service.Registry, engine *adblock.Engine, auth AuthResolver, buildAgent FormAgentBuilder, cosmeticCSS, cosmeticJS string) *Handlers {
	return &Handlers{
		registry:    registry,
		engine:      engine,
		auth:        auth,
		buildAgent:  buildAgent,
		cosmeticCSS: cosmeticCSS,
		cosmeticJS:  cosmeticJS,
	}
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Vela Browser Backend",
		"version": "0.3.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"service_registry": h.registry.Stats(),
		"adblock":          h.engine.Stats(),
	})
}

// ListServices lists all available services
func (h *Handlers) ListServices(c *gin.Context) {
	categoryStr := c.Query("category")

	var category *types.Category
	if categoryStr != "" {
		cat := types.Category(categoryStr)
		category = &cat
	}

	c.JSON(http.StatusOK, gin.H{
		"services": h.registry.List(category),
		"stats":    h.registry.Stats(),
	})
}

// ExecuteRequest is the body of a tool execution call.
type ExecuteRequest struct {
	ToolID string                 `json:"tool_id" binding:"required"`
	Params map[string]interface{} `json:"params"`
	TabID  *string                `json:"tab_id"`
}

// ExecuteService executes a service tool
func (h *Handlers) ExecuteService(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var appCtx *types.Context
	if req.TabID != nil {
		appCtx = &types.Context{TabID: req.TabID}
	}

	result, err := h.registry.Execute(c.Request.Context(), req.ToolID, req.Params, appCtx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AuthRespond reports the shell's outcome for a re-authentication challenge.
func (h *Handlers) AuthRespond(c *gin.Context) {
	var req struct {
		ChallengeID string `json:"challenge_id" binding:"required"`
		Outcome     string `json:"outcome" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var outcome credentials.AuthOutcome
	switch req.Outcome {
	case "success":
		outcome = credentials.AuthSuccess
	case "failed":
		outcome = credentials.AuthFailed
	case "cancelled":
		outcome = credentials.AuthCancelled
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "outcome must be success, failed or cancelled"})
		return
	}

	resolved := h.auth.Resolve(req.ChallengeID, outcome)
	c.JSON(http.StatusOK, gin.H{"resolved": resolved})
}

// InjectFormAgent returns the form agent script for one tab. The shell
// injects it at DOM availability.
func (h *Handlers) InjectFormAgent(c *gin.Context) {
	tabID := c.Query("tab_id")
	if tabID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tab_id query parameter required"})
		return
	}

	script, err := h.buildAgent(tabID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"script": script})
}

// InjectCosmetic returns the cosmetic filter payloads for page injection.
func (h *Handlers) InjectCosmetic(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"css":    h.cosmeticCSS,
		"script": h.cosmeticJS,
	})
}
