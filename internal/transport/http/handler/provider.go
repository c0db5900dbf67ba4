package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/anime-sync/internal/provider"
)

// ProviderHealth is satisfied by *provider.Registry.
type ProviderHealth interface {
	Snapshots() []provider.Snapshot
}

type ProviderHandler struct {
	registry ProviderHealth
}

func NewProviderHandler(registry ProviderHealth) *ProviderHandler {
	return &ProviderHandler{registry: registry}
}

// Health lists the circuit state of every provider this process has called.
func (h *ProviderHandler) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"providers": h.registry.Snapshots()})
}
