package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"resto_pos_backend/internal/models"
	"resto_pos_backend/internal/repositories"
	"resto_pos_backend/internal/services"
	"resto_pos_backend/pkg/utils"
)

// DirectoryHandler serves the customer directory to the POS frontend: the
// full cached listing plus single-entry reads straight from the store.
type DirectoryHandler struct {
	resolver      *services.IdentityResolver
	directoryRepo repositories.DirectoryRepository
}

// NewDirectoryHandler creates a new DirectoryHandler.
func NewDirectoryHandler(resolver *services.IdentityResolver, directoryRepo repositories.DirectoryRepository) *DirectoryHandler {
	return &DirectoryHandler{resolver: resolver, directoryRepo: directoryRepo}
}

// GetDirectory returns every cached company entry.
func (h *DirectoryHandler) GetDirectory(c *gin.Context) {
	entries := h.resolver.Directory()
	if entries == nil {
		entries = []models.DirectoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  entries,
		"total": len(entries),
	})
}

// GetDirectoryEntry returns one company by tax id, read from the store so a
// row added after startup is still visible here.
func (h *DirectoryHandler) GetDirectoryEntry(c *gin.Context) {
	taxID := c.Param("taxId")

	entry, err := h.directoryRepo.GetByTaxID(taxID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Directory entry not found.", err.Error()))
			return
		}
		utils.LogError(err, "GetDirectoryEntry: Error from directoryRepo.GetByTaxID for tax id "+taxID)
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch directory entry.", "Internal error"))
		return
	}
	c.JSON(http.StatusOK, entry)
}
