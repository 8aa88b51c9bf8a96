package router

import (
	"github.com/gin-gonic/gin"

	"resto_pos_backend/internal/handlers"
)

// SetupSessionRoutes registers the split session endpoints of the cashier flow.
func SetupSessionRoutes(rg *gin.RouterGroup, sessionHandler *handlers.SessionHandler) {
	sessions := rg.Group("/split-sessions")
	{
		sessions.POST("/:orderId/open", sessionHandler.OpenSession)
		sessions.GET("/:orderId", sessionHandler.GetSession)
		sessions.PUT("/:orderId/mode", sessionHandler.ChangeMode)
		sessions.PUT("/:orderId/split-count", sessionHandler.SetSplitCount)
		sessions.PUT("/:orderId/discount", sessionHandler.SetDiscount)
		sessions.POST("/:orderId/splits", sessionHandler.AddSplit)
		sessions.PATCH("/:orderId/splits/:splitId", sessionHandler.UpdateSplit)
		sessions.DELETE("/:orderId/splits/:splitId", sessionHandler.RemoveSplit)
		sessions.POST("/:orderId/splits/:splitId/pay", sessionHandler.Pay)
		sessions.DELETE("/:orderId", sessionHandler.CloseSession)
	}
}

// SetupDirectoryRoutes registers the customer directory endpoints.
func SetupDirectoryRoutes(rg *gin.RouterGroup, directoryHandler *handlers.DirectoryHandler) {
	directory := rg.Group("/customer-directory")
	{
		directory.GET("", directoryHandler.GetDirectory)
		directory.GET("/:taxId", directoryHandler.GetDirectoryEntry)
	}
}
