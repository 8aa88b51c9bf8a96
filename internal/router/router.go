package router

import (
	"database/sql"
	"fmt"

	"github.com/gin-gonic/gin"

	"resto_pos_backend/internal/clients"
	"resto_pos_backend/internal/handlers"
	"resto_pos_backend/internal/middleware"
	"resto_pos_backend/internal/repositories"
	"resto_pos_backend/internal/services"
	"resto_pos_backend/pkg/utils"
)

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, db *sql.DB) error {
	// Initialize Repositories
	authRepo := repositories.NewAuthRepository(db)
	directoryRepo := repositories.NewDirectoryRepository(db)
	backupRepo := repositories.NewSessionBackupRepository(db)

	// External collaborators
	orderClient := clients.NewOrderClient(utils.Getenv("ORDER_SERVICE_URL", "http://localhost:9090"))
	identityClient := clients.NewIdentityClient(utils.Getenv("IDENTITY_SERVICE_URL", "http://localhost:9091"))

	// Initialize Services
	authService := services.NewAuthService(authRepo)
	resolver, err := services.NewIdentityResolver(identityClient, directoryRepo)
	if err != nil {
		return fmt.Errorf("failed to initialize identity resolver: %w", err)
	}
	recovery := services.NewRecoveryManager(backupRepo)
	sessionService := services.NewSessionService(orderClient, resolver, recovery)

	// Initialize Handlers
	authHandler := handlers.NewAuthHandler(authService)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	directoryHandler := handlers.NewDirectoryHandler(resolver, directoryRepo)

	apiV1 := engine.Group("/api/v1")

	// Public authentication routes
	SetupPublicAuthRoutes(apiV1.Group("/auth"), authHandler)

	// Authenticated routes
	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware())
	{
		SetupAuthenticatedAuthRoutes(authenticated.Group("/auth"), authHandler)
		SetupSessionRoutes(authenticated, sessionHandler)
		SetupDirectoryRoutes(authenticated, directoryHandler)
	}

	return nil
}

// SetupPublicAuthRoutes registers the routes reachable without a token.
func SetupPublicAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.POST("/login", authHandler.LoginUser)
	group.POST("/refresh-token", authHandler.RefreshToken)
}

// SetupAuthenticatedAuthRoutes registers the token-protected auth routes.
func SetupAuthenticatedAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.GET("/me", authHandler.GetCurrentUser)
}
