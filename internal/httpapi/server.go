// Package httpapi exposes the vending service over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/vending/internal/authtoken"
	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultShutdownTimeout = 5 * time.Second

// VendingService is the core surface the handlers call.
type VendingService interface {
	Register(ctx context.Context, registration vending.Registration) (vending.Account, error)
	Login(ctx context.Context, email string, password string) (vending.LoginResult, error)
	Logout(ctx context.Context, email string, password string) error
	Account(ctx context.Context, userID vending.UserID) (vending.Account, error)
	HasActiveSession(ctx context.Context, account vending.Account) (bool, error)
	UpdateProfile(ctx context.Context, callerID vending.UserID, targetID vending.UserID, update vending.ProfileUpdate) (vending.Account, error)
	DeleteAccount(ctx context.Context, callerID vending.UserID, targetID vending.UserID) error
	Roles() []vending.Role
	Deposit(ctx context.Context, userID vending.UserID, faceValue int) (vending.Account, error)
	Reset(ctx context.Context, userID vending.UserID) (vending.Account, error)
	History(ctx context.Context, userID vending.UserID, limit int) ([]vending.BalanceEvent, error)
	Purchase(ctx context.Context, userID vending.UserID, productID vending.ProductID, quantity vending.Quantity) (vending.Receipt, error)
	CreateProduct(ctx context.Context, ownerID vending.UserID, input vending.ProductInput) (vending.Product, error)
	Product(ctx context.Context, productID vending.ProductID) (vending.Product, error)
	Products(ctx context.Context, limit int) ([]vending.Product, error)
	UpdateProduct(ctx context.Context, callerID vending.UserID, productID vending.ProductID, input vending.ProductInput) (vending.Product, error)
	DeleteProduct(ctx context.Context, callerID vending.UserID, productID vending.ProductID) error
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(raw string) (*authtoken.Claims, error)
}

// RequestObserver records request latency by matched route.
type RequestObserver interface {
	ObserveRequest(method string, route string, code int, elapsed time.Duration)
}

// Config aggregates the router settings.
type Config struct {
	AllowedOrigins       []string
	LoginRateLimit       float64
	LoginBurst           int
	RequireActiveSession bool
}

// Dependencies are the collaborators the router needs. Observer, Metrics and
// Ready are optional.
type Dependencies struct {
	Service  VendingService
	Tokens   TokenVerifier
	Logger   *zap.Logger
	Observer RequestObserver
	Metrics  http.Handler
	Ready    func(ctx context.Context) error
}

type httpHandler struct {
	service VendingService
	tokens  TokenVerifier
	logger  *zap.Logger
	cfg     Config
}

// NewRouter builds the gin engine serving every route.
func NewRouter(cfg Config, deps Dependencies) (*gin.Engine, error) {
	if deps.Service == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("%w: service and token verifier are required", vending.ErrInvalidServiceConfig)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		service: deps.Service,
		tokens:  deps.Tokens,
		logger:  logger,
		cfg:     cfg,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Observer != nil {
		router.Use(observeRequests(deps.Observer))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		if deps.Ready != nil {
			if err := deps.Ready(ctx.Request.Context()); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	limiter := newClientLimiter(cfg.LoginRateLimit, cfg.LoginBurst)
	users := router.Group("/api/users")
	users.POST("", handler.handleRegister)
	users.POST("/login", limiter.middleware(), handler.handleLogin)
	users.POST("/logout/all", limiter.middleware(), handler.handleLogout)

	authenticated := router.Group("/api")
	authenticated.Use(handler.requireBearer())
	authenticated.GET("/users", handler.handleCurrentUser)
	authenticated.GET("/users/roles", handler.handleRoles)
	authenticated.GET("/users/:id", handler.handleUserByID)
	authenticated.PUT("/users", handler.handleUpdateUser)
	authenticated.DELETE("/users", handler.handleDeleteUser)
	authenticated.POST("/users/deposit/:amount", requireRole(vending.RoleBuyer), handler.handleDeposit)
	authenticated.POST("/users/reset", requireRole(vending.RoleBuyer), handler.handleReset)
	authenticated.GET("/users/history", requireRole(vending.RoleBuyer), handler.handleHistory)

	authenticated.GET("/products", handler.handleListProducts)
	authenticated.GET("/products/:id", handler.handleGetProduct)
	authenticated.POST("/products", requireRole(vending.RoleSeller), handler.handleCreateProduct)
	authenticated.PUT("/products/:id", requireRole(vending.RoleSeller), handler.handleUpdateProduct)
	authenticated.DELETE("/products/:id", requireRole(vending.RoleSeller), handler.handleDeleteProduct)
	authenticated.POST("/products/buy", requireRole(vending.RoleBuyer), handler.handleBuy)

	return router, nil
}

// Run serves handler on listenAddr until ctx is cancelled.
func Run(ctx context.Context, listenAddr string, handler http.Handler, shutdownTimeout time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", listenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func toProductInput(request productRequest) vending.ProductInput {
	return vending.ProductInput{
		Name:        request.Name,
		Description: request.Description,
		Price:       request.Price,
	}
}
