package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"go.uber.org/zap"
)

const (
	contextKeyPrincipal = "vending_principal"
	bearerPrefix        = "bearer "
	limiterIdleTTL      = 10 * time.Minute
	limiterSweepEvery   = time.Minute
)

type principal struct {
	UserID vending.UserID
	Email  string
	Role   vending.Role
}

func (handler *httpHandler) requireBearer() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := strings.TrimSpace(ctx.GetHeader("Authorization"))
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			respondFailure(ctx, http.StatusUnauthorized, errAuthorizationRequired.Error())
			return
		}
		claims, err := handler.tokens.Verify(header[len(bearerPrefix):])
		if err != nil {
			respondFailure(ctx, http.StatusUnauthorized, errInvalidToken.Error())
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			respondFailure(ctx, http.StatusUnauthorized, errInvalidToken.Error())
			return
		}
		role, err := vending.ParseRole(claims.Role)
		if err != nil {
			respondFailure(ctx, http.StatusUnauthorized, errInvalidToken.Error())
			return
		}
		if handler.cfg.RequireActiveSession && !handler.sessionActive(ctx, userID) {
			return
		}
		ctx.Set(contextKeyPrincipal, principal{UserID: userID, Email: claims.Email, Role: role})
		ctx.Next()
	}
}

// sessionActive aborts the request and returns false when the account has no live login marker.
func (handler *httpHandler) sessionActive(ctx *gin.Context, userID vending.UserID) bool {
	account, err := handler.service.Account(ctx.Request.Context(), userID)
	if err != nil {
		if vending.KindOf(err) == vending.KindNotFound {
			respondFailure(ctx, http.StatusUnauthorized, errSessionInactive.Error())
			return false
		}
		handler.respondError(ctx, "session_check", err)
		return false
	}
	active, err := handler.service.HasActiveSession(ctx.Request.Context(), account)
	if err != nil {
		handler.respondError(ctx, "session_check", err)
		return false
	}
	if !active {
		respondFailure(ctx, http.StatusUnauthorized, errSessionInactive.Error())
		return false
	}
	return true
}

func requireRole(role vending.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		current, ok := currentPrincipal(ctx)
		if !ok || current.Role != role {
			respondFailure(ctx, http.StatusForbidden, vending.ErrPermissionDenied.Error())
			return
		}
		ctx.Next()
	}
}

func currentPrincipal(ctx *gin.Context) (principal, bool) {
	value, ok := ctx.Get(contextKeyPrincipal)
	if !ok {
		return principal{}, false
	}
	current, ok := value.(principal)
	return current, ok
}

func observeRequests(observer RequestObserver) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observer.ObserveRequest(ctx.Request.Method, route, ctx.Writer.Status(), time.Since(started))
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	nowFn     func() time.Time
	lastSweep time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		clients: make(map[string]*limiterEntry),
		limit:   limit,
		burst:   burst,
		nowFn:   time.Now,
	}
}

func (limiter *clientLimiter) allow(client string) bool {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	now := limiter.nowFn()
	if now.Sub(limiter.lastSweep) >= limiterSweepEvery {
		for key, entry := range limiter.clients {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(limiter.clients, key)
			}
		}
		limiter.lastSweep = now
	}
	entry, ok := limiter.clients[client]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(limiter.limit, limiter.burst)}
		limiter.clients[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (limiter *clientLimiter) middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !limiter.allow(ctx.ClientIP()) {
			respondFailure(ctx, http.StatusTooManyRequests, errTooManyRequests.Error())
			return
		}
		ctx.Next()
	}
}

func (handler *httpHandler) mustPrincipal(ctx *gin.Context) (principal, bool) {
	current, ok := currentPrincipal(ctx)
	if !ok {
		handler.logger.Error("principal missing from authenticated route", zap.String("route", ctx.FullPath()))
		respondFailure(ctx, http.StatusUnauthorized, errAuthorizationRequired.Error())
		return principal{}, false
	}
	return current, true
}
