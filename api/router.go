// Package api contains all endpoints available
package api

import (
	"fmt"
	"time"

	"wopsai/auth-api/internal/account"
	"wopsai/auth-api/internal/service"
	"wopsai/auth-api/internal/store"
	"wopsai/auth-api/middleware"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

var cacheStore = persist.NewMemoryStore(time.Minute)

type API struct {
	Router   *gin.Engine
	Accounts *account.Manager
}

func NewRouter() (*API, error) {
	a := &API{}

	makeLogger()

	s, err := store.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store, %w", err)
	}

	store.StartTokenCleanup(s, time.Hour)

	a.Accounts = account.NewManager(s, service.NewNotifier())
	a.setupRoutes()

	return a, nil
}

func (a *API) setupRoutes() {
	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     viper.GetStringSlice("host.cors_origins"),
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	jwt := middleware.NewJWTMiddleware()

	// Credential endpoints are where brute forcing lives, keep them slow
	throttle := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: viper.GetFloat64("host.rate_limit"),
		Burst:             viper.GetInt("host.rate_burst"),
	})

	main := router.Group("/api")
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		main.HEAD("/heartbeat", a.Heartbeat)

		// HEAD /api/validate		-> Validates an access token
		main.HEAD("/validate", jwt, a.Validate)
	}

	users := main.Group("/users", middleware.BodySizeLimiter(1<<20))
	{
		// GET /api/users		-> Returns the current user
		users.GET("", jwt, cacheFor(30), a.UserFetch)

		// POST /api/users 		-> Registers a new user
		users.POST("", throttle, a.UserRegister)

		// POST /api/users/verify	-> Redeems a verification token
		users.POST("/verify", throttle, a.UserVerify)

		// POST /api/users/password	-> Sets the password and activates the account
		users.POST("/password", throttle, a.UserSetPassword)

		// POST /api/users/login 	-> Logs in a user and returns a token pair
		users.POST("/login", throttle, a.UserLogin)

		// POST /api/users/refresh	-> Rotates a refresh token
		users.POST("/refresh", a.UserRefresh)

		// POST /api/users/logout	-> Revokes a refresh token
		users.POST("/logout", a.UserLogout)

		// POST /api/users/reset	-> Requests a password reset mail
		users.POST("/reset", throttle, a.UserRequestReset)

		// POST /api/users/reset/confirm -> Confirms a password reset
		users.POST("/reset/confirm", throttle, a.UserConfirmReset)
	}

	usage := main.Group("/usage", jwt)
	{
		// GET /api/usage		-> Returns today's usage and the plan ceiling
		usage.GET("", a.UsageFetch)

		// POST /api/usage		-> Charges usage before billable work
		usage.POST("", a.UsageConsume)
	}
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

// cacheFor caches per user, not per URI: the same path serves different
// payloads depending on who asks
func cacheFor(sec int) gin.HandlerFunc {
	return cache.Cache(cacheStore, time.Second*time.Duration(sec),
		cache.WithCacheStrategyByRequest(func(c *gin.Context) (bool, cache.Strategy) {
			return true, cache.Strategy{
				CacheKey: c.Request.RequestURI + "|" + c.GetString("userID"),
			}
		}))
}
