package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jurisfix/jurisfix/backend/go-services/handlers"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/config"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/agent"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/completion"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/pipeline"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/database"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/document/handler"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/document/repository"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/document/service"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/oidc"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/sessions"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/storage"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/tokens"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/logger"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/metrics"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/middleware"
)

var startTime = time.Now()

// deps is everything the router needs. Nil optional members disable the
// feature they back.
type deps struct {
	cfg       *config.Config
	docs      *service.Service
	agents    *agent.Registry
	completer completion.Completer
	verifier  middleware.Verifier
	auth      *handlers.AuthHandler
	revoked   *sessions.Revocations
	redis     *redis.Client
	ping      func(context.Context) error
}

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: store=%s keycloak=%v redis=%v", cfg.Store.Backend, cfg.Keycloak.URL != "", cfg.Redis.Host != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := &deps{cfg: cfg, agents: agent.DefaultRegistry(cfg.OpenAI.Model)}

	// Redis backs token revocation and the distributed rate limiter
	if addr := cfg.Redis.Addr(); addr != "" {
		rc := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
		} else {
			logger.Infof("Connected to Redis: %s", addr)
			d.redis = rc
			defer rc.Close()
		}
	}
	d.revoked = sessions.NewRevocations(d.redis)

	repo, ping, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open %s store: %v", cfg.Store.Backend, err)
	}
	defer closeStore()
	d.ping = ping

	var opts []service.Option
	if mc := storage.LoadMinIOConfig(); mc.Enabled() {
		arch, err := storage.NewArchiver(ctx, mc)
		if err != nil {
			logger.Warnf("archive export disabled: %v", err)
		} else {
			opts = append(opts, service.WithArchiver(arch))
			logger.Infof("archive export to minio bucket %s", mc.Bucket)
		}
	}
	d.docs = service.New(repo, opts...)

	d.completer = completion.NewRetryingCompleter(
		completion.NewOpenAICompleter(completion.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Timeout: cfg.OpenAI.Timeout,
		}),
		cfg.OpenAI.MaxAttempts, cfg.OpenAI.Backoff)

	var issuer *tokens.Issuer
	if cfg.JWT.Secret != "" {
		issuer = tokens.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
		d.verifier = issuer
	}
	if cfg.Keycloak.URL != "" {
		idTokens, err := oidc.NewVerifier(ctx, cfg.Keycloak.Issuer(), cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			d.auth = handlers.NewAuthHandler(cfg.Keycloak, idTokens, issuer, d.revoked)
		}
		if d.verifier == nil {
			// without a local secret the API accepts Keycloak access tokens
			if v, err := oidc.NewVerifier(ctx, cfg.Keycloak.Issuer(), ""); err == nil {
				d.verifier = v
			}
		}
	}
	if d.verifier == nil {
		logger.Fatalf("no token verifier available: set JWT_SECRET or a reachable KEYCLOAK_URL")
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r := newRouter(d)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting jurifix api on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

func newRouter(d *deps) *gin.Engine {
	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when the document store answers
	r.GET("/ready", func(c *gin.Context) {
		checks := map[string]bool{"store": true, "redis": true}
		if d.ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			checks["store"] = d.ping(ctx) == nil
		}
		if d.cfg.RateLimit.UseRedis {
			checks["redis"] = d.redis != nil
		}
		status, code := "ready", http.StatusOK
		for _, ok := range checks {
			if !ok {
				status, code = "not_ready", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{"status": status, "deps": checks, "uptime": time.Since(startTime).String()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	if d.auth != nil {
		d.auth.Register(r)
	} else {
		logger.Warnf("login route not registered: Keycloak is not configured")
	}

	api := r.Group("/", middleware.AuthMiddleware(d.verifier, d.revoked))
	if d.auth != nil {
		d.auth.RegisterProtected(api)
	}

	var limit []gin.HandlerFunc
	if rl := d.cfg.RateLimit; rl.Enabled {
		// per-user when authenticated, otherwise per-IP
		if rl.UseRedis && d.redis != nil {
			limit = append(limit, middleware.RedisRateLimitMiddleware(d.redis, rl.RPS, rl.Burst, time.Duration(rl.WindowSeconds)*time.Second))
		} else {
			limit = append(limit, middleware.RateLimitMiddleware(rl.RPS, rl.Burst))
		}
	}

	proc := pipeline.New(d.agents, completion.NewCorrector(d.completer), pipeline.WithDocuments(d.docs))
	handler.RegisterDocumentRoutes(api, handler.New(d.docs, proc, d.agents), limit...)
	return r
}

// openStore connects the configured document store. The returned ping backs
// the readiness check and close releases the connection.
func openStore(ctx context.Context, cfg *config.Config) (repository.Repository, func(context.Context) error, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			return nil, nil, nil, err
		}
		ping := func(ctx context.Context) error { return client.Ping(ctx, nil) }
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return repository.NewMongoRepo(client.Database(cfg.MongoDB.Database)), ping, closeFn, nil
	case config.BackendPostgres:
		db, err := repository.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := repository.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return repository.NewPostgresRepo(db), db.PingContext, func() { _ = db.Close() }, nil
	default:
		logger.Warnf("using in-memory document store; data is lost on restart")
		return repository.NewMemoryRepo(), nil, func() {}, nil
	}
}
