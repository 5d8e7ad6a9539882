package main

import (
	"fmt"
	"log"
	"net/http"

	"membercheck/internal/api"
	"membercheck/internal/api/handlers"
	"membercheck/internal/api/middleware"
	"membercheck/internal/engine/apikeys"
	"membercheck/internal/engine/emailcrypto"
	"membercheck/internal/engine/importer"
	"membercheck/internal/engine/ratelimit"
	"membercheck/internal/pkg/logger"
	"membercheck/internal/platform/audit"
	"membercheck/internal/platform/auth"
	"membercheck/internal/platform/config"
	"membercheck/internal/platform/database"
	"membercheck/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	crypto, err := emailcrypto.New(cfg.Crypto.EmailSecret, cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to initialise email crypto: %v", err)
	}

	// Rate limit store
	var rateStore ratelimit.WindowStore
	if cfg.RateLimit.Store == "redis" {
		rateStore = ratelimit.NewRedisStore(cfg.RateLimit.Redis.Addr, cfg.RateLimit.Redis.Password, cfg.RateLimit.Redis.DB)
	} else {
		rateStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.NewLimiter(rateStore, ratelimit.Limits{
		PerMinute: cfg.RateLimit.PerMinute,
		PerHour:   cfg.RateLimit.PerHour,
	})

	// Repositories
	orgRepo := repositories.NewOrganisationRepository(db)
	memberRepo := repositories.NewMemberRepository(db, crypto)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	importLogRepo := repositories.NewImportLogRepository(db)
	accountRepo := repositories.NewAccountRepository(db)

	// Services
	auditLog := audit.NewLogger(db)
	tokenSvc := auth.NewTokenService(cfg.JWT)
	keySvc := apikeys.NewService(apiKeyRepo)
	importSvc := importer.NewService(db, memberRepo, importLogRepo, crypto, auditLog)

	// Handlers
	checkHandler := handlers.NewCheckHandler(keySvc, limiter, crypto, memberRepo, auditLog)
	authHandler := handlers.NewAuthHandler(accountRepo, tokenSvc, auditLog)
	orgHandler := handlers.NewOrgHandler(orgRepo, auditLog)
	memberHandler := handlers.NewMemberHandler(memberRepo, orgRepo)
	importHandler := handlers.NewImportHandler(importSvc, orgRepo, importLogRepo, cfg.Import.MaxFileSize)
	apiKeyHandler := handlers.NewAPIKeyHandler(keySvc, apiKeyRepo, auditLog)
	auditHandler := handlers.NewAuditHandler(auditLog)
	healthHandler := handlers.NewHealthHandler(db, rateStore)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)

	// Router
	router := api.NewRouter(&api.Dependencies{
		CheckHandler:   checkHandler,
		AuthHandler:    authHandler,
		OrgHandler:     orgHandler,
		MemberHandler:  memberHandler,
		ImportHandler:  importHandler,
		APIKeyHandler:  apiKeyHandler,
		AuditHandler:   auditHandler,
		HealthHandler:  healthHandler,
		AuthMiddleware: authMiddleware,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
