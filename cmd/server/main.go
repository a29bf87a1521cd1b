package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/keyfold/passkey/internal/api"
	"github.com/keyfold/passkey/internal/audit"
	"github.com/keyfold/passkey/internal/challenge"
	"github.com/keyfold/passkey/internal/passkeys"
	"github.com/keyfold/passkey/internal/recovery"
	"github.com/keyfold/passkey/internal/storage"
	"github.com/keyfold/passkey/internal/webauthn"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup record storage
	var recordStorage storage.RecordStorage
	switch cfg.StorageMode {
	case "s3":
		s3Storage, err := storage.NewS3Storage(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.UseSSL)
		if err != nil {
			slog.Error("Failed to create S3 storage", "error", err)
			os.Exit(1)
		}
		recordStorage = s3Storage
		slog.Info("Using S3 storage", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
	case "filesystem":
		fsStorage, err := storage.NewFilesystemStorage(cfg.DataPath)
		if err != nil {
			slog.Error("Failed to create filesystem storage", "error", err)
			os.Exit(1)
		}
		recordStorage = fsStorage
		slog.Info("Using filesystem storage", "path", cfg.DataPath)
	case "memory":
		recordStorage = storage.NewMemoryStorage()
		slog.Warn("Using in-memory record storage (not persistent)")
	default:
		slog.Error("Invalid STORAGE_MODE", "mode", cfg.StorageMode, "valid_modes", []string{"filesystem", "s3", "memory"})
		os.Exit(1)
	}

	// Setup challenge storage
	var challengeStorage storage.ChallengeStorage
	switch cfg.ChallengeMode {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// Test Redis connection
		ctx := context.Background()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		challengeStorage = storage.NewRedisStorage(redisClient)
		slog.Info("Using Redis challenges", "addr", cfg.Redis.Addr)
	case "memory":
		challengeStorage = storage.NewMemoryStorage()
		slog.Warn("Using in-memory challenges (not shared across instances)")
	default:
		slog.Error("Invalid CHALLENGE_MODE", "mode", cfg.ChallengeMode, "valid_modes", []string{"memory", "redis"})
		os.Exit(1)
	}

	// Setup services
	auditSink := audit.NewSink(recordStorage)
	challengeManager := challenge.NewManager(challengeStorage)
	webauthnService := webauthn.NewService(webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigin:      cfg.RPOrigin,
	}, recordStorage, challengeManager, auditSink)
	passkeyManager := passkeys.NewManager(recordStorage, auditSink)
	recoveryManager := recovery.NewManager(recordStorage, auditSink)
	apiServer := api.NewServer(webauthnService, passkeyManager, recoveryManager, auditSink)

	// Setup routes
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/register/begin", apiServer.RegisterBeginHandler)
	mux.HandleFunc("POST /api/v1/register/finish", apiServer.RegisterFinishHandler)
	mux.HandleFunc("POST /api/v1/login/begin", apiServer.LoginBeginHandler)
	mux.HandleFunc("POST /api/v1/login/finish", apiServer.LoginFinishHandler)

	mux.HandleFunc("GET /api/v1/users/{userId}/credentials", apiServer.CredentialsHandler)
	mux.HandleFunc("PATCH /api/v1/users/{userId}/credentials/{credentialId}", apiServer.RenameCredentialHandler)
	mux.HandleFunc("DELETE /api/v1/users/{userId}/credentials/{credentialId}", apiServer.DeleteCredentialHandler)

	mux.HandleFunc("POST /api/v1/users/{userId}/backup-codes", apiServer.BackupCodesHandler)
	mux.HandleFunc("POST /api/v1/users/{userId}/backup-codes/verify", apiServer.VerifyBackupCodeHandler)

	mux.HandleFunc("GET /health", apiServer.HealthHandler)

	// Apply middleware
	handler := api.LoggingMiddleware(api.CORSMiddleware(mux))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	fmt.Printf("Passkey engine starting on http://localhost:%s (rp id %s)\n", cfg.Port, cfg.RPID)

	if err := server.ListenAndServe(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
