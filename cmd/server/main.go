package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"careguardian/internal/app"
	"careguardian/internal/config"
	"careguardian/internal/platform/genai"
	"careguardian/internal/platform/notify"
	"careguardian/internal/platform/storage"
	"careguardian/internal/report"
	"careguardian/internal/server"
)

func main() {
	// 1. Infrastructure
	cfg := config.Load()

	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.GenAI.APIKey == "" {
		logger.Warn("GENAI_API_KEY is not set, mood analysis and chat will fail")
	}

	// 2. Collaborator clients
	storageClient := storage.NewClient(cfg.Storage.BaseURL, cfg.Storage.Timeout, logger)
	genaiClient := genai.NewClient(cfg.GenAI.BaseURL, cfg.GenAI.APIKey, cfg.GenAI.Model, cfg.GenAI.Timeout, logger)
	notifyClient := notify.NewClient(cfg.Notify.BaseURL, cfg.Notify.Timeout, logger)

	// 3. Core
	reportSvc := report.NewService(genaiClient, logger)
	application := app.New(storageClient, storageClient, genaiClient, notifyClient, reportSvc, app.Options{
		ChatHistoryLimit: cfg.Chat.HistoryLimit,
		GenAITimeout:     cfg.GenAI.Timeout,
	}, logger)
	handler := server.NewHandler(application, logger)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for the frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if req.Method == "OPTIONS" {
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.Route("/api", func(r chi.Router) {
		server.RegisterRoutes(r, handler)
	})

	logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := http.ListenAndServe(":"+cfg.Server.Port, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
