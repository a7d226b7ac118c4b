package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/homegamesio/homedome/audit"
	"github.com/homegamesio/homedome/auth"
	"github.com/homegamesio/homedome/config"
	"github.com/homegamesio/homedome/github"
	"github.com/homegamesio/homedome/handler"
	"github.com/homegamesio/homedome/hub"
	"github.com/homegamesio/homedome/mailer"
	"github.com/homegamesio/homedome/pipeline"
	"github.com/homegamesio/homedome/queue"
	"github.com/homegamesio/homedome/sandbox"
	"github.com/homegamesio/homedome/storage"
	"github.com/homegamesio/homedome/store"
	"github.com/homegamesio/homedome/worker"
)

const Version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Database
	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		log.Fatalf("migration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// S3
	var s3Client *storage.Client
	if cfg.S3Endpoint != "" {
		s3Client, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			log.Fatalf("S3 storage: %v", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			log.Fatalf("S3 bucket %s: %v", cfg.S3Bucket, err)
		}
		log.Println("S3 storage connected at " + s3Client.Endpoint())
	} else {
		log.Println("WARNING: no S3 endpoint configured; uploads will fail")
	}

	// WebSocket hub
	origins := append([]string{"http://localhost:5173", "http://localhost:3000"}, cfg.Origins()...)
	ws := hub.New(origins)
	go ws.Run(ctx)

	// Intake queue
	q := queue.NewPostgresQueue(db.Pool, cfg.VisibilityTimeout)

	// Confirmation mail
	var mail mailer.Mailer
	if cfg.SMTPHost != "" {
		mail = &mailer.SMTPMailer{
			Addr:     cfg.SMTPHost + ":" + cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.MailFrom,
			BaseURL:  cfg.VerifyBaseURL,
		}
	} else {
		log.Println("WARNING: no SMTP relay configured; confirmation links go to the log")
		mail = &mailer.LogMailer{BaseURL: cfg.VerifyBaseURL}
	}

	// Verification pipeline
	events := audit.NewPostgresStore(db.Pool)
	pipe := &pipeline.Pipeline{
		DB:     db,
		Audit:  events,
		GitHub: github.NewClient(cfg.GitHubUser, cfg.GitHubToken),
		Poker: &sandbox.Poker{
			Runner:      sandbox.NewDockerRunner(),
			Image:       cfg.SandboxImage,
			TrustedHost: cfg.TrustedHost,
			Timeout:     cfg.SandboxTimeout,
		},
		Mailer:          mail,
		WS:              ws,
		ApprovedLicense: cfg.ApprovedLicense,
	}
	if s3Client != nil {
		pipe.Storage = s3Client
	}

	// Worker
	w := &worker.Worker{Queue: q, Pipeline: pipe, PollInterval: cfg.PollInterval}
	go w.Run(ctx)

	// Handler
	h := handler.New(db, events, q, ws, s3Client, cfg)

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Homegames-Jwt"},
		AllowCredentials: true,
	}))

	// Service JWT auth. With a bearer token also configured the JWT layer
	// passes header-less requests through to it; alone, it requires the
	// header.
	if cfg.JWTSecret != "" {
		v := auth.NewValidator(cfg.JWTSecret)
		if cfg.APIToken != "" {
			r.Use(v.Middleware)
		} else {
			r.Use(v.RequireMiddleware)
		}
		log.Println("service JWT auth enabled")
	}

	// Bearer token auth
	if cfg.APIToken != "" {
		r.Use(auth.BearerToken(cfg.APIToken))
		log.Println("API token auth enabled")
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"version": Version})
		})

		r.Post("/requests", h.SubmitRequest)
		r.Get("/requests/{id}", h.GetRequest)
		r.Get("/requests/{id}/events", h.ListEvents)
	})

	r.Get("/verify_publish_request", h.VerifyPublishRequest)
	r.Get("/ws", ws.HandleConnect)

	srv := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("landlord %s listening on %s:%s", Version, cfg.BindAddr, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
