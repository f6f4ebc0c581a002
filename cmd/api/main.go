package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"issuedesk.org/internal/auth"
	"issuedesk.org/internal/config"
	"issuedesk.org/internal/httpapi"
	"issuedesk.org/internal/issue"
	"issuedesk.org/internal/obs"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("ISSUEDESK_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		db         *sql.DB
		userStore  auth.UserStore
		issueStore issue.Store
	)
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		userStore = auth.NewPGStore(db)
		issueStore = issue.NewPGStore(db)
	} else {
		// Dev mode: everything lives in memory and dies with the process.
		log.Println("ISSUEDESK_PG_DSN not set, using in-memory stores")
		userStore = auth.NewMemStore()
		issueStore = issue.NewMemStore()
	}

	codec, err := auth.NewCodec(cfg.AuthSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}
	sessions, err := auth.NewService(userStore, codec)
	if err != nil {
		log.Fatalf("session service: %v", err)
	}
	issues, err := issue.NewService(userStore, issueStore)
	if err != nil {
		log.Fatalf("issue service: %v", err)
	}

	api, err := httpapi.New(httpapi.Options{
		Sessions:       sessions,
		Issues:         issues,
		Codec:          codec,
		Ready:          httpapi.ReadyProbe{DB: db},
		Version:        version,
		ClientOrigin:   cfg.ClientOrigin,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: sameSiteMode(cfg.CookieSameSite),
		AccessTTL:      cfg.AccessTTL,
		RefreshTTL:     cfg.RefreshTTL,
	})
	if err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting issuedesk-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func sameSiteMode(raw string) http.SameSite {
	switch strings.ToLower(raw) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
