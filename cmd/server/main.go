package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"listimport/internal/api"
	"listimport/internal/auth"
	"listimport/internal/config"
	"listimport/internal/db"
	"listimport/internal/geo"
	"listimport/internal/importer"
	"listimport/internal/listing"
	"listimport/internal/mapping"
	"listimport/internal/media"
	"listimport/internal/queue"
	"listimport/internal/state"
	"listimport/internal/template"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	states, err := state.OpenSQLite(cfg.StatePath)
	if err != nil {
		log.Fatalf("state store error: %v", err)
	}
	defer func() {
		if err := states.Close(); err != nil {
			log.Printf("state store close error: %v", err)
		}
	}()

	templates, err := template.NewSQLiteStore(states.DB())
	if err != nil {
		log.Fatalf("template store error: %v", err)
	}

	directory := listing.NewDirectory()
	var records listing.RecordStore = directory
	var database *sql.DB
	if cfg.DatabaseURL != "" {
		pg, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("database connection warning: %v", err)
		} else {
			defer pg.Close()
			store := listing.NewPostgresStore(pg)
			if err := store.EnsureSchema(ctx); err != nil {
				log.Fatalf("schema error: %v", err)
			}
			records = store
			database = pg
		}
	}

	var geocoder mapping.Geocoder
	if cfg.GeocoderURL != "" {
		geocoder = geo.NewClient(cfg.GeocoderURL)
	}

	engine := &mapping.Engine{
		Taxonomies:      directory,
		Registry:        directory,
		Geocoder:        geocoder,
		DefaultLocation: cfg.DefaultLocation,
	}
	pipeline := &importer.Pipeline{
		Engine: engine,
		Upsert: &importer.Upserter{
			Records: records,
			Media:   media.NewImporter(cfg.MediaDir),
		},
		Secret: []byte(cfg.FingerprintSecret),
	}

	scheduler := queue.NewScheduler(states)
	if err := scheduler.Register(pipeline.Importer()); err != nil {
		log.Fatalf("importer registration error: %v", err)
	}

	sessions := auth.NewManager(cfg.OperatorToken, cfg.SessionTTL)
	server := &api.Server{
		Database:  database,
		Scheduler: scheduler,
		Templates: templates,
		Sessions:  sessions,
		UploadDir: cfg.UploadDir,
	}
	router := api.NewRouter(api.Config{Server: server})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Background tick loop: each tick is one bounded unit of work, so the
	// importer makes progress without an external poller.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := scheduler.Tick(ctx, importer.DirectoryImporterID); err != nil {
					log.Printf("tick error: %v", err)
				}
			}
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
