package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"catalog-harvester/internal/catalog"
	"catalog-harvester/internal/config"
	"catalog-harvester/internal/kafka"
	"catalog-harvester/internal/logging"
	"catalog-harvester/internal/models"
	"catalog-harvester/internal/store"
)

type server struct {
	prod    kafka.JobProducer
	store   store.StatusStore
	baseURL string
	logger  zerolog.Logger
}

func newServer(prod kafka.JobProducer, store store.StatusStore, baseURL string, logger zerolog.Logger) *server {
	return &server{
		prod:    prod,
		store:   store,
		baseURL: baseURL,
		logger:  logger,
	}
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/harvest", s.handleHarvest).Methods(http.MethodPost)
	r.HandleFunc("/harvest/{id}", s.handleHarvestStatus).Methods(http.MethodGet)
	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func main() {
	configPath := flag.String("config", "", "config file (default is ./harvester.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Color:  cfg.Logging.Color,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("api")

	prod := kafka.NewProducer(cfg.Kafka.Broker, cfg.Kafka.JobsTopic)
	defer func() {
		if err := prod.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close producer")
		}
	}()

	statusStore := store.NewRedisStatusStore(cfg.Redis.Addr, cfg.Redis.StatusPrefix, cfg.Redis.StatusTTL)
	defer func() {
		if err := statusStore.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close status store")
		}
	}()

	srv := newServer(prod, statusStore, cfg.Catalog.BaseURL, logger)
	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Str("addr", cfg.API.Addr).Msg("api listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

// handleHarvest accepts POST requests to enqueue a harvest job.
//
// Method: POST
// Path:   /harvest?q=... or /harvest?author=...&title=...
// Example:
//
//	curl -X POST "http://localhost:8080/harvest?author=Frank+Herbert&title=Dune"
func (s *server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	criteria := models.SearchCriteria{
		Query:  strings.TrimSpace(query.Get(catalog.ParamQuery)),
		Author: strings.TrimSpace(query.Get(catalog.ParamAuthor)),
		Title:  strings.TrimSpace(query.Get(catalog.ParamTitle)),
	}
	if criteria.IsEmpty() {
		http.Error(w, "missing search terms: q, author or title", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	createdAt := time.Now().UTC()
	seedURL := catalog.SearchURL(s.baseURL, criteria)
	status := models.HarvestStatus{
		SessionID: id,
		SeedURL:   seedURL,
		Status:    models.StatusQueued,
		CreatedAt: createdAt,
	}
	job := models.HarvestJob{
		SessionID: id,
		Criteria:  criteria,
		SeedURL:   seedURL,
		CreatedAt: createdAt,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Status first: the worker overwrites it once the job is consumed.
	if err := s.store.SetStatus(ctx, status); err != nil {
		s.logger.Error().Err(err).Str("session_id", id).Msg("failed to persist status")
		http.Error(w, "failed to persist status", http.StatusBadGateway)
		return
	}
	if err := s.prod.WriteJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("session_id", id).Msg("failed to enqueue job")
		http.Error(w, "failed to enqueue job", http.StatusBadGateway)
		return
	}

	s.logger.Info().Str("session_id", id).Str("seed_url", seedURL).Msg("harvest queued")
	writeJSON(w, status, http.StatusAccepted)
}

// handleHarvestStatus returns status for a previously created harvest session.
//
// Method: GET
// Path:   /harvest/{id}
// Example:
//
//	curl "http://localhost:8080/harvest/5f0c6c1e-7a0b-4c1e-9a53-2f1d1f1f3b9e"
func (s *server) handleHarvestStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(mux.Vars(r)["id"])
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	status, ok, err := s.store.GetStatus(r.Context(), sessionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to load status")
		http.Error(w, "failed to load status", http.StatusBadGateway)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, status, http.StatusOK)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
