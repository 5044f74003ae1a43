package main

import (
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"catalog-harvester/internal/catalog"
	"catalog-harvester/internal/logging"
	"catalog-harvester/internal/models"
)

// Config holds the searches to submit to the API.
type Config struct {
	Searches []models.SearchCriteria `json:"searches"`
}

var errNoSearches = errors.New("config has no searches")

func main() {
	configPath := flag.String("config", "searches.json", "Path to JSON config file with searches")
	apiBase := flag.String("api", "http://localhost:8080", "API base URL")
	flag.Parse()

	logging.Setup(logging.DefaultConfig())
	logger := logging.NewLogger("loadgen")

	if err := run(*configPath, *apiBase, nil, logger); err != nil {
		logger.Fatal().Err(err).Msg("loadgen failed")
	}
}

// run loads config from configPath and submits all searches to the API
// concurrently. If client is nil, a default HTTP client (30s timeout) is used.
func run(configPath, apiBase string, client *http.Client, logger zerolog.Logger) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	baseURL, err := url.Parse(apiBase)
	if err != nil {
		return err
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i, search := range cfg.Searches {
		wg.Add(1)
		go func(idx int, c models.SearchCriteria) {
			defer wg.Done()
			if submitSearch(client, baseURL, idx, c, logger) {
				accepted.Add(1)
			}
		}(i, search)
	}
	wg.Wait()
	logger.Info().Int("submitted", len(cfg.Searches)).Int64("accepted", accepted.Load()).Msg("searches submitted")
	return nil
}

// loadConfig reads and parses the JSON config file. Searches with no terms are dropped.
func loadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	searches := cfg.Searches[:0]
	for _, s := range cfg.Searches {
		if !s.IsEmpty() {
			searches = append(searches, s)
		}
	}
	cfg.Searches = searches
	if len(cfg.Searches) == 0 {
		return cfg, errNoSearches
	}
	return cfg, nil
}

func submitSearch(client *http.Client, base *url.URL, idx int, criteria models.SearchCriteria, logger zerolog.Logger) bool {
	values := url.Values{}
	if criteria.Query != "" {
		values.Set(catalog.ParamQuery, criteria.Query)
	}
	if criteria.Author != "" {
		values.Set(catalog.ParamAuthor, criteria.Author)
	}
	if criteria.Title != "" {
		values.Set(catalog.ParamTitle, criteria.Title)
	}

	u := *base
	u.Path = "/harvest"
	u.RawQuery = values.Encode()

	event := logger.With().Int("idx", idx).Str("search", u.RawQuery).Logger()
	resp, err := client.Post(u.String(), "", nil)
	if err != nil {
		event.Error().Err(err).Msg("submit failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		event.Warn().Int("status", resp.StatusCode).Msg("search rejected")
		return false
	}
	event.Info().Msg("search accepted")
	return true
}
