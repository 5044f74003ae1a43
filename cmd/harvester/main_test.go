package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-harvester/common"
	"catalog-harvester/internal/store"
)

const (
	testPage1 = `{"num_docs": 3, "docs": [{"author_name": ["Luciano Ramalho"], "title": "Fluent Python"}, {"author": "Mark Lutz", "title": "Learning Python"}]}`
	testPage2 = `{"num_docs": 3, "docs": [{"author": "Al Sweigart", "title": "Automate the Boring Stuff"}]}`
)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(testPage1))
		case "2":
			_, _ = w.Write([]byte(testPage2))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupCLI points configuration at a temp workspace and an in-memory page store.
func setupCLI(t *testing.T, baseURL string) (afero.Fs, string) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("HARVEST_CATALOG_BASE_URL", baseURL)
	t.Setenv("HARVEST_CATALOG_RESPECT_ROBOTS", "false")
	t.Setenv("HARVEST_CATALOG_REQUESTS_PER_SECOND", "0")
	t.Setenv("HARVEST_CATALOG_PAGE_SIZE", "2")
	t.Setenv("HARVEST_STORAGE_DIR", "pages")
	t.Setenv("HARVEST_SINK_KIND", "sqlite")
	t.Setenv("HARVEST_SINK_SQLITE_PATH", filepath.Join(dir, "books.db"))

	fs := afero.NewMemMapFs()
	previous := pageFs
	pageFs = fs
	t.Cleanup(func() { pageFs = previous })

	return fs, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, logLevel = "", ""
	queryTerm, authorTerm, titleTerm = "", "", ""
	outDir, registerDir = "", ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDownloadWritesSessionPages(t *testing.T) {
	srv := newCatalogServer(t)
	fs, _ := setupCLI(t, srv.URL+"/search.json")

	out, err := execute(t, "download", "--q", "python", "--out", "downloads")
	require.NoError(t, err)
	assert.Contains(t, out, "Pages written: 2 of 2")

	sessions, err := afero.ReadDir(fs, "downloads")
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	pages, err := common.StoredPages(fs, filepath.Join("downloads", sessions[0].Name()))
	require.NoError(t, err)
	require.Len(t, pages, 2)

	content, err := afero.ReadFile(fs, pages[0])
	require.NoError(t, err)
	assert.Equal(t, testPage1, string(content))
}

func TestDownloadRequiresSearchTerms(t *testing.T) {
	setupCLI(t, "https://catalog.test/search.json")

	_, err := execute(t, "download")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no search terms")
}

func TestRegisterInsertsStoredPages(t *testing.T) {
	fs, dir := setupCLI(t, "https://catalog.test/search.json")
	require.NoError(t, afero.WriteFile(fs, "saved/page-0001.json", []byte(testPage1), 0o644))
	require.NoError(t, afero.WriteFile(fs, "saved/page-0002.json", []byte("not json"), 0o644))

	out, err := execute(t, "register", "--dir", "saved")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered 2 records from saved")

	books, err := store.OpenSQLiteBookStore(filepath.Join(dir, "books.db"), zerolog.Nop())
	require.NoError(t, err)
	defer books.Close(context.Background())

	count, err := books.CountBooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRegisterRequiresDir(t *testing.T) {
	setupCLI(t, "https://catalog.test/search.json")

	_, err := execute(t, "register")
	require.Error(t, err)
}

func TestRunDownloadsAndRegisters(t *testing.T) {
	srv := newCatalogServer(t)
	_, dir := setupCLI(t, srv.URL+"/search.json")

	out, err := execute(t, "run", "--author", "Python", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "Records registered: 3")

	books, err := store.OpenSQLiteBookStore(filepath.Join(dir, "books.db"), zerolog.Nop())
	require.NoError(t, err)
	defer books.Close(context.Background())

	byAuthor, err := books.BooksByAuthor(context.Background(), "Luciano Ramalho")
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "Fluent Python", byAuthor[0].Title)
}
