package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"catalog-harvester/internal/models"
	"catalog-harvester/mocks"
)

const testBaseURL = "https://catalog.test/search.json"

func newTestServer(t *testing.T, expectWrite bool) (*server, *mocks.MockStatusStore, *mocks.MockJobProducer) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	prod := mocks.NewMockJobProducer(ctrl)
	if expectWrite {
		prod.EXPECT().WriteJob(gomock.Any(), gomock.Any()).Return(nil)
	} else {
		prod.EXPECT().WriteJob(gomock.Any(), gomock.Any()).Times(0)
	}

	statusStore := mocks.NewMockStatusStore(ctrl)
	return newServer(prod, statusStore, testBaseURL, zerolog.Nop()), statusStore, prod
}

func TestHandleHarvest(t *testing.T) {
	srv, statusStore, _ := newTestServer(t, true)
	statusStore.EXPECT().SetStatus(gomock.Any(), gomock.Any()).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/harvest?author=Frank+Herbert&title=Dune", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}

	var payload models.HarvestStatus
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, err := uuid.Parse(payload.SessionID); err != nil {
		t.Fatalf("expected uuid session id, got %q", payload.SessionID)
	}
	if payload.SeedURL != testBaseURL+"?author=Frank+Herbert&page=1&title=Dune" {
		t.Fatalf("unexpected seed url: %s", payload.SeedURL)
	}
	if payload.Status != models.StatusQueued {
		t.Fatalf("unexpected status: %s", payload.Status)
	}
}

func TestHandleHarvestPublishesCriteria(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	prod := mocks.NewMockJobProducer(ctrl)
	statusStore := mocks.NewMockStatusStore(ctrl)
	srv := newServer(prod, statusStore, testBaseURL, zerolog.Nop())

	var stored models.HarvestStatus
	gomock.InOrder(
		statusStore.EXPECT().SetStatus(gomock.Any(), gomock.Any()).
			Do(func(_ context.Context, status models.HarvestStatus) { stored = status }).
			Return(nil),
		prod.EXPECT().WriteJob(gomock.Any(), gomock.Any()).
			Do(func(_ context.Context, job models.HarvestJob) {
				if job.Criteria.Query != "python" || job.Criteria.Author != "" {
					t.Fatalf("unexpected criteria: %+v", job.Criteria)
				}
				if job.SessionID != stored.SessionID {
					t.Fatalf("job session %s does not match status %s", job.SessionID, stored.SessionID)
				}
			}).
			Return(nil),
	)

	req := httptest.NewRequest(http.MethodPost, "/harvest?q=python", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}
}

func TestHandleHarvestMissingTerms(t *testing.T) {
	srv, statusStore, _ := newTestServer(t, false)
	statusStore.EXPECT().SetStatus(gomock.Any(), gomock.Any()).Times(0)

	req := httptest.NewRequest(http.MethodPost, "/harvest?q=%20", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleHarvestMethodNotAllowed(t *testing.T) {
	srv, statusStore, _ := newTestServer(t, false)
	statusStore.EXPECT().SetStatus(gomock.Any(), gomock.Any()).Times(0)

	req := httptest.NewRequest(http.MethodGet, "/harvest?q=python", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestHandleHarvestStatusStoreFailure(t *testing.T) {
	srv, statusStore, _ := newTestServer(t, false)
	statusStore.EXPECT().SetStatus(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	req := httptest.NewRequest(http.MethodPost, "/harvest?q=python", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rec.Code)
	}
}

func TestHandleHarvestStatus(t *testing.T) {
	srv, statusStore, _ := newTestServer(t, true)
	statusStore.EXPECT().SetStatus(gomock.Any(), gomock.Any()).Return(nil)

	createReq := httptest.NewRequest(http.MethodPost, "/harvest?q=python", nil)
	createRec := httptest.NewRecorder()
	srv.routes().ServeHTTP(createRec, createReq)

	var created models.HarvestStatus
	if err := json.NewDecoder(createRec.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}

	progressed := created
	progressed.Status = models.StatusDone
	progressed.Registered = 42
	statusStore.EXPECT().
		GetStatus(gomock.Any(), created.SessionID).
		Return(progressed, true, nil)

	statusReq := httptest.NewRequest(http.MethodGet, "/harvest/"+created.SessionID, nil)
	statusRec := httptest.NewRecorder()
	srv.routes().ServeHTTP(statusRec, statusReq)

	if statusRec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, statusRec.Code)
	}

	var fetched models.HarvestStatus
	if err := json.NewDecoder(statusRec.Body).Decode(&fetched); err != nil {
		t.Fatalf("failed to decode status response: %v", err)
	}
	if fetched.SessionID != created.SessionID || fetched.Status != models.StatusDone || fetched.Registered != 42 {
		t.Fatalf("unexpected status payload: %+v", fetched)
	}
}

func TestHandleHarvestStatusNotFound(t *testing.T) {
	srv, statusStore, _ := newTestServer(t, false)
	statusStore.EXPECT().GetStatus(gomock.Any(), "does-not-exist").Return(models.HarvestStatus{}, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/harvest/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestHandleHarvestStatusStoreError(t *testing.T) {
	srv, statusStore, _ := newTestServer(t, false)
	statusStore.EXPECT().GetStatus(gomock.Any(), gomock.Any()).Return(models.HarvestStatus{}, false, errors.New("redis down"))

	req := httptest.NewRequest(http.MethodGet, "/harvest/abc", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("expected prometheus exposition, got %q", rec.Body.String())
	}
}
