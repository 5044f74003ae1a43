package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"catalog-harvester/internal/models"
	"catalog-harvester/mocks"
)

type fakeRunner struct {
	mu     sync.Mutex
	jobs   []models.HarvestJob
	status models.HarvestStatus
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, job models.HarvestJob) (models.HarvestStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return f.status, f.err
}

func newTestWorker(reader *mocks.MockMessageReader, runner sessionRunner, dlq *mocks.MockMessageWriter, logger zerolog.Logger) (*worker, chan kafka.Message, *sync.WaitGroup) {
	commitCh := make(chan kafka.Message, 4)
	var wg sync.WaitGroup
	w := newWorker(reader, runner, nil, 2, time.Minute, commitCh, &wg, logger)
	if dlq != nil {
		w.dlqWriter = dlq
	}
	return w, commitCh, &wg
}

func jobMessage(t *testing.T, job models.HarvestJob, offset int64) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return kafka.Message{Partition: 0, Offset: offset, Key: []byte(job.SessionID), Value: payload}
}

func TestWorkerDispatchRunsSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	runner := &fakeRunner{status: models.HarvestStatus{Status: models.StatusDone}}
	w, commitCh, wg := newTestWorker(mocks.NewMockMessageReader(ctrl), runner, nil, zerolog.Nop())

	job := models.HarvestJob{SessionID: "s1", Criteria: models.SearchCriteria{Query: "Python"}}
	msg := jobMessage(t, job, 7)
	if err := w.dispatchMessage(context.Background(), msg); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	wg.Wait()

	select {
	case committed := <-commitCh:
		if committed.Offset != 7 {
			t.Fatalf("expected offset 7 committed, got %d", committed.Offset)
		}
	default:
		t.Fatalf("expected message handed to coordinator")
	}
	if len(runner.jobs) != 1 || runner.jobs[0].Criteria.Query != "Python" {
		t.Fatalf("unexpected jobs run: %+v", runner.jobs)
	}
}

func TestWorkerDispatchInvalidPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	var buf bytes.Buffer
	runner := &fakeRunner{}
	w, commitCh, wg := newTestWorker(mocks.NewMockMessageReader(ctrl), runner, nil, zerolog.New(&buf))

	for i, value := range []string{"{not json", `{"criteria": {"q": "x"}}`} {
		if err := w.dispatchMessage(context.Background(), kafka.Message{Offset: int64(i), Value: []byte(value)}); err != nil {
			t.Fatalf("dispatch error: %v", err)
		}
	}
	wg.Wait()

	if len(commitCh) != 2 {
		t.Fatalf("expected both messages committed, got %d", len(commitCh))
	}
	if len(runner.jobs) != 0 {
		t.Fatalf("runner should not be called, got %d jobs", len(runner.jobs))
	}
	if strings.Count(buf.String(), "invalid job payload") != 2 {
		t.Fatalf("expected two invalid payload logs, got %q", buf.String())
	}
}

func TestWorkerPublishesFailureToDLQ(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	dlq := mocks.NewMockMessageWriter(ctrl)
	runner := &fakeRunner{
		status: models.HarvestStatus{Status: models.StatusFailed, PagesWritten: 3},
		err:    errors.New("list stored pages: permission denied"),
	}
	w, commitCh, wg := newTestWorker(mocks.NewMockMessageReader(ctrl), runner, dlq, zerolog.Nop())

	job := models.HarvestJob{SessionID: "s-fail", SeedURL: "https://catalog.test/search?page=1&q=go", Criteria: models.SearchCriteria{Query: "go"}}
	dlq.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
		if len(msgs) != 1 {
			t.Fatalf("expected 1 dlq message, got %d", len(msgs))
		}
		if string(msgs[0].Key) != "s-fail" {
			t.Fatalf("unexpected key %q", msgs[0].Key)
		}
		var failure models.HarvestFailure
		if err := json.Unmarshal(msgs[0].Value, &failure); err != nil {
			t.Fatalf("decode failure: %v", err)
		}
		if failure.PagesWritten != 3 || failure.Criteria.Query != "go" || !strings.Contains(failure.Error, "permission denied") {
			t.Fatalf("unexpected failure payload: %+v", failure)
		}
		return nil
	})

	if err := w.dispatchMessage(context.Background(), jobMessage(t, job, 0)); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	wg.Wait()

	if len(commitCh) != 1 {
		t.Fatalf("failed job must still be committed, got %d", len(commitCh))
	}
}

func TestWorkerDispatchCancelledWhileWaitingForSlot(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	w, _, _ := newTestWorker(mocks.NewMockMessageReader(ctrl), &fakeRunner{}, nil, zerolog.Nop())
	for i := 0; i < cap(w.sem); i++ {
		w.sem <- struct{}{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.dispatchMessage(ctx, jobMessage(t, models.HarvestJob{SessionID: "s"}, 0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWorkerRunStopsWhenContextEnds(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	runner := &fakeRunner{}
	w, commitCh, wg := newTestWorker(reader, runner, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := jobMessage(t, models.HarvestJob{SessionID: "s-run"}, 0)
	gomock.InOrder(
		reader.EXPECT().FetchMessage(gomock.Any()).Return(msg, nil),
		reader.EXPECT().FetchMessage(gomock.Any()).DoAndReturn(func(context.Context) (kafka.Message, error) {
			cancel()
			return kafka.Message{}, context.Canceled
		}),
	)

	w.run(ctx)
	wg.Wait()

	if len(runner.jobs) != 1 || runner.jobs[0].SessionID != "s-run" {
		t.Fatalf("unexpected jobs: %+v", runner.jobs)
	}
	if len(commitCh) != 1 {
		t.Fatalf("expected 1 message for commit, got %d", len(commitCh))
	}
}

func TestCommitCoordinatorCommitsInOffsetOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	commitCh := make(chan kafka.Message, 3)
	coordinator := newCommitCoordinator(reader, commitCh, zerolog.Nop())

	var committed []int64
	reader.EXPECT().CommitMessages(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
		for _, m := range msgs {
			committed = append(committed, m.Offset)
		}
		return nil
	}).Times(3)

	// offset 5 establishes the start; 7 waits for 6
	coordinator.enqueue(kafka.Message{Partition: 0, Offset: 5})
	coordinator.drain(context.Background(), 0)
	coordinator.enqueue(kafka.Message{Partition: 0, Offset: 7})
	coordinator.drain(context.Background(), 0)
	if len(committed) != 1 {
		t.Fatalf("offset 7 must wait for 6, committed %v", committed)
	}
	coordinator.enqueue(kafka.Message{Partition: 0, Offset: 6})
	coordinator.drain(context.Background(), 0)

	want := []int64{5, 6, 7}
	if len(committed) != len(want) {
		t.Fatalf("expected %v, got %v", want, committed)
	}
	for i := range want {
		if committed[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, committed)
		}
	}
}

func TestCommitCoordinatorRequeuesOnCommitFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	commitCh := make(chan kafka.Message, 2)
	var buf bytes.Buffer
	coordinator := newCommitCoordinator(reader, commitCh, zerolog.New(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go coordinator.run(ctx, &wg)

	msg0 := kafka.Message{Partition: 0, Offset: 0, Value: []byte("a")}
	msg1 := kafka.Message{Partition: 0, Offset: 1, Value: []byte("b")}

	gomock.InOrder(
		reader.EXPECT().CommitMessages(gomock.Any(), gomock.Any()).Return(errors.New("commit failed")),
		reader.EXPECT().CommitMessages(gomock.Any(), gomock.Any()).Return(nil),
		reader.EXPECT().CommitMessages(gomock.Any(), gomock.Any()).Return(nil),
	)

	commitCh <- msg0
	time.Sleep(50 * time.Millisecond)
	commitCh <- msg1
	time.Sleep(100 * time.Millisecond)
	close(commitCh)
	wg.Wait()

	if !strings.Contains(buf.String(), "commit failed") {
		t.Fatalf("expected commit failure to be logged, got %q", buf.String())
	}
}

func TestMetricsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	metricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	metricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "worker_in_flight") {
		t.Fatalf("expected worker metrics in exposition")
	}
}
