package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"backupd/internal/backup"
	"backupd/internal/config"
	"backupd/internal/events"
	"backupd/internal/resources"
	"backupd/internal/schedule"
	"backupd/internal/scheduler"
)

type stubBackup struct{}

func (stubBackup) CreateFullBackup(context.Context) (*backup.Result, error) {
	return &backup.Result{ID: "r1", Type: "full"}, nil
}

func (stubBackup) CreateIncrementalBackup(context.Context) (*backup.Result, error) {
	return &backup.Result{ID: "r2", Type: "incremental"}, nil
}

type stubSampler struct{}

func (stubSampler) Snapshot(context.Context) (resources.Usage, error) {
	return resources.Usage{DiskFreeBytes: 1 << 40}, nil
}

func newTestServer(t *testing.T) (http.Handler, *schedule.Store) {
	t.Helper()
	logger := zerolog.Nop()
	store := schedule.NewStore(logger, filepath.Join(t.TempDir(), "schedules.json"))
	sched := scheduler.New(logger, scheduler.Config{MaxConcurrentBackups: 2}, store, stubBackup{}, stubSampler{}, events.NewBus())
	return NewRouter(logger, sched, config.DefaultPresets()), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func scheduleBody(name string) map[string]any {
	return map[string]any{
		"name":       name,
		"enabled":    true,
		"type":       "full",
		"frequency":  "0 2 * * *",
		"priority":   1,
		"retryCount": 2,
		"timeout":    60000,
	}
}

func TestScheduleCRUD(t *testing.T) {
	h, _ := newTestServer(t)

	body := scheduleBody("nightly")
	body["runCount"] = 7
	body["successCount"] = 7
	rec := doJSON(t, h, http.MethodPost, "/api/v1/schedules", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var created schedule.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.NextRun == nil {
		t.Fatal("created schedule has no nextRun")
	}
	if created.RunCount != 0 || created.SuccessCount != 0 {
		t.Fatalf("client-seeded counters stored: %+v", created)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/schedules/nightly", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/schedules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var list []schedule.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "nightly" {
		t.Fatalf("list = %+v", list)
	}

	upd := scheduleBody("nightly")
	upd["priority"] = 7
	rec = doJSON(t, h, http.MethodPut, "/api/v1/schedules/nightly", upd)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/schedules/nightly/toggle", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: %d", rec.Code)
	}
	var toggled schedule.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &toggled); err != nil {
		t.Fatal(err)
	}
	if toggled.Enabled {
		t.Fatal("toggle should disable")
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/schedules/nightly", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/schedules/nightly", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestCreateRejectsBadFrequency(t *testing.T) {
	h, _ := newTestServer(t)
	body := scheduleBody("bad")
	body["frequency"] = "whenever"
	rec := doJSON(t, h, http.MethodPost, "/api/v1/schedules", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Error.Code != "schedule.invalid_frequency" {
		t.Fatalf("error code = %q", payload.Error.Code)
	}
}

func TestDuplicateCreateConflicts(t *testing.T) {
	h, _ := newTestServer(t)
	if rec := doJSON(t, h, http.MethodPost, "/api/v1/schedules", scheduleBody("a")); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/v1/schedules", scheduleBody("a")); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: %d, want 409", rec.Code)
	}
}

func TestTriggerRunsBackup(t *testing.T) {
	h, store := newTestServer(t)
	if rec := doJSON(t, h, http.MethodPost, "/api/v1/schedules", scheduleBody("a")); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}
	rec := doJSON(t, h, http.MethodPost, "/api/v1/schedules/a/run", map[string]string{"type": "incremental"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger: %d %s", rec.Code, rec.Body)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		sc, err := store.Get("a")
		if err == nil && sc.SuccessCount == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("triggered backup never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/scheduler/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var st scheduler.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Limits.MaxConcurrentBackups != 2 {
		t.Fatalf("limits = %+v", st.Limits)
	}
}

func TestPresetInstantiation(t *testing.T) {
	h, store := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/presets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("presets: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/schedules/from-preset", map[string]string{
		"preset": "nightly", "name": "media-nightly",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("from-preset: %d %s", rec.Code, rec.Body)
	}
	sc, err := store.Get("media-nightly")
	if err != nil {
		t.Fatal(err)
	}
	if sc.Frequency != "0 2 * * *" || sc.Type != schedule.TypeFull {
		t.Fatalf("instantiated schedule = %+v", sc)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/schedules/from-preset", map[string]string{"preset": "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown preset: %d", rec.Code)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	h, _ := newTestServer(t)
	if rec := doJSON(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/metrics", nil); rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}
