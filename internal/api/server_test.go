package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelpost/internal/audit"
	"reelpost/internal/distribution"
	"reelpost/internal/jobs"
	"reelpost/internal/metrics"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := jobs.NewStore(filepath.Join(t.TempDir(), "scheduled_posts.json"))
	err := store.PutAll([]jobs.Job{
		{ID: "post_1", OwnerChatID: 10, Platform: distribution.Instagram, VideoPath: "/v/a.mp4", Caption: "a", ScheduledAt: now.Add(-time.Minute)},
		{ID: "post_2", OwnerChatID: 20, Platform: distribution.YouTube, VideoPath: "/v/b.mp4", Caption: "b", ScheduledAt: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatal(err)
	}

	s := NewServer(store, metrics.New().Handler(), ":0")
	s.now = func() time.Time { return now }
	return s
}

type listResponse struct {
	Jobs  []jobView `json:"jobs"`
	Count int       `json:"count"`
}

func TestListJobs(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantIDs []string
	}{
		{name: "all", query: "", wantIDs: []string{"post_1", "post_2"}},
		{name: "byChat", query: "?chat=20", wantIDs: []string{"post_2"}},
		{name: "unknownChat", query: "?chat=99", wantIDs: nil},
	}

	s := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs"+tt.query, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var got listResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Count != len(tt.wantIDs) {
				t.Fatalf("count = %d, want %d", got.Count, len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got.Jobs[i].ID != id {
					t.Errorf("jobs[%d] = %q, want %q", i, got.Jobs[i].ID, id)
				}
			}
		})
	}
}

func TestListJobsOverdueFlag(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))

	var got listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Jobs[0].Overdue || got.Jobs[1].Overdue {
		t.Errorf("overdue = %v, %v", got.Jobs[0].Overdue, got.Jobs[1].Overdue)
	}
	if got.Jobs[0].ChatID != 10 || got.Jobs[0].Platform != "instagram" {
		t.Errorf("job = %+v", got.Jobs[0])
	}
}

func TestListJobsBadChat(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?chat=abc", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

type failingLister struct{}

func (failingLister) List() ([]jobs.Job, error)            { return nil, errors.New("disk gone") }
func (failingLister) ListByOwner(int64) ([]jobs.Job, error) { return nil, errors.New("disk gone") }

func TestListJobsStoreError(t *testing.T) {
	s := NewServer(failingLister{}, nil, ":0")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk gone") {
		t.Error("internal error details should not leak")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics = %d", rec.Code)
	}
}

type fakeActions struct {
	chatID int64
	limit  int
	err    error
}

func (f *fakeActions) Recent(_ context.Context, chatID int64, limit int) ([]audit.Entry, error) {
	f.chatID, f.limit = chatID, limit
	if f.err != nil {
		return nil, f.err
	}
	return []audit.Entry{{ID: "e1", Type: audit.PostScheduled, ChatID: chatID}}, nil
}

func TestListActions(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantChat   int64
		wantLimit  int
	}{
		{name: "defaults", query: "", wantStatus: http.StatusOK, wantChat: 0, wantLimit: 50},
		{name: "byChat", query: "?chat=42&limit=5", wantStatus: http.StatusOK, wantChat: 42, wantLimit: 5},
		{name: "limitCapped", query: "?limit=100000", wantStatus: http.StatusOK, wantLimit: 500},
		{name: "badChat", query: "?chat=x", wantStatus: http.StatusBadRequest},
		{name: "badLimit", query: "?limit=0", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeActions{}
			s := newTestServer(t).WithActions(reader)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/actions"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if reader.chatID != tt.wantChat || reader.limit != tt.wantLimit {
				t.Errorf("Recent(%d, %d), want (%d, %d)", reader.chatID, reader.limit, tt.wantChat, tt.wantLimit)
			}
			if !strings.Contains(rec.Body.String(), `"POST_SCHEDULED"`) {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestListActionsUnavailable(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/actions", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	s.WithActions(&fakeActions{err: errors.New("locked")})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/actions", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
