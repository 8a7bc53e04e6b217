package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/studymap/internal/model"
	"github.com/hitoshi/studymap/internal/repository"
)

// --- モック定義 ---

type mockProgramRepo struct {
	upsertFn func(ctx context.Context, program *model.Program) error
	upserted []*model.Program
}

func (m *mockProgramRepo) FindByID(_ context.Context, _ string) (*model.Program, error) {
	return nil, nil
}

func (m *mockProgramRepo) List(_ context.Context) ([]*model.Program, error) {
	return nil, nil
}

func (m *mockProgramRepo) Upsert(ctx context.Context, program *model.Program) error {
	if m.upsertFn != nil {
		if err := m.upsertFn(ctx, program); err != nil {
			return err
		}
	}
	m.upserted = append(m.upserted, program)
	return nil
}

// mockSSRFGuard は検証を素通しし、通常のHTTPクライアントを返す。
// httptestサーバーはループバックのためsafeurlの実クライアントでは到達できない。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string {
	// scriptタグ除去の粗い模倣
	return strings.ReplaceAll(raw, "<script>alert(1)</script>", "")
}

var _ repository.ProgramRepository = (*mockProgramRepo)(nil)
var _ SSRFValidator = (*mockSSRFGuard)(nil)
var _ Sanitizer = (passthroughSanitizer{})

func newTestSyncer(repo *mockProgramRepo, guard SSRFValidator) *Syncer {
	return NewSyncer(repo, guard, passthroughSanitizer{}, slog.Default(), 5*time.Second, 1<<20)
}

// --- テスト ---

func TestSync_UpsertsPrograms(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"id": "msf-lse",
				"name": "MSc Finance",
				"school": "London School of Economics",
				"city": "London",
				"country": "UK",
				"latitude": 51.5145,
				"longitude": -0.1167,
				"duration_months": 12,
				"tuition_amount": 4200000,
				"tuition_currency": "gbp",
				"description": "<p>World-class finance program.</p>"
			},
			{
				"id": "msf-hec",
				"name": "MSc International Finance",
				"school": "HEC Paris",
				"city": "Paris",
				"country": "France",
				"duration_months": 10,
				"tuition_amount": 3980000,
				"tuition_currency": "eur",
				"description": ""
			}
		]`))
	}))
	defer server.Close()

	repo := &mockProgramRepo{}
	syncer := newTestSyncer(repo, &mockSSRFGuard{})

	upserted, skipped, err := syncer.Sync(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if upserted != 2 {
		t.Errorf("upserted = %d, want 2", upserted)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(repo.upserted) != 2 {
		t.Fatalf("len(upserted) = %d, want 2", len(repo.upserted))
	}
	if repo.upserted[0].ID != "msf-lse" {
		t.Errorf("program ID = %q, want %q", repo.upserted[0].ID, "msf-lse")
	}
	if repo.upserted[0].School != "London School of Economics" {
		t.Errorf("school = %q, want %q", repo.upserted[0].School, "London School of Economics")
	}
}

func TestSync_SkipsEntriesMissingRequiredFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": "", "name": "No ID", "school": "Some School"},
			{"id": "ok-1", "name": "Valid", "school": "Valid School"},
			{"id": "no-school", "name": "Missing School", "school": ""}
		]`))
	}))
	defer server.Close()

	repo := &mockProgramRepo{}
	syncer := newTestSyncer(repo, &mockSSRFGuard{})

	upserted, skipped, err := syncer.Sync(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if upserted != 1 {
		t.Errorf("upserted = %d, want 1", upserted)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}

func TestSync_SanitizesDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"id": "p1",
				"name": "Program",
				"school": "School",
				"description": "<p>Safe.</p><script>alert(1)</script>"
			}
		]`))
	}))
	defer server.Close()

	repo := &mockProgramRepo{}
	syncer := newTestSyncer(repo, &mockSSRFGuard{})

	if _, _, err := syncer.Sync(context.Background(), server.URL); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if len(repo.upserted) != 1 {
		t.Fatalf("len(upserted) = %d, want 1", len(repo.upserted))
	}
	if strings.Contains(repo.upserted[0].Description, "<script>") {
		t.Errorf("description was not sanitized: %q", repo.upserted[0].Description)
	}
}

func TestSync_SSRFValidationFailure_ReturnsError(t *testing.T) {
	repo := &mockProgramRepo{}
	guard := &mockSSRFGuard{validateErr: context.DeadlineExceeded}
	syncer := newTestSyncer(repo, guard)

	_, _, err := syncer.Sync(context.Background(), "http://169.254.169.254/catalog.json")
	if err == nil {
		t.Fatal("expected error for blocked URL")
	}
	if len(repo.upserted) != 0 {
		t.Error("no programs should be upserted when validation fails")
	}
}

func TestSync_Non200Status_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	syncer := newTestSyncer(&mockProgramRepo{}, &mockSSRFGuard{})

	_, _, err := syncer.Sync(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestSync_InvalidJSON_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	syncer := newTestSyncer(&mockProgramRepo{}, &mockSSRFGuard{})

	_, _, err := syncer.Sync(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
