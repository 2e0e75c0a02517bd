package cleanup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mailagent_server/adapter/out/persistence"
	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/core/service/archive"
	"mailagent_server/core/service/bulk"
	"mailagent_server/pkg/apperr"

	"github.com/rs/zerolog"
)

type recordingRemote struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingRemote) ListPage(ctx context.Context, query, pageToken string, maxResults int64) (*out.RemoteListPage, error) {
	return &out.RemoteListPage{}, nil
}

func (r *recordingRemote) GetBatch(ctx context.Context, ids []string) ([]*domain.EmailIndex, error) {
	return nil, nil
}

func (r *recordingRemote) BatchModify(ctx context.Context, ids []string, addLabels, removeLabels []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func (r *recordingRemote) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type testWorld struct {
	service  *Service
	registry out.StoreRegistry
	jobs     out.JobStore
	policies out.PolicyStore
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()

	registry, err := persistence.NewStoreRegistry(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStoreRegistry: %v", err)
	}
	t.Cleanup(func() { registry.Cleanup() })

	shared, err := registry.Shared(context.Background())
	if err != nil {
		t.Fatalf("registry.Shared: %v", err)
	}
	jobs, err := persistence.NewJobStore(context.Background(), shared, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJobStore: %v", err)
	}

	policies := persistence.NewPolicyStore(registry)
	archives := persistence.NewArchiveStore(registry)
	acl := persistence.NewFileACLRegistry(registry, domain.DefaultFileACLConfig(), zerolog.Nop())

	exporter, err := archive.NewExporter(archive.ExporterConfig{BaseDir: t.TempDir()}, nil, acl, archives, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	mutator := bulk.NewMutator(registry, archives, exporter, bulk.Config{BatchSize: 50, BatchDelay: 0}, zerolog.Nop())

	service := NewService(registry, policies, jobs, mutator, zerolog.Nop())
	return &testWorld{service: service, registry: registry, jobs: jobs, policies: policies}
}

func seedStaleEmails(t *testing.T, registry out.StoreRegistry, userID string, count int, mutate func(i int, e *domain.EmailIndex)) {
	t.Helper()

	store, err := registry.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("registry.Get(%s): %v", userID, err)
	}

	old := time.Now().AddDate(0, 0, -60).UnixMilli()
	emails := make([]*domain.EmailIndex, 0, count)
	for i := 0; i < count; i++ {
		e := &domain.EmailIndex{
			ID:           fmt.Sprintf("stale%03d", i),
			ThreadID:     fmt.Sprintf("t%03d", i),
			Subject:      fmt.Sprintf("newsletter %d", i),
			Sender:       "noreply@example.com",
			Date:         old,
			Year:         2025,
			SizeEstimate: 2048,
			Labels:       []string{"INBOX"},
		}
		if mutate != nil {
			mutate(i, e)
		}
		emails = append(emails, e)
	}
	if err := store.BulkUpsertEmailIndex(context.Background(), emails, userID); err != nil {
		t.Fatalf("BulkUpsertEmailIndex: %v", err)
	}
	store.WaitForIdle()
}

func stalePolicy(userID string) *domain.CleanupPolicy {
	thirty := 30
	return &domain.CleanupPolicy{
		UserID:   userID,
		Name:     "stale newsletters",
		Enabled:  true,
		Criteria: domain.CleanupCriteria{AgeDaysMin: &thirty},
		Action:   domain.CleanupAction{Type: domain.CleanupActionDelete},
	}
}

func singleJob(t *testing.T, jobs out.JobStore, userID string) *domain.Job {
	t.Helper()

	rows, err := jobs.ListJobs(context.Background(), userID, nil, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d jobs, want 1", len(rows))
	}
	return rows[0]
}

// =============================================================================
// Policy Runs
// =============================================================================

func TestRunPolicyDeleteFlow(t *testing.T) {
	world := newTestWorld(t)
	seedStaleEmails(t, world.registry, "u1", 25, nil)

	policy, err := world.service.CreatePolicy(context.Background(), stalePolicy("u1"))
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	remote := &recordingRemote{}
	result, err := world.service.RunPolicy(context.Background(), remote, policy, nil, "u1")
	if err != nil {
		t.Fatalf("RunPolicy: %v", err)
	}
	if result.Deleted != 25 {
		t.Errorf("deleted = %d, want 25", result.Deleted)
	}
	if result.StorageFreed != 25*2048 {
		t.Errorf("storage freed = %d, want %d", result.StorageFreed, 25*2048)
	}
	if remote.callCount() != 1 {
		t.Errorf("remote calls = %d, want 1", remote.callCount())
	}

	job := singleJob(t, world.jobs, "u1")
	if job.Status != domain.JobCompleted {
		t.Fatalf("job status = %s, want COMPLETED", job.Status)
	}
	if job.JobType != domain.JobTypeCleanup {
		t.Errorf("job type = %s, want cleanup", job.JobType)
	}
	if got, ok := job.Results["deleted"].(float64); !ok || int(got) != 25 {
		t.Errorf("results.deleted = %v, want 25", job.Results["deleted"])
	}
	if job.RequestParams["policy_id"] != policy.ID {
		t.Errorf("request params policy_id = %v, want %s", job.RequestParams["policy_id"], policy.ID)
	}

	details, err := world.jobs.GetCleanupDetails(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetCleanupDetails: %v", err)
	}
	if details.TargetEmails != 25 || details.EmailsAnalyzed != 25 || details.EmailsCleaned != 25 {
		t.Errorf("details = target %d analyzed %d cleaned %d, want 25/25/25",
			details.TargetEmails, details.EmailsAnalyzed, details.EmailsCleaned)
	}
	if details.TotalBatches != 1 || details.CurrentBatch != 1 {
		t.Errorf("batches = %d/%d, want 1/1", details.CurrentBatch, details.TotalBatches)
	}
	if details.StorageFreed != 25*2048 {
		t.Errorf("details storage freed = %d, want %d", details.StorageFreed, 25*2048)
	}
}

func TestRunPolicyDryRunTouchesNothing(t *testing.T) {
	world := newTestWorld(t)
	seedStaleEmails(t, world.registry, "u1", 10, nil)

	policy, err := world.service.CreatePolicy(context.Background(), stalePolicy("u1"))
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	remote := &recordingRemote{}
	result, err := world.service.RunPolicy(context.Background(), remote, policy, &domain.CleanupOptions{DryRun: true}, "u1")
	if err != nil {
		t.Fatalf("RunPolicy: %v", err)
	}
	if result.Deleted != 10 {
		t.Errorf("deleted = %d, want 10", result.Deleted)
	}
	if remote.callCount() != 0 {
		t.Errorf("remote calls = %d, want 0", remote.callCount())
	}
	if len(result.Errors) != 1 || !strings.HasPrefix(result.Errors[0], "DRY RUN") {
		t.Errorf("errors = %v, want one DRY RUN line", result.Errors)
	}

	store, err := world.registry.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("registry.Get: %v", err)
	}
	found, err := store.SearchEmails(context.Background(), &domain.SearchCriteria{UserID: "u1"})
	if err != nil {
		t.Fatalf("SearchEmails: %v", err)
	}
	for _, e := range found.Emails {
		if e.Archived {
			t.Fatalf("email %s archived during dry run", e.ID)
		}
	}

	job := singleJob(t, world.jobs, "u1")
	if job.Status != domain.JobCompleted {
		t.Errorf("job status = %s, want COMPLETED", job.Status)
	}
	if job.RequestParams["dry_run"] != true {
		t.Errorf("request params dry_run = %v, want true", job.RequestParams["dry_run"])
	}
}

func TestRunPolicyArchiveActionSkipsRemote(t *testing.T) {
	world := newTestWorld(t)
	seedStaleEmails(t, world.registry, "u1", 8, nil)

	policy := stalePolicy("u1")
	policy.Action = domain.CleanupAction{Type: domain.CleanupActionArchive, ExportFormat: "json"}
	policy, err := world.service.CreatePolicy(context.Background(), policy)
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	// Archive runs export locally; no remote client is needed at all.
	result, err := world.service.RunPolicy(context.Background(), nil, policy, nil, "u1")
	if err != nil {
		t.Fatalf("RunPolicy: %v", err)
	}
	if result.Archived != 8 {
		t.Errorf("archived = %d, want 8", result.Archived)
	}

	job := singleJob(t, world.jobs, "u1")
	if job.Status != domain.JobCompleted {
		t.Fatalf("job status = %s, want COMPLETED", job.Status)
	}
	if got, ok := job.Results["archived"].(float64); !ok || int(got) != 8 {
		t.Errorf("results.archived = %v, want 8", job.Results["archived"])
	}
}

func TestRunPolicyPreservesImportant(t *testing.T) {
	world := newTestWorld(t)
	seedStaleEmails(t, world.registry, "u1", 6, func(i int, e *domain.EmailIndex) {
		c := domain.CategoryLow
		if i < 2 {
			c = domain.CategoryHigh
		}
		e.Category = &c
	})

	policy := stalePolicy("u1")
	policy.Safety.PreserveImportant = true
	policy, err := world.service.CreatePolicy(context.Background(), policy)
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	remote := &recordingRemote{}
	result, err := world.service.RunPolicy(context.Background(), remote, policy, nil, "u1")
	if err != nil {
		t.Fatalf("RunPolicy: %v", err)
	}
	if result.Deleted != 4 {
		t.Errorf("deleted = %d, want 4 (high-importance preserved)", result.Deleted)
	}

	details, err := world.jobs.GetCleanupDetails(context.Background(), singleJob(t, world.jobs, "u1").JobID)
	if err != nil {
		t.Fatalf("GetCleanupDetails: %v", err)
	}
	if details.EmailsCleaned != 4 {
		t.Errorf("details cleaned = %d, want 4", details.EmailsCleaned)
	}
}

func TestRunPolicyPreservesUnanalyzed(t *testing.T) {
	world := newTestWorld(t)
	// Three high, two never analyzed. Preservation drops every candidate, so
	// the remote client is never touched.
	seedStaleEmails(t, world.registry, "u1", 5, func(i int, e *domain.EmailIndex) {
		if i < 3 {
			c := domain.CategoryHigh
			e.Category = &c
		}
	})

	policy := stalePolicy("u1")
	policy.Safety.PreserveImportant = true
	policy, err := world.service.CreatePolicy(context.Background(), policy)
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	remote := &recordingRemote{}
	result, err := world.service.RunPolicy(context.Background(), remote, policy, nil, "u1")
	if err != nil {
		t.Fatalf("RunPolicy: %v", err)
	}
	if result.Deleted != 0 {
		t.Errorf("deleted = %d, want 0", result.Deleted)
	}
	if remote.callCount() != 0 {
		t.Errorf("remote calls = %d, want 0", remote.callCount())
	}
}

func TestRunPolicyFailureMarksJobFailed(t *testing.T) {
	world := newTestWorld(t)
	seedStaleEmails(t, world.registry, "u1", 5, nil)

	policy, err := world.service.CreatePolicy(context.Background(), stalePolicy("u1"))
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	// Delete without a remote client cannot proceed.
	_, err = world.service.RunPolicy(context.Background(), nil, policy, nil, "u1")
	if err == nil {
		t.Fatal("RunPolicy succeeded without a remote client")
	}

	job := singleJob(t, world.jobs, "u1")
	if job.Status != domain.JobFailed {
		t.Fatalf("job status = %s, want FAILED", job.Status)
	}
	if job.ErrorDetails == "" {
		t.Error("job error details empty")
	}
}

// =============================================================================
// Policy CRUD
// =============================================================================

func TestPolicyCRUDRoundTrip(t *testing.T) {
	world := newTestWorld(t)

	created, err := world.service.CreatePolicy(context.Background(), stalePolicy("u1"))
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if created.ID == "" || created.CreatedAt == 0 {
		t.Fatalf("policy not stamped: id=%q created_at=%d", created.ID, created.CreatedAt)
	}

	got, err := world.service.GetPolicy(context.Background(), created.ID, "u1")
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if got.Name != "stale newsletters" {
		t.Errorf("name = %q, want %q", got.Name, "stale newsletters")
	}
	if got.Criteria.AgeDaysMin == nil || *got.Criteria.AgeDaysMin != 30 {
		t.Errorf("age_days_min = %v, want 30", got.Criteria.AgeDaysMin)
	}

	listed, err := world.service.ListPolicies(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListPolicies: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d policies, want 1", len(listed))
	}

	// Another user's view stays empty.
	other, err := world.service.ListPolicies(context.Background(), "u2")
	if err != nil {
		t.Fatalf("ListPolicies(u2): %v", err)
	}
	if len(other) != 0 {
		t.Errorf("u2 sees %d policies, want 0", len(other))
	}

	if err := world.service.DeletePolicy(context.Background(), created.ID, "u1"); err != nil {
		t.Fatalf("DeletePolicy: %v", err)
	}
	if _, err := world.service.GetPolicy(context.Background(), created.ID, "u1"); err == nil {
		t.Fatal("GetPolicy succeeded after delete")
	}
}

func TestCreatePolicyValidation(t *testing.T) {
	world := newTestWorld(t)

	tests := []struct {
		name   string
		policy *domain.CleanupPolicy
		code   string
	}{
		{"nil policy", nil, apperr.CodeMissingField},
		{"missing user", &domain.CleanupPolicy{Name: "x"}, apperr.CodeUserIDMissing},
		{"missing name", &domain.CleanupPolicy{UserID: "u1"}, apperr.CodeMissingField},
		{
			"unknown action",
			&domain.CleanupPolicy{UserID: "u1", Name: "x", Action: domain.CleanupAction{Type: "purge"}},
			apperr.CodeValidationFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := world.service.CreatePolicy(context.Background(), tt.policy)
			if err == nil {
				t.Fatal("CreatePolicy succeeded")
			}
			if !apperr.Is(err, tt.code) {
				t.Errorf("error code = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestCreatePolicyDefaultsActionToDelete(t *testing.T) {
	world := newTestWorld(t)

	policy := stalePolicy("u1")
	policy.Action.Type = ""
	created, err := world.service.CreatePolicy(context.Background(), policy)
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if created.Action.Type != domain.CleanupActionDelete {
		t.Errorf("action type = %q, want delete", created.Action.Type)
	}
}
