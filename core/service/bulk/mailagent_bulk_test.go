package bulk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"mailagent_server/adapter/out/persistence"
	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/core/service/archive"

	"github.com/rs/zerolog"
)

type remoteCall struct {
	IDs    []string
	Add    []string
	Remove []string
}

// fakeRemote records BatchModify calls and fails the configured ones.
type fakeRemote struct {
	mu     sync.Mutex
	calls  []remoteCall
	failOn map[int]error // 1-based call number
}

func (f *fakeRemote) ListPage(ctx context.Context, query, pageToken string, maxResults int64) (*out.RemoteListPage, error) {
	return &out.RemoteListPage{}, nil
}

func (f *fakeRemote) GetBatch(ctx context.Context, ids []string) ([]*domain.EmailIndex, error) {
	return nil, nil
}

func (f *fakeRemote) BatchModify(ctx context.Context, ids []string, addLabels, removeLabels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, remoteCall{
		IDs:    append([]string(nil), ids...),
		Add:    append([]string(nil), addLabels...),
		Remove: append([]string(nil), removeLabels...),
	})
	if err, ok := f.failOn[len(f.calls)]; ok {
		return err
	}
	return nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testEnv struct {
	mutator  *Mutator
	registry out.StoreRegistry
	archives out.ArchiveStore
	acl      out.FileACL
	exported string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry, err := persistence.NewStoreRegistry(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStoreRegistry: %v", err)
	}
	t.Cleanup(func() { registry.Cleanup() })

	archives := persistence.NewArchiveStore(registry)
	acl := persistence.NewFileACLRegistry(registry, domain.DefaultFileACLConfig(), zerolog.Nop())

	exportDir := t.TempDir()
	exporter, err := archive.NewExporter(archive.ExporterConfig{BaseDir: exportDir}, nil, acl, archives, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}

	mutator := NewMutator(registry, archives, exporter, Config{BatchSize: 50, BatchDelay: 0}, zerolog.Nop())
	return &testEnv{mutator: mutator, registry: registry, archives: archives, acl: acl, exported: exportDir}
}

func seedEmails(t *testing.T, registry out.StoreRegistry, userID string, count int, mutate func(i int, e *domain.EmailIndex)) {
	t.Helper()

	store, err := registry.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("registry.Get(%s): %v", userID, err)
	}

	emails := make([]*domain.EmailIndex, 0, count)
	for i := 0; i < count; i++ {
		e := &domain.EmailIndex{
			ID:           fmt.Sprintf("e%03d", i),
			ThreadID:     fmt.Sprintf("t%03d", i),
			Subject:      fmt.Sprintf("subject %d", i),
			Sender:       "sender@example.com",
			Date:         time.Now().UnixMilli(),
			Year:         2025,
			SizeEstimate: 1000,
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

func fetchEmail(t *testing.T, registry out.StoreRegistry, userID, id string) *domain.EmailIndex {
	t.Helper()

	store, err := registry.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("registry.Get(%s): %v", userID, err)
	}
	result, err := store.SearchEmails(context.Background(), &domain.SearchCriteria{IDs: []string{id}, UserID: userID})
	if err != nil {
		t.Fatalf("SearchEmails: %v", err)
	}
	if len(result.Emails) != 1 {
		t.Fatalf("email %s: got %d rows, want 1", id, len(result.Emails))
	}
	return result.Emails[0]
}

func lowCategory(i int, e *domain.EmailIndex) {
	c := domain.CategoryLow
	e.Category = &c
}

// =============================================================================
// Delete
// =============================================================================

func TestDeleteEmailsBatchesOfFifty(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 150, lowCategory)

	remote := &fakeRemote{}
	low := domain.CategoryLow
	result, err := env.mutator.DeleteEmails(context.Background(), remote, &domain.DeleteOptions{Category: &low}, "u1")
	if err != nil {
		t.Fatalf("DeleteEmails: %v", err)
	}

	if result.Deleted != 150 {
		t.Fatalf("Deleted = %d, want 150", result.Deleted)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("Errors = %v, want none", result.Errors)
	}
	if remote.callCount() != 3 {
		t.Fatalf("BatchModify calls = %d, want 3", remote.callCount())
	}
	for i, call := range remote.calls {
		if len(call.IDs) > 50 {
			t.Fatalf("batch %d carries %d ids, cap is 50", i+1, len(call.IDs))
		}
		if len(call.Add) != 1 || call.Add[0] != domain.LabelTrash {
			t.Fatalf("batch %d addLabels = %v, want [TRASH]", i+1, call.Add)
		}
		if len(call.Remove) != 2 || call.Remove[0] != domain.LabelInbox || call.Remove[1] != domain.LabelUnread {
			t.Fatalf("batch %d removeLabels = %v, want [INBOX UNREAD]", i+1, call.Remove)
		}
	}

	row := fetchEmail(t, env.registry, "u1", "e000")
	if !row.Archived {
		t.Fatal("deleted row not marked archived")
	}
	if row.ArchiveLocation == nil || *row.ArchiveLocation != domain.ArchiveLocationTrash {
		t.Fatalf("archive_location = %v, want %q", row.ArchiveLocation, domain.ArchiveLocationTrash)
	}
}

func TestDeleteEmailsPartialBatchFailure(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 80, lowCategory)

	remote := &fakeRemote{failOn: map[int]error{2: errors.New("Network timeout")}}
	low := domain.CategoryLow
	result, err := env.mutator.DeleteEmails(context.Background(), remote, &domain.DeleteOptions{Category: &low}, "u1")
	if err != nil {
		t.Fatalf("DeleteEmails: %v", err)
	}

	if result.Deleted != 50 {
		t.Fatalf("Deleted = %d, want 50", result.Deleted)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "Network timeout") {
		t.Fatalf("Errors = %v, want one containing %q", result.Errors, "Network timeout")
	}
	if remote.callCount() != 2 {
		t.Fatalf("BatchModify calls = %d, want 2", remote.callCount())
	}
}

func TestDeleteEmailsDryRun(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 7, lowCategory)

	remote := &fakeRemote{}
	result, err := env.mutator.DeleteEmails(context.Background(), remote, &domain.DeleteOptions{DryRun: true}, "u1")
	if err != nil {
		t.Fatalf("DeleteEmails: %v", err)
	}

	if result.Deleted != 7 {
		t.Fatalf("dry-run Deleted = %d, want candidate count 7", result.Deleted)
	}
	if remote.callCount() != 0 {
		t.Fatal("dry run touched the remote client")
	}
	if len(result.Errors) != 1 || !strings.HasPrefix(result.Errors[0], "DRY RUN") {
		t.Fatalf("Errors = %v, want one line beginning with DRY RUN", result.Errors)
	}

	if row := fetchEmail(t, env.registry, "u1", "e000"); row.Archived {
		t.Fatal("dry run mutated a row")
	}
}

func TestDeleteEmailsExcludesHigh(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 10, func(i int, e *domain.EmailIndex) {
		c := domain.CategoryLow
		if i < 4 {
			c = domain.CategoryHigh
		}
		e.Category = &c
	})

	remote := &fakeRemote{}
	result, err := env.mutator.DeleteEmails(context.Background(), remote, &domain.DeleteOptions{}, "u1")
	if err != nil {
		t.Fatalf("DeleteEmails: %v", err)
	}
	if result.Deleted != 6 {
		t.Fatalf("Deleted = %d, want 6 (high rows excluded)", result.Deleted)
	}

	// Explicit category "high" opts back in.
	high := domain.CategoryHigh
	result, err = env.mutator.DeleteEmails(context.Background(), remote, &domain.DeleteOptions{Category: &high}, "u1")
	if err != nil {
		t.Fatalf("DeleteEmails(high): %v", err)
	}
	if result.Deleted != 4 {
		t.Fatalf("Deleted = %d, want 4 high rows", result.Deleted)
	}
}

func TestDeleteEmailsSkipArchivedDefault(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 6, func(i int, e *domain.EmailIndex) {
		lowCategory(i, e)
		if i < 2 {
			e.Archived = true
			loc := domain.ArchiveLocationGmail
			e.ArchiveLocation = &loc
		}
	})

	remote := &fakeRemote{}
	result, err := env.mutator.DeleteEmails(context.Background(), remote, &domain.DeleteOptions{}, "u1")
	if err != nil {
		t.Fatalf("DeleteEmails: %v", err)
	}
	if result.Deleted != 4 {
		t.Fatalf("Deleted = %d, want 4 unarchived rows", result.Deleted)
	}

	include := false
	result, err = env.mutator.DeleteEmails(context.Background(), remote, &domain.DeleteOptions{SkipArchived: &include}, "u1")
	if err != nil {
		t.Fatalf("DeleteEmails(skipArchived=false): %v", err)
	}
	if result.Deleted != 6 {
		t.Fatalf("Deleted = %d, want all 6 rows", result.Deleted)
	}
}

// =============================================================================
// Restore
// =============================================================================

func TestRestoreEmailsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 3, lowCategory)

	remote := &fakeRemote{}
	_, err := env.mutator.ArchiveEmails(context.Background(), remote, &domain.ArchiveOptions{Method: domain.ArchiveMethodGmail}, "u1")
	if err != nil {
		t.Fatalf("ArchiveEmails: %v", err)
	}
	if row := fetchEmail(t, env.registry, "u1", "e001"); !row.Archived {
		t.Fatal("row not archived before restore")
	}

	result, err := env.mutator.RestoreEmails(context.Background(), remote, &domain.RestoreOptions{
		EmailIDs:      []string{"e000", "e001", "e002"},
		RestoreLabels: []string{"IMPORTANT"},
	}, "u1")
	if err != nil {
		t.Fatalf("RestoreEmails: %v", err)
	}
	if result.Restored != 3 {
		t.Fatalf("Restored = %d, want 3", result.Restored)
	}

	last := remote.calls[len(remote.calls)-1]
	if len(last.Add) != 2 || last.Add[0] != domain.LabelInbox || last.Add[1] != "IMPORTANT" {
		t.Fatalf("restore addLabels = %v, want [INBOX IMPORTANT]", last.Add)
	}
	if len(last.Remove) != 1 || last.Remove[0] != domain.LabelTrash {
		t.Fatalf("restore removeLabels = %v, want [TRASH]", last.Remove)
	}

	row := fetchEmail(t, env.registry, "u1", "e001")
	if row.Archived {
		t.Fatal("restored row still archived")
	}
	if row.ArchiveLocation != nil {
		t.Fatalf("archive_location = %q, want cleared", *row.ArchiveLocation)
	}
	if row.ArchiveDate != nil {
		t.Fatal("archive_date not cleared")
	}
}

func TestRestoreEmailsCrossUserRefusal(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u2", 1, func(i int, e *domain.EmailIndex) {
		e.ID = "e-u2"
		e.Archived = true
		loc := domain.ArchiveLocationGmail
		e.ArchiveLocation = &loc
	})

	remote := &fakeRemote{}
	result, err := env.mutator.RestoreEmails(context.Background(), remote, &domain.RestoreOptions{EmailIDs: []string{"e-u2"}}, "u1")
	if err != nil {
		t.Fatalf("RestoreEmails: %v", err)
	}

	if result.Restored != 0 {
		t.Fatalf("Restored = %d, want 0", result.Restored)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly one entry", result.Errors)
	}
	if remote.callCount() != 0 {
		t.Fatal("cross-user restore reached the remote client")
	}
	if row := fetchEmail(t, env.registry, "u2", "e-u2"); !row.Archived {
		t.Fatal("foreign row was unarchived")
	}
}

// =============================================================================
// Archive
// =============================================================================

func TestArchiveEmailsGmailMethod(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 5, lowCategory)

	remote := &fakeRemote{}
	result, err := env.mutator.ArchiveEmails(context.Background(), remote, &domain.ArchiveOptions{Method: domain.ArchiveMethodGmail}, "u1")
	if err != nil {
		t.Fatalf("ArchiveEmails: %v", err)
	}

	if result.Archived != 5 {
		t.Fatalf("Archived = %d, want 5", result.Archived)
	}
	if result.Location != domain.ArchiveLocationGmail {
		t.Fatalf("Location = %q, want %q", result.Location, domain.ArchiveLocationGmail)
	}
	call := remote.calls[0]
	if len(call.Add) != 1 || call.Add[0] != domain.LabelArchived {
		t.Fatalf("addLabels = %v, want [ARCHIVED]", call.Add)
	}
	if len(call.Remove) != 1 || call.Remove[0] != domain.LabelInbox {
		t.Fatalf("removeLabels = %v, want [INBOX]", call.Remove)
	}

	row := fetchEmail(t, env.registry, "u1", "e002")
	if !row.Archived || row.ArchiveLocation == nil || *row.ArchiveLocation != domain.ArchiveLocationGmail {
		t.Fatalf("row not marked ARCHIVED: archived=%v location=%v", row.Archived, row.ArchiveLocation)
	}
}

func TestArchiveEmailsExportMethod(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 4, lowCategory)

	remote := &fakeRemote{}
	result, err := env.mutator.ArchiveEmails(context.Background(), remote, &domain.ArchiveOptions{
		Method:       domain.ArchiveMethodExport,
		ExportFormat: "json",
	}, "u1")
	if err != nil {
		t.Fatalf("ArchiveEmails: %v", err)
	}

	if result.Archived != 4 {
		t.Fatalf("Archived = %d, want 4", result.Archived)
	}
	if remote.callCount() != 0 {
		t.Fatal("export archiving called the remote client")
	}
	if !strings.Contains(result.Location, "user_u1") {
		t.Fatalf("export path %q does not carry the user directory", result.Location)
	}
	if _, err := os.Stat(result.Location); err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	if result.RecordID == "" {
		t.Fatal("no archive record id")
	}

	records, err := env.archives.ListRecords(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 1 || records[0].EmailCount != 4 {
		t.Fatalf("records = %+v, want one with EmailCount 4", records)
	}

	row := fetchEmail(t, env.registry, "u1", "e003")
	if !row.Archived || row.ArchiveLocation == nil || *row.ArchiveLocation != result.Location {
		t.Fatalf("row location = %v, want %q", row.ArchiveLocation, result.Location)
	}

	access, err := env.acl.CheckFileAccess(context.Background(), &domain.FileAccessRequest{
		FileID:         fileIDForPath(t, env, result.Location),
		UserID:         "u1",
		PermissionType: domain.PermissionRead,
	})
	if err != nil {
		t.Fatalf("CheckFileAccess: %v", err)
	}
	if !access.Allowed {
		t.Fatalf("owner denied access to export: %+v", access)
	}
}

func fileIDForPath(t *testing.T, env *testEnv, path string) string {
	t.Helper()

	shared, err := env.registry.Shared(context.Background())
	if err != nil {
		t.Fatalf("Shared: %v", err)
	}
	var id string
	if err := shared.Get(context.Background(), &id, `SELECT id FROM file_metadata WHERE file_path = ?`, path); err != nil {
		t.Fatalf("file metadata lookup: %v", err)
	}
	return id
}

func TestArchiveRulesRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	year := 2020
	created, err := env.mutator.CreateArchiveRule(context.Background(), &domain.ArchiveRule{
		UserID:   "u1",
		Name:     "old mail to export",
		Criteria: domain.SearchCriteria{Year: &year},
		Action:   domain.ArchiveMethodExport,
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("CreateArchiveRule: %v", err)
	}
	if created.ID == "" || created.CreatedAt == 0 {
		t.Fatalf("rule not stamped: %+v", created)
	}

	rules, err := env.mutator.ListArchiveRules(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListArchiveRules: %v", err)
	}
	if len(rules) != 1 || rules[0].Name != "old mail to export" {
		t.Fatalf("rules = %+v", rules)
	}
	if rules[0].Criteria.Year == nil || *rules[0].Criteria.Year != 2020 {
		t.Fatalf("criteria lost in round trip: %+v", rules[0].Criteria)
	}

	foreign, err := env.mutator.ListArchiveRules(context.Background(), "u2")
	if err != nil {
		t.Fatalf("ListArchiveRules(u2): %v", err)
	}
	if len(foreign) != 0 {
		t.Fatalf("u2 sees u1 rules: %+v", foreign)
	}
}

// =============================================================================
// Cleanup Batches
// =============================================================================

func cleanupPolicy(mutate func(*domain.CleanupPolicy)) *domain.CleanupPolicy {
	p := &domain.CleanupPolicy{
		ID:     "pol-1",
		UserID: "u1",
		Name:   "old low mail",
		Action: domain.CleanupAction{Type: domain.CleanupActionDelete},
		Safety: domain.CleanupSafety{MaxEmailsPerRun: 0, PreserveImportant: false},
	}
	if mutate != nil {
		mutate(p)
	}
	return p
}

func TestBatchDeleteForCleanupPreservesImportant(t *testing.T) {
	// Two high, one never analyzed, one low: only the low row is deletable.
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 4, func(i int, e *domain.EmailIndex) {
		switch {
		case i < 2:
			c := domain.CategoryHigh
			e.Category = &c
		case i == 3:
			c := domain.CategoryLow
			e.Category = &c
		}
	})

	store, err := env.registry.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("registry.Get: %v", err)
	}
	candidates, err := store.SearchEmails(context.Background(), &domain.SearchCriteria{UserID: "u1"})
	if err != nil {
		t.Fatalf("SearchEmails: %v", err)
	}
	if len(candidates.Emails) != 4 {
		t.Fatalf("candidates = %d, want 4", len(candidates.Emails))
	}

	remote := &fakeRemote{}
	policy := cleanupPolicy(func(p *domain.CleanupPolicy) { p.Safety.PreserveImportant = true })
	result, err := env.mutator.BatchDeleteForCleanup(context.Background(), remote, candidates.Emails, policy, &domain.CleanupOptions{}, "u1")
	if err != nil {
		t.Fatalf("BatchDeleteForCleanup: %v", err)
	}

	if result.Deleted != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v, want exactly the low row deleted", result)
	}
	if remote.callCount() != 1 {
		t.Fatalf("remote calls = %d, want 1", remote.callCount())
	}
}

func TestBatchDeleteForCleanupMaxEmailsPerRun(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 30, lowCategory)

	store, _ := env.registry.Get(context.Background(), "u1")
	candidates, err := store.SearchEmails(context.Background(), &domain.SearchCriteria{UserID: "u1"})
	if err != nil {
		t.Fatalf("SearchEmails: %v", err)
	}

	remote := &fakeRemote{}
	policy := cleanupPolicy(func(p *domain.CleanupPolicy) { p.Safety.MaxEmailsPerRun = 10 })
	result, err := env.mutator.BatchDeleteForCleanup(context.Background(), remote, candidates.Emails, policy, &domain.CleanupOptions{}, "u1")
	if err != nil {
		t.Fatalf("BatchDeleteForCleanup: %v", err)
	}

	if result.Deleted != 10 {
		t.Fatalf("Deleted = %d, want capped 10", result.Deleted)
	}
	if result.StorageFreed != 10*1000 {
		t.Fatalf("StorageFreed = %d, want %d", result.StorageFreed, 10*1000)
	}
}

func TestBatchDeleteForCleanupStopsAtMaxFailures(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 100, lowCategory)

	store, _ := env.registry.Get(context.Background(), "u1")
	candidates, err := store.SearchEmails(context.Background(), &domain.SearchCriteria{UserID: "u1"})
	if err != nil {
		t.Fatalf("SearchEmails: %v", err)
	}

	remote := &fakeRemote{failOn: map[int]error{
		1: errors.New("quota exceeded"),
		2: errors.New("quota exceeded"),
	}}
	result, err := env.mutator.BatchDeleteForCleanup(context.Background(), remote, candidates.Emails, cleanupPolicy(nil), &domain.CleanupOptions{MaxFailures: 50}, "u1")
	if err != nil {
		t.Fatalf("BatchDeleteForCleanup: %v", err)
	}

	if remote.callCount() != 1 {
		t.Fatalf("BatchModify calls = %d, want stop after the first failed batch", remote.callCount())
	}
	if result.Failed != 50 {
		t.Fatalf("Failed = %d, want 50", result.Failed)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "Batch 1 failed") {
		t.Fatalf("Errors = %v", result.Errors)
	}
}

func TestBatchDeleteForCleanupArchiveAction(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 8, lowCategory)

	store, _ := env.registry.Get(context.Background(), "u1")
	candidates, err := store.SearchEmails(context.Background(), &domain.SearchCriteria{UserID: "u1"})
	if err != nil {
		t.Fatalf("SearchEmails: %v", err)
	}

	remote := &fakeRemote{}
	policy := cleanupPolicy(func(p *domain.CleanupPolicy) {
		p.Action = domain.CleanupAction{Type: domain.CleanupActionArchive, ExportFormat: "csv"}
	})
	result, err := env.mutator.BatchDeleteForCleanup(context.Background(), remote, candidates.Emails, policy, &domain.CleanupOptions{}, "u1")
	if err != nil {
		t.Fatalf("BatchDeleteForCleanup: %v", err)
	}

	if result.Archived != 8 || result.Deleted != 0 {
		t.Fatalf("result = %+v, want 8 archived", result)
	}
	if remote.callCount() != 0 {
		t.Fatal("archive action called the remote client")
	}

	row := fetchEmail(t, env.registry, "u1", "e000")
	if !row.Archived || row.ArchiveLocation == nil || !strings.HasSuffix(*row.ArchiveLocation, ".csv") {
		t.Fatalf("row not archived to export file: %+v", row.ArchiveLocation)
	}
}

func TestBatchDeleteForCleanupDryRun(t *testing.T) {
	env := newTestEnv(t)
	seedEmails(t, env.registry, "u1", 12, lowCategory)

	store, _ := env.registry.Get(context.Background(), "u1")
	candidates, err := store.SearchEmails(context.Background(), &domain.SearchCriteria{UserID: "u1"})
	if err != nil {
		t.Fatalf("SearchEmails: %v", err)
	}

	remote := &fakeRemote{}
	result, err := env.mutator.BatchDeleteForCleanup(context.Background(), remote, candidates.Emails, cleanupPolicy(nil), &domain.CleanupOptions{DryRun: true}, "u1")
	if err != nil {
		t.Fatalf("BatchDeleteForCleanup: %v", err)
	}

	if result.Deleted != 12 {
		t.Fatalf("dry-run Deleted = %d, want 12", result.Deleted)
	}
	if remote.callCount() != 0 {
		t.Fatal("dry run touched the remote client")
	}
	if len(result.Errors) != 1 || !strings.HasPrefix(result.Errors[0], "DRY RUN") {
		t.Fatalf("Errors = %v", result.Errors)
	}
}

// =============================================================================
// Pacing
// =============================================================================

func TestBatchDelayForcesInterval(t *testing.T) {
	registry, err := persistence.NewStoreRegistry(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStoreRegistry: %v", err)
	}
	t.Cleanup(func() { registry.Cleanup() })

	mutator := NewMutator(registry, persistence.NewArchiveStore(registry), nil, Config{BatchSize: 10, BatchDelay: 100 * time.Millisecond}, zerolog.Nop())
	seedEmails(t, registry, "u1", 20, lowCategory)

	remote := &fakeRemote{}
	start := time.Now()
	result, err := mutator.DeleteEmails(context.Background(), remote, &domain.DeleteOptions{}, "u1")
	if err != nil {
		t.Fatalf("DeleteEmails: %v", err)
	}
	elapsed := time.Since(start)

	if result.Deleted != 20 {
		t.Fatalf("Deleted = %d, want 20", result.Deleted)
	}
	if remote.callCount() != 2 {
		t.Fatalf("BatchModify calls = %d, want 2", remote.callCount())
	}
	if elapsed < 100*time.Millisecond {
		t.Fatalf("two batches finished in %v, delay floor not enforced", elapsed)
	}
}
