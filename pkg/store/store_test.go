package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

// createTestStore creates a Store over a temp database for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := InitializeDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func createTestProject(t *testing.T, s *Store) *Project {
	t.Helper()
	project, err := s.CreateProject("test-site", "react-vite")
	if err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	return project
}

func TestProjectLifecycle(t *testing.T) {
	s := createTestStore(t)

	project := createTestProject(t, s)
	if project.ID == "" {
		t.Fatal("expected generated project ID")
	}

	got, err := s.GetProject(project.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Name != "test-site" || got.Template != "react-vite" {
		t.Errorf("unexpected project: %+v", got)
	}

	all, err := s.ListProjects()
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 project, got %d", len(all))
	}

	if err := s.DeleteProject(project.ID); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}
	if _, err := s.GetProject(project.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetUnknownProjectNotFound(t *testing.T) {
	s := createTestStore(t)
	if _, err := s.GetProject("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteProject("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCommitAssignsGaplessVersions(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)

	for i, content := range []string{"v1 content", "v2 content", "v3 content"} {
		artifact, err := s.Commit(project.ID, "components/App.tsx", content, AuthorityAIGenerated, "")
		if err != nil {
			t.Fatalf("Commit %d failed: %v", i+1, err)
		}
		if artifact.Version != i+1 {
			t.Errorf("expected version %d, got %d", i+1, artifact.Version)
		}
		if !artifact.Active {
			t.Errorf("new version %d should be active", artifact.Version)
		}
	}

	history, err := s.History(project.ID, "components/App.tsx")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(history))
	}
	for i, v := range history {
		if v.Version != i+1 {
			t.Errorf("history out of order at %d: version %d", i, v.Version)
		}
	}
}

func TestCommitSingleActiveInvariant(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)

	for _, content := range []string{"one", "two", "three"} {
		if _, err := s.Commit(project.ID, "index.html", content, AuthorityAIModified, ""); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	history, err := s.History(project.ID, "index.html")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	activeCount := 0
	for _, v := range history {
		if v.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Errorf("expected exactly 1 active version, got %d", activeCount)
	}

	active, err := s.GetActive(project.ID, "index.html")
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if active.Version != 3 || active.Content != "three" {
		t.Errorf("expected latest version active, got v%d %q", active.Version, active.Content)
	}
}

func TestCommitIndependentVersionChains(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)

	if _, err := s.Commit(project.ID, "a.tsx", "aaa", AuthorityAIGenerated, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Commit(project.ID, "a.tsx", "aaa2", AuthorityAIModified, ""); err != nil {
		t.Fatal(err)
	}
	b, err := s.Commit(project.ID, "b.tsx", "bbb", AuthorityAIGenerated, "")
	if err != nil {
		t.Fatal(err)
	}
	if b.Version != 1 {
		t.Errorf("version chains must be per path: got v%d for first b.tsx commit", b.Version)
	}
}

func TestCommitValidation(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)

	if _, err := s.Commit(project.ID, "../escape.tsx", "x", AuthorityAIGenerated, ""); err == nil {
		t.Error("expected traversal path rejection")
	}
	if _, err := s.Commit(project.ID, "ok.tsx", "", AuthorityAIGenerated, ""); err == nil {
		t.Error("expected empty content rejection")
	}
	if _, err := s.Commit(project.ID, "ok.tsx", "x", AuthoritySource("robot"), ""); err == nil {
		t.Error("expected unknown authority rejection")
	}
	if _, err := s.Commit("ghost-project", "ok.tsx", "x", AuthorityAIGenerated, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown project, got %v", err)
	}
}

func TestCommitNormalizesPath(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)

	artifact, err := s.Commit(project.ID, `components\Navbar.tsx`, "nav", AuthorityAIGenerated, "")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if artifact.Path != "components/Navbar.tsx" {
		t.Errorf("expected normalized path, got %s", artifact.Path)
	}
	if _, err := s.GetActive(project.ID, "components/Navbar.tsx"); err != nil {
		t.Errorf("normalized path should be retrievable: %v", err)
	}
}

func TestListActiveInsertionOrder(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)

	paths := []string{"src/App.tsx", "components/Navbar.tsx", "styles/main.css"}
	for _, p := range paths {
		if _, err := s.Commit(project.ID, p, "content of "+p, AuthorityAIGenerated, ""); err != nil {
			t.Fatalf("Commit %s failed: %v", p, err)
		}
	}
	// Re-commit the first path; it must keep its original position.
	if _, err := s.Commit(project.ID, "src/App.tsx", "updated", AuthorityAIModified, ""); err != nil {
		t.Fatal(err)
	}

	active, err := s.ListActive(project.ID)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active artifacts, got %d", len(active))
	}
	for i, artifact := range active {
		if artifact.Path != paths[i] {
			t.Errorf("position %d: expected %s, got %s", i, paths[i], artifact.Path)
		}
	}
	if active[0].Content != "updated" || active[0].Version != 2 {
		t.Errorf("expected updated v2 for src/App.tsx, got v%d %q", active[0].Version, active[0].Content)
	}
}

func TestRollbackCopiesContentAndAuthority(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)

	if _, err := s.Commit(project.ID, "page.tsx", "original", AuthorityUserModified, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Commit(project.ID, "page.tsx", "ai rewrite", AuthorityAIModified, "req-1"); err != nil {
		t.Fatal(err)
	}

	restored, err := s.Rollback(project.ID, "page.tsx", 1)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if restored.Version != 3 {
		t.Errorf("rollback must append, expected v3, got v%d", restored.Version)
	}
	if restored.Content != "original" {
		t.Errorf("expected restored content, got %q", restored.Content)
	}
	if restored.Authority != AuthorityUserModified {
		t.Errorf("expected copied authority user_modified, got %s", restored.Authority)
	}

	// History keeps all versions including the superseded ones.
	history, err := s.History(project.ID, "page.tsx")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Errorf("expected 3 versions after rollback, got %d", len(history))
	}
}

func TestRollbackUnknownVersion(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)

	if _, err := s.Commit(project.ID, "page.tsx", "v1", AuthorityAIGenerated, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Rollback(project.ID, "page.tsx", 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing version, got %v", err)
	}
	if _, err := s.Rollback(project.ID, "missing.tsx", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing path, got %v", err)
	}
}

func TestHistoryUnknownPath(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)
	if _, err := s.History(project.ID, "never.tsx"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)

	if _, err := s.Commit(project.ID, "a.tsx", "x", AuthorityAIGenerated, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteProject(project.ID); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}

	var count int
	err := s.DB().QueryRow(`SELECT COUNT(*) FROM artifacts WHERE project_id = ?`, project.ID).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected cascade delete of artifacts, found %d rows", count)
	}
}

func TestTouchProject(t *testing.T) {
	s := createTestStore(t)
	project := createTestProject(t, s)

	if _, err := s.TouchProject(project.ID); err != nil {
		t.Fatalf("TouchProject failed: %v", err)
	}
	if _, err := s.TouchProject("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestValidatePath(t *testing.T) {
	valid := []string{"components/Navbar.tsx", "index.html", "src/lib/util.ts", "./src/App.tsx"}
	for _, p := range valid {
		if _, err := ValidatePath(p); err != nil {
			t.Errorf("expected %q to be valid: %v", p, err)
		}
	}

	invalid := []string{"", "  ", "../secrets", "a/../../b", "/etc/passwd", "etc/passwd", `C:\windows\sys.ini`, "..", "proc/self/mem"}
	for _, p := range invalid {
		if _, err := ValidatePath(p); err == nil {
			t.Errorf("expected %q to be rejected", p)
		}
	}
}

func TestInferLanguage(t *testing.T) {
	cases := map[string]string{
		"App.tsx":    "tsx",
		"util.ts":    "ts",
		"legacy.jsx": "js",
		"main.js":    "js",
		"site.css":   "css",
		"pkg.json":   "json",
		"index.html": "html",
		"README":     "tsx",
	}
	for path, want := range cases {
		if got := InferLanguage(path); got != want {
			t.Errorf("InferLanguage(%q) = %q, want %q", path, got, want)
		}
	}
}
