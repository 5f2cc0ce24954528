package preserve

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/updateguard/updateguard/internal/domain"
)

func writeFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		category domain.DataCategory
		critical bool
		matched  bool
	}{
		{"ledger.db", domain.CategoryDatabase, true, true},
		{"state.sqlite3", domain.CategoryDatabase, true, true},
		{"settings.yaml", domain.CategoryConfig, true, true},
		{"config.local", domain.CategoryConfig, true, true},
		{"render.cache", domain.CategoryCache, false, true},
		{"scratch.tmp", domain.CategoryCache, false, true},
		{"thumbs.db", domain.CategoryCache, false, true},
		{"Thumbs.db", domain.CategoryCache, false, true},
		{"export.csv", domain.CategoryUserData, true, true},
		{"journal.notes", domain.CategoryUserData, true, true},
		{"core.bundle", "", false, false},
		{"README", "", false, false},
	}

	for _, tc := range cases {
		category, critical, ok := classify(tc.name)
		if ok != tc.matched {
			t.Errorf("%s: matched=%v, want %v", tc.name, ok, tc.matched)
			continue
		}
		if !ok {
			continue
		}
		if category != tc.category || critical != tc.critical {
			t.Errorf("%s: got (%s, %v), want (%s, %v)", tc.name, category, critical, tc.category, tc.critical)
		}
	}
}

func TestIdentify(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/app/data/ledger.db", []byte("db payload"))
	writeFile(t, fs, "/app/settings.yaml", []byte("key: value"))
	writeFile(t, fs, "/app/lib/core.bundle", []byte("not user data"))
	writeFile(t, fs, "/app/render.cache", []byte("cache"))

	p := NewPreserver(fs)
	files, err := p.Identify("/app")
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}

	if len(files) != 3 {
		t.Fatalf("expected 3 data files, got %d: %+v", len(files), files)
	}
	byPath := make(map[string]domain.DataFile)
	for _, f := range files {
		byPath[filepath.ToSlash(f.Path)] = f
	}
	if f, ok := byPath["/app/data/ledger.db"]; !ok || f.Category != domain.CategoryDatabase || !f.IsCritical {
		t.Errorf("database misclassified: %+v", f)
	}
	if f, ok := byPath["/app/render.cache"]; !ok || f.Category != domain.CategoryCache || f.IsCritical {
		t.Errorf("cache misclassified: %+v", f)
	}
}

func TestPreserveRestoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	contents := map[string][]byte{
		"/app/data/ledger.db": []byte("database payload bytes"),
		"/app/settings.yaml":  []byte("key: value\nother: 2\n"),
		"/app/export.csv":     []byte("a,b,c\n1,2,3\n"),
	}
	for path, data := range contents {
		writeFile(t, fs, path, data)
	}

	p := NewPreserver(fs)
	ctx := context.Background()

	files, err := p.Identify("/app")
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}

	preserved, err := p.Preserve(ctx, files, "/holding/session-1")
	if err != nil {
		t.Fatalf("preserve failed: %v", err)
	}
	for _, f := range preserved {
		if !f.Preserved() {
			t.Errorf("%s should be preserved", f.Path)
		}
		if f.Checksum == "" {
			t.Errorf("%s should carry a checksum", f.Path)
		}
	}

	// Every preserved copy matches its recorded checksum
	results := p.ValidateIntegrity(ctx, preserved)
	for path, ok := range results {
		if !ok {
			t.Errorf("preserved copy of %s failed validation", path)
		}
	}

	// Simulate the update clobbering the originals
	for path := range contents {
		writeFile(t, fs, path, []byte("clobbered by update"))
	}

	if err := p.Restore(ctx, preserved); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	for path, want := range contents {
		got, err := afero.ReadFile(fs, path)
		if err != nil {
			t.Fatalf("failed to read restored %s: %v", path, err)
		}
		if string(got) != string(want) {
			t.Errorf("%s: restored content differs", path)
		}
	}
}

func TestPreserve_CollisionSuffix(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/app/a/settings.yaml", []byte("first variant"))
	writeFile(t, fs, "/app/b/settings.yaml", []byte("second variant"))

	p := NewPreserver(fs)
	files, err := p.Identify("/app")
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}

	preserved, err := p.Preserve(context.Background(), files, "/holding")
	if err != nil {
		t.Fatalf("preserve failed: %v", err)
	}

	seen := make(map[string]bool)
	for _, f := range preserved {
		if seen[f.BackupPath] {
			t.Errorf("holding path reused: %s", f.BackupPath)
		}
		seen[f.BackupPath] = true

		got, err := afero.ReadFile(fs, f.BackupPath)
		if err != nil {
			t.Fatalf("failed to read holding copy: %v", err)
		}
		want, _ := afero.ReadFile(fs, f.Path)
		if string(got) != string(want) {
			t.Errorf("holding copy of %s diverged from original", f.Path)
		}
	}
}

func TestPreserve_PartialFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/app/settings.yaml", []byte("key: value"))

	p := NewPreserver(fs)
	files := []domain.DataFile{
		{Path: "/app/missing.csv", Category: domain.CategoryUserData, IsCritical: true},
		{Path: "/app/settings.yaml", Category: domain.CategoryConfig, IsCritical: true},
	}

	preserved, err := p.Preserve(context.Background(), files, "/holding")
	if err == nil {
		t.Fatal("expected an aggregate error for the missing file")
	}
	if !errors.Is(err, domain.ErrResource) {
		t.Errorf("expected ErrResource, got %v", err)
	}

	if preserved[0].Preserved() {
		t.Error("missing file must not be marked preserved")
	}
	if !preserved[1].Preserved() {
		t.Error("healthy file should still be preserved despite the earlier failure")
	}
}

func TestRestore_DetectsTamperedHoldingCopy(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/app/export.csv", []byte("a,b\n1,2\n"))

	p := NewPreserver(fs)
	ctx := context.Background()

	files, err := p.Identify("/app")
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}
	preserved, err := p.Preserve(ctx, files, "/holding")
	if err != nil {
		t.Fatalf("preserve failed: %v", err)
	}

	// Corrupt the holding copy behind the preserver's back
	writeFile(t, fs, preserved[0].BackupPath, []byte("tampered"))

	results := p.ValidateIntegrity(ctx, preserved)
	if results[preserved[0].Path] {
		t.Error("tampered holding copy should fail validation")
	}

	if err := p.Restore(ctx, preserved); !errors.Is(err, domain.ErrIntegrity) {
		t.Errorf("restore of tampered copy should fail with ErrIntegrity, got %v", err)
	}
}

func TestDiscardHolding(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/holding/session-1/settings.yaml", []byte("key: value"))

	p := NewPreserver(fs)
	if err := p.DiscardHolding("/holding/session-1"); err != nil {
		t.Fatalf("discard failed: %v", err)
	}

	exists, _ := afero.DirExists(fs, "/holding/session-1")
	if exists {
		t.Error("holding directory should be gone")
	}
}

// Hot-copying a live SQLite database goes through the engine itself, so
// this test runs on the real filesystem.
func TestPreserve_SQLiteHotCopy(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger.db")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE entries (id INTEGER PRIMARY KEY, note TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO entries (note) VALUES ('first'), ('second')`); err != nil {
		t.Fatalf("failed to insert rows: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	p := NewPreserver(afero.NewOsFs())
	ctx := context.Background()

	files := []domain.DataFile{{Path: dbPath, Category: domain.CategoryDatabase, IsCritical: true}}
	holdingDir := filepath.Join(dir, "holding")

	preserved, err := p.Preserve(ctx, files, holdingDir)
	if err != nil {
		t.Fatalf("preserve failed: %v", err)
	}
	if !preserved[0].Preserved() {
		t.Fatal("database should be preserved")
	}

	// The hot copy must itself be a consistent database
	if err := checkSQLiteIntegrity(preserved[0].BackupPath); err != nil {
		t.Errorf("hot copy failed integrity check: %v", err)
	}

	copyDB, err := sql.Open("sqlite3", preserved[0].BackupPath+"?mode=ro")
	if err != nil {
		t.Fatalf("failed to open hot copy: %v", err)
	}
	defer copyDB.Close()

	var count int
	if err := copyDB.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		t.Fatalf("failed to query hot copy: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows in hot copy, got %d", count)
	}

	if err := p.Restore(ctx, preserved); err != nil {
		t.Errorf("restore of database failed: %v", err)
	}
}
