package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var migrationName = regexp.MustCompile(`^(\d{4})_[a-z0-9_]+\.(up|down)\.sql$`)

func TestEveryMigrationHasUpAndDown(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			t.Fatalf("unexpected directory %s in migrations", name)
		}
		m := migrationName.FindStringSubmatch(name)
		if m == nil {
			t.Fatalf("migration file %s does not match NNNN_name.(up|down).sql", name)
		}
		version := m[1]
		switch m[2] {
		case "up":
			if ups[version] {
				t.Fatalf("duplicate up migration for version %s", version)
			}
			ups[version] = true
		case "down":
			if downs[version] {
				t.Fatalf("duplicate down migration for version %s", version)
			}
			downs[version] = true
		}
	}

	if len(ups) == 0 {
		t.Fatal("no migrations found")
	}
	for version := range ups {
		if !downs[version] {
			t.Fatalf("version %s has an up file but no down file", version)
		}
	}
	for version := range downs {
		if !ups[version] {
			t.Fatalf("version %s has a down file but no up file", version)
		}
	}
}

func TestMigrationsAreNotEmpty(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			t.Fatalf("migration %s is empty", entry.Name())
		}
	}
}
