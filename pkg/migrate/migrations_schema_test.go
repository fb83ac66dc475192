package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoyaltySchemaMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_init_loyalty_schema.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no loyalty schema migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE users",
		"CONSTRAINT users_balance_non_negative CHECK (balance >= 0)",
		"CREATE TABLE balance_transactions",
		"user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE",
		"settlement_id UUID REFERENCES settlements(id) ON DELETE SET NULL",
		"DROP TABLE balance_transactions",
		"DROP TABLE visits",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
