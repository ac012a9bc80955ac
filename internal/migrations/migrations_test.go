package migrations

import (
	"strings"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	for _, name := range []string{"001_init.sql", "002_oauth_subject.sql"} {
		data, err := Files.ReadFile(name)
		if err != nil {
			t.Fatalf("expected embedded migration %s, got error: %v", name, err)
		}
		if !strings.HasPrefix(string(data), "-- ") {
			t.Fatalf("migration %s should start with a header comment", name)
		}
	}
}
