package db

import "testing"

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/deals":   "pgx5://u:p@localhost:5432/deals",
		"postgresql://u:p@localhost:5432/deals": "pgx5://u:p@localhost:5432/deals",
		"pgx5://localhost/deals":                "pgx5://localhost/deals",
	}
	for in, want := range tests {
		if got := MigrateURL(in); got != want {
			t.Fatalf("MigrateURL(%q) = %q, ожидали %q", in, got, want)
		}
	}
}
