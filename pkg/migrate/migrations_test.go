package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/maskball-tickets/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDir(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Source()); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
	embedded, err := fs.Glob(migrate.Source(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob dir: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("expected embedded (%d) to mirror dir (%d)", len(embedded), len(onDisk))
	}
}

func TestMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_ticket_types": {
			"CREATE TABLE IF NOT EXISTS ticket_types",
			"CHECK (sold_count + reserved_count <= total_stock)",
			"CHECK (sold_count >= 0)",
			"CHECK (reserved_count >= 0)",
			"CREATE TABLE IF NOT EXISTS stock_movements",
			"DROP TABLE IF EXISTS ticket_types",
		},
		"create_reservations": {
			"FOREIGN KEY (reservation_id) REFERENCES reservations(id) ON DELETE CASCADE",
			"WHERE status = 'active'",
			"DROP TABLE IF EXISTS reservations",
		},
		"create_orders": {
			"CREATE UNIQUE INDEX IF NOT EXISTS orders_order_number_key_idx ON orders (order_number_key)",
			"CREATE UNIQUE INDEX IF NOT EXISTS tickets_ticket_id_key_idx ON individual_tickets (ticket_id_key)",
			"CHECK (status IN ('pending', 'verified', 'rejected'))",
			"CHECK (status IN ('valid', 'used', 'invalid'))",
			"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
			"DROP TABLE IF EXISTS orders",
		},
		"create_checkout_sessions": {
			"idx_checkout_sessions_provider_payment_id",
			"DROP TABLE IF EXISTS checkout_sessions",
		},
		"create_outbox": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"WHERE published_at IS NULL",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
		},
	}
	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Door Scans!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20261019093000_add_door_scans.sql" {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("validate created migration: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add door scans", now); err == nil {
		t.Fatal("expected error when the file already exists")
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!", now); err == nil {
		t.Fatal("expected error for a name with no usable characters")
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestValidateDirRejectsUnbalancedStatements(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	if err := os.WriteFile(filepath.Join(dir, "20261019093000_broken.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := migrate.ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "StatementEnd") {
		t.Fatalf("expected unbalanced statement error, got %v", err)
	}
}
