package cart

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

func TestLockLineSelectsForUpdate(t *testing.T) {
	t.Parallel()

	conn, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=storefront dbname=storefront sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}

	repo := NewRepository(conn)
	stmt := repo.lineQuery(context.Background(), "s1", "1").First(&models.CartLine{}).Statement
	sql := stmt.SQL.String()
	if !strings.Contains(sql, "FOR UPDATE") {
		t.Fatalf("expected row lock, got %q", sql)
	}
	if !strings.Contains(sql, "session_id = $1") || !strings.Contains(sql, "product_id = $2") {
		t.Fatalf("unexpected filter in %q", sql)
	}
}

func TestLockLineOnSQLite(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	if _, err := repo.LockLine(ctx, "s1", "1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
	if err := repo.InsertLine(ctx, &models.CartLine{SessionID: "s1", ProductID: "1", Position: 1, Name: "One", Quantity: 2}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := conn.Transaction(func(tx *gorm.DB) error {
		line, err := repo.WithTx(tx).LockLine(ctx, "s1", "1")
		if err != nil {
			return err
		}
		if line.Quantity != 2 {
			t.Fatalf("expected quantity 2, got %d", line.Quantity)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("locked read: %v", err)
	}
}
