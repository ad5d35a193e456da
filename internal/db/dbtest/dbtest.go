// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/db"
)

// New returns a migrated sqlite database private to t.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.Open(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	// One connection serialises transactions; shared-cache sqlite would
	// otherwise fail concurrent writers with "table is locked".
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}
