// Package testdb opens the Postgres database used by store tests.
package testdb

import (
	"os"
	"testing"

	"eatauthentically/internal/db"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Open connects to TEST_DATABASE_URL, migrates and empties the schema.
// The test is skipped when the variable is unset.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	gdb, err := db.Connect(dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAndIndexes(gdb))
	require.NoError(t, gdb.Exec(`truncate table producer_outreach_email_states, claim_invitations,
producer_contacts, producers, users, api_keys, jobs restart identity cascade`).Error)

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
