package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	names, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	body, err := files.ReadFile(dir + "/" + names[0])
	require.NoError(t, err)
	sql := string(body)

	assert.True(t, strings.HasPrefix(sql, "-- +goose Up"))
	assert.Contains(t, sql, "-- +goose Down")
	for _, table := range []string{"publications", "ad_categories", "ad_sizes", "page_positions", "color_types",
		"currencies", "rates", "rate_upload_sessions", "rate_upload_staging", "setup_audit_log"} {
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table+" ", table)
	}
	assert.Contains(t, sql, "UNIQUE (upload_session_id, row_number)")
}
