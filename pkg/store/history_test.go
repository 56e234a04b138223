package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/autofill/internal/models"
)

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "héllo", sanitizeUTF8("héllo"))
	assert.Equal(t, "ab", sanitizeUTF8("a\xffb"))
}

func TestInvalidTableName(t *testing.T) {
	for _, name := range []string{"imports; DROP TABLE x", "1imports", "has space"} {
		t.Run(name, func(t *testing.T) {
			_, err := NewWithConfig(context.Background(), HistoryConfig{
				ConnString: "postgres://localhost:5432/none",
				TableName:  name,
			})
			assert.ErrorContains(t, err, "invalid table name")
		})
	}
}

// TestHistory needs a reachable PostgreSQL in AUTOFILL_TEST_DATABASE_URL.
func TestHistory(t *testing.T) {
	dsn := os.Getenv("AUTOFILL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTOFILL_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	table := fmt.Sprintf("test_imports_%d", time.Now().UnixNano())
	h, err := NewWithConfig(ctx, HistoryConfig{ConnString: dsn, TableName: table})
	require.NoError(t, err)
	defer func() {
		_, _ = h.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)
		h.Close()
	}()

	for i := 1; i <= 3; i++ {
		require.NoError(t, h.Record(ctx, models.ImportRecord{
			SourceURL:  fmt.Sprintf("https://example.com/%d", i),
			DatabaseID: "db1",
			PageID:     fmt.Sprintf("page%d", i),
			PageURL:    fmt.Sprintf("https://www.notion.so/page%d", i),
			Model:      "gpt-4o-mini",
		}))
	}

	recs, err := h.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "page3", recs[0].PageID)
	assert.Equal(t, "page2", recs[1].PageID)
	assert.Equal(t, "db1", recs[0].DatabaseID)
	assert.False(t, recs[0].CreatedAt.IsZero())
}
