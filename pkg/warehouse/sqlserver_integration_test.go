package warehouse

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/ticketflow/pkg/blobstore"
	"github.com/BartekS5/ticketflow/pkg/models"
)

// TestSQLServer_StageAndMerge runs against a live server; point
// SQL_CONNECTION_STRING at a scratch database to enable it.
func TestSQLServer_StageAndMerge(t *testing.T) {
	conn := os.Getenv("SQL_CONNECTION_STRING")
	if conn == "" {
		t.Skip("SQL_CONNECTION_STRING not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "sqlserver", conn)
	require.NoError(t, err)
	defer db.Close()

	blobs := blobstore.NewMemory()
	require.NoError(t, blobs.EnsureBucket(ctx, "events"))
	wh := NewSQLServer(db, blobs, "dbo")

	stage, hist := "it_stage_events", "it_hist_events"
	cleanup := func() {
		_ = wh.DropTable(ctx, stage)
		_ = wh.DropTable(ctx, hist)
	}
	cleanup()
	defer cleanup()

	require.NoError(t, wh.EnsureHistoricalTable(ctx, hist, testSchema))
	// Second call is a no-op.
	require.NoError(t, wh.EnsureHistoricalTable(ctx, hist, testSchema))

	runOnce := func(data string) MergeResult {
		require.NoError(t, blobs.Put(ctx, "events", "stage.csv", strings.NewReader(data)))
		n, err := wh.LoadStage(ctx, blobstore.URI("events", "stage.csv"), stage, testSchema, WriteTruncate)
		require.NoError(t, err)
		assert.Positive(t, n)
		res, err := wh.MergeSCD2(ctx, stage, hist, testSchema)
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, int64(2), runOnce("id,name,city,latitude\n1,Concert,NL,\n2,Show,BE,4.5\n").Affected)
	assert.Equal(t, int64(0), runOnce("id,name,city,latitude\n1,Concert,NL,\n2,Show,BE,4.5\n").Affected)
	// One close plus one insert.
	assert.Equal(t, int64(2), runOnce("id,name,city,latitude\n1,Concert,BE,\n2,Show,BE,4.5\n").Affected)

	var current []struct {
		ID   string `db:"id"`
		City string `db:"city"`
	}
	err = db.SelectContext(ctx, &current,
		"SELECT [id], [city] FROM [dbo].["+hist+"] WHERE ["+models.ColIsCurrent+"] = 1 ORDER BY [id]")
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, "BE", current[0].City)

	var total int
	require.NoError(t, db.GetContext(ctx, &total, "SELECT COUNT(1) FROM [dbo].["+hist+"]"))
	assert.Equal(t, 3, total)
}
