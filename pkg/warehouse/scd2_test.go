package warehouse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeStatement_BigQuery(t *testing.T) {
	sql := MergeStatement(BigQueryDialect, "`p.d.stage`", "`p.d.historical`", testSchema)

	assert.True(t, strings.HasPrefix(sql, "MERGE INTO `p.d.historical` AS T\n"))
	assert.Contains(t, sql, "ROW_NUMBER() OVER (PARTITION BY `id`) AS merge_rn FROM `p.d.stage` WHERE `id` IS NOT NULL")
	assert.Contains(t, sql, "SELECT S.`id` AS merge_key, S.`id`, S.`name`, S.`city`, S.`latitude`")
	assert.Contains(t, sql, "SELECT NULL AS merge_key")
	assert.Contains(t, sql, "JOIN `p.d.historical` AS H ON H.`id` = S.`id` AND H.`is_current` = TRUE")
	assert.Contains(t, sql, "ON T.`id` = S.merge_key AND T.`is_current` = TRUE")
	assert.Contains(t, sql, "UPDATE SET `is_current` = FALSE, `effective_end_date` = CURRENT_TIMESTAMP()")
	assert.Contains(t, sql, "VALUES (S.`id`, S.`name`, S.`city`, S.`latitude`, CURRENT_TIMESTAMP(), NULL, TRUE);")

	// The key never takes part in change detection.
	assert.NotContains(t, sql, "T.`id` <> S.`id`")
	assert.Contains(t, sql, "T.`city` <> S.`city` OR (T.`city` IS NULL AND S.`city` IS NOT NULL) OR (T.`city` IS NOT NULL AND S.`city` IS NULL)")
	assert.Equal(t, 1, strings.Count(sql, ";"))
}

func TestMergeStatement_SQLServer(t *testing.T) {
	sql := MergeStatement(SQLServerDialect, "[dbo].[stage]", "[dbo].[historical]", testSchema)

	assert.True(t, strings.HasPrefix(sql, "MERGE INTO [dbo].[historical] WITH (HOLDLOCK) AS T\n"))
	assert.Contains(t, sql, "PARTITION BY [id] ORDER BY (SELECT NULL)")
	assert.Contains(t, sql, "H.[is_current] = 1")
	assert.Contains(t, sql, "UPDATE SET [is_current] = 0, [effective_end_date] = SYSUTCDATETIME()")
	assert.NotContains(t, sql, "`")
}
