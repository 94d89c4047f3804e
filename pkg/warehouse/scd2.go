package warehouse

import (
	"fmt"
	"strings"

	"github.com/BartekS5/ticketflow/pkg/models"
)

// Dialect holds the engine-specific spellings the SCD2 statement needs.
type Dialect struct {
	Name string
	// QuoteColumn quotes a column identifier.
	QuoteColumn func(string) string
	Now         string
	True        string
	False       string
	// TargetHint follows the target table reference, e.g. a lock hint.
	TargetHint string
	// RowOrder is the ORDER BY clause of the de-duplication window. Stage
	// tables carry no load ordinal, so which duplicate survives is
	// unspecified.
	RowOrder string
}

var BigQueryDialect = Dialect{
	Name:        "bigquery",
	QuoteColumn: func(c string) string { return "`" + c + "`" },
	Now:         "CURRENT_TIMESTAMP()",
	True:        "TRUE",
	False:       "FALSE",
}

var SQLServerDialect = Dialect{
	Name:        "sqlserver",
	QuoteColumn: func(c string) string { return "[" + c + "]" },
	Now:         "SYSUTCDATETIME()",
	True:        "1",
	False:       "0",
	TargetHint:  " WITH (HOLDLOCK)",
	RowOrder:    " ORDER BY (SELECT NULL)",
}

// MergeStatement renders the SCD2 merge of stageRef into histRef as a
// single MERGE. Both references must already be quoted.
//
// The source relation carries every stage row twice when it changed: once
// keyed by id, which matches and closes the current version, and once with
// a NULL key, which never matches and is inserted as the new version. Rows
// for unseen ids match nothing and are inserted. Unchanged rows match and
// fall through both branches. Duplicate ids in the stage collapse to one
// row; callers de-duplicate upstream when the survivor matters.
func MergeStatement(d Dialect, stageRef, histRef string, schema models.Schema) string {
	q := d.QuoteColumn
	key := q(schema.Key())
	cols := quoteAll(d, schema.Names())
	isCurrent := q(models.ColIsCurrent)

	dedup := fmt.Sprintf(
		"SELECT %s FROM (SELECT %s, ROW_NUMBER() OVER (PARTITION BY %s%s) AS merge_rn FROM %s WHERE %s IS NOT NULL) AS D WHERE merge_rn = 1",
		strings.Join(cols, ", "), strings.Join(cols, ", "), key, d.RowOrder, stageRef, key,
	)

	sourceCols := prefixAll("S.", cols)

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s%s AS T\n", histRef, d.TargetHint)
	b.WriteString("USING (\n")
	fmt.Fprintf(&b, "  SELECT S.%s AS merge_key, %s FROM (%s) AS S\n", key, strings.Join(sourceCols, ", "), dedup)
	b.WriteString("  UNION ALL\n")
	fmt.Fprintf(&b, "  SELECT NULL AS merge_key, %s FROM (%s) AS S\n", strings.Join(sourceCols, ", "), dedup)
	fmt.Fprintf(&b, "  JOIN %s AS H ON H.%s = S.%s AND H.%s = %s\n", histRef, key, key, isCurrent, d.True)
	fmt.Fprintf(&b, "  WHERE %s\n", changed(d, "H", "S", schema))
	b.WriteString(") AS S\n")
	fmt.Fprintf(&b, "ON T.%s = S.merge_key AND T.%s = %s\n", key, isCurrent, d.True)
	fmt.Fprintf(&b, "WHEN MATCHED AND %s THEN\n", changed(d, "T", "S", schema))
	fmt.Fprintf(&b, "  UPDATE SET %s = %s, %s = %s\n", isCurrent, d.False, q(models.ColEffectiveEnd), d.Now)
	b.WriteString("WHEN NOT MATCHED THEN\n")
	fmt.Fprintf(&b, "  INSERT (%s, %s, %s, %s)\n", strings.Join(cols, ", "), q(models.ColEffectiveStart), q(models.ColEffectiveEnd), isCurrent)
	fmt.Fprintf(&b, "  VALUES (%s, %s, NULL, %s);", strings.Join(sourceCols, ", "), d.Now, d.True)
	return b.String()
}

// changed is true when any descriptive column differs. NULL differs from
// every value and equals NULL; the expression is never negated, so an
// unknown result reads as "unchanged" only when both sides are NULL.
func changed(d Dialect, left, right string, schema models.Schema) string {
	var terms []string
	for _, c := range schema.Descriptive() {
		l := left + "." + d.QuoteColumn(c.Name)
		r := right + "." + d.QuoteColumn(c.Name)
		terms = append(terms, fmt.Sprintf("%s <> %s OR (%s IS NULL AND %s IS NOT NULL) OR (%s IS NOT NULL AND %s IS NULL)", l, r, l, r, l, r))
	}
	return "(" + strings.Join(terms, " OR ") + ")"
}

func quoteAll(d Dialect, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.QuoteColumn(n)
	}
	return out
}

func prefixAll(prefix string, items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = prefix + s
	}
	return out
}
