package warehouse

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"maps"
	"sync"
	"time"

	"github.com/BartekS5/ticketflow/pkg/blobstore"
	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/models"
	"github.com/BartekS5/ticketflow/pkg/utils"
)

// Row is one in-memory table row keyed by column name. Nil is NULL.
type Row map[string]any

type memTable struct {
	schema models.Schema
	rows   []Row
}

// Memory is an in-process warehouse reading staged files from a blob store.
// Every operation holds one lock, so a merge is atomic with respect to
// every other statement.
type Memory struct {
	mu     sync.Mutex
	blobs  blobstore.Store
	tables map[string]*memTable
	now    func() time.Time
}

func NewMemory(blobs blobstore.Store) *Memory {
	return &Memory{
		blobs:  blobs,
		tables: make(map[string]*memTable),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the merge timestamp source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Rows returns a copy of the rows of table, or nil when it does not exist.
func (m *Memory) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil
	}
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = maps.Clone(r)
	}
	return out
}

// HasTable reports whether table exists.
func (m *Memory) HasTable(table string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[table]
	return ok
}

func (m *Memory) LoadStage(ctx context.Context, sourceURI, table string, schema models.Schema, mode WriteMode) (int64, error) {
	op := "load " + sourceURI + " into " + table
	bucket, key, err := blobstore.ParseURI(sourceURI)
	if err != nil {
		return 0, err
	}
	r, err := m.blobs.Open(ctx, bucket, key)
	if err != nil {
		return 0, etlerr.Wrap(op, err)
	}
	defer r.Close()

	rows, err := readStagedRows(r, schema)
	if err != nil {
		return 0, etlerr.New(etlerr.KindMalformedRequest, op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, exists := m.tables[table]
	switch {
	case !exists:
		m.tables[table] = &memTable{schema: schema, rows: rows}
	case mode == WriteTruncate:
		t.schema = schema
		t.rows = rows
	case mode == WriteEmpty && len(t.rows) > 0:
		return 0, etlerr.Errorf(etlerr.KindMalformedRequest, op, "table %s already contains data", table)
	default:
		if len(t.schema) != len(schema) {
			return 0, etlerr.Errorf(etlerr.KindMalformedRequest, op, "schema does not match table %s", table)
		}
		t.rows = append(t.rows, rows...)
	}
	return int64(len(rows)), nil
}

func readStagedRows(r io.Reader, schema models.Schema) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(schema)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i, col := range schema {
		if header[i] != col.Name {
			return nil, fmt.Errorf("header column %d is %q, expected %q", i+1, header[i], col.Name)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row := make(Row, len(schema))
		for i, col := range schema {
			v, err := utils.ParseCell(rec[i], col.Type)
			if err != nil {
				line, _ := cr.FieldPos(i)
				return nil, &csv.ParseError{Line: line, Column: i + 1, Err: err}
			}
			row[col.Name] = v
		}
		rows = append(rows, row)
	}
}

func (m *Memory) EnsureHistoricalTable(_ context.Context, table string, schema models.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = &memTable{schema: schema.WithSCD2()}
	}
	return nil
}

func (m *Memory) MergeSCD2(_ context.Context, stage, historical string, schema models.Schema) (MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := "merge " + stage + " into " + historical
	st, ok := m.tables[stage]
	if !ok {
		return MergeResult{}, etlerr.Errorf(etlerr.KindNotFound, op, "table %s does not exist", stage)
	}
	hist, ok := m.tables[historical]
	if !ok {
		return MergeResult{}, etlerr.Errorf(etlerr.KindNotFound, op, "table %s does not exist", historical)
	}

	keyCol := schema.Key()
	current := make(map[any]int)
	for i, r := range hist.rows {
		if r[models.ColIsCurrent] == true {
			current[r[keyCol]] = i
		}
	}

	now := m.now()
	var res MergeResult
	for _, s := range dedupLastWins(st.rows, keyCol) {
		id := s[keyCol]
		if i, ok := current[id]; ok {
			if !rowChanged(hist.rows[i], s, schema) {
				continue
			}
			hist.rows[i][models.ColIsCurrent] = false
			hist.rows[i][models.ColEffectiveEnd] = now
			res.Closed++
		}
		next := make(Row, len(schema)+3)
		for _, c := range schema {
			next[c.Name] = s[c.Name]
		}
		next[models.ColEffectiveStart] = now
		next[models.ColEffectiveEnd] = nil
		next[models.ColIsCurrent] = true
		hist.rows = append(hist.rows, next)
		current[id] = len(hist.rows) - 1
		res.Inserted++
	}
	res.Affected = res.Closed + res.Inserted
	return res, nil
}

func (m *Memory) DropTable(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, table)
	return nil
}

// dedupLastWins keeps the last row per key, in first-seen key order, and
// drops rows without a key.
func dedupLastWins(rows []Row, keyCol string) []Row {
	pos := make(map[any]int)
	var out []Row
	for _, r := range rows {
		k := r[keyCol]
		if k == nil {
			continue
		}
		if i, ok := pos[k]; ok {
			out[i] = r
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}

func rowChanged(cur, next Row, schema models.Schema) bool {
	for _, c := range schema.Descriptive() {
		if !valuesEqual(cur[c.Name], next[c.Name]) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}
