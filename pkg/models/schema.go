package models

// ColumnType is a warehouse column type. Names follow BigQuery's legacy
// type names; other engines map them onto their own.
type ColumnType string

const (
	TypeString    ColumnType = "STRING"
	TypeDate      ColumnType = "DATE"
	TypeTime      ColumnType = "TIME"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeFloat     ColumnType = "FLOAT"
	TypeBoolean   ColumnType = "BOOLEAN"
)

// Column describes one warehouse column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema is an ordered column list. The first column is the natural key.
type Schema []Column

// SCD2 bookkeeping columns appended to the historical table.
const (
	ColEffectiveStart = "effective_start_date"
	ColEffectiveEnd   = "effective_end_date"
	ColIsCurrent      = "is_current"
)

// Key returns the natural key column name.
func (s Schema) Key() string {
	if len(s) == 0 {
		return ""
	}
	return s[0].Name
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Descriptive returns every column except the key; these drive change
// detection.
func (s Schema) Descriptive() Schema {
	if len(s) == 0 {
		return nil
	}
	return s[1:]
}

// WithSCD2 returns a copy of s with the history bookkeeping columns appended.
func (s Schema) WithSCD2() Schema {
	out := make(Schema, 0, len(s)+3)
	out = append(out, s...)
	return append(out,
		Column{Name: ColEffectiveStart, Type: TypeTimestamp},
		Column{Name: ColEffectiveEnd, Type: TypeTimestamp},
		Column{Name: ColIsCurrent, Type: TypeBoolean},
	)
}

// EventSchema is the stage table schema, in staged-file column order.
func EventSchema() Schema {
	return Schema{
		{Name: "id", Type: TypeString},
		{Name: "name", Type: TypeString},
		{Name: "url", Type: TypeString},
		{Name: "date", Type: TypeDate},
		{Name: "time", Type: TypeTime},
		{Name: "timezone", Type: TypeString},
		{Name: "datetime", Type: TypeTimestamp},
		{Name: "venue", Type: TypeString},
		{Name: "city", Type: TypeString},
		{Name: "country", Type: TypeString},
		{Name: "postal_code", Type: TypeString},
		{Name: "latitude", Type: TypeFloat},
		{Name: "longitude", Type: TypeFloat},
		{Name: "address", Type: TypeString},
		{Name: "promotor_id", Type: TypeString},
	}
}
