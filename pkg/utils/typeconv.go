package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/ticketflow/pkg/models"
)

// Layouts accepted for DATE and TIME cells.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// ParseCell converts a staged-file cell into a typed value for the column.
// An empty cell is null and yields nil.
func ParseCell(cell string, typ models.ColumnType) (any, error) {
	if cell == "" {
		return nil, nil
	}
	switch typ {
	case models.TypeString:
		return cell, nil
	case models.TypeFloat:
		return strconv.ParseFloat(strings.TrimSpace(cell), 64)
	case models.TypeBoolean:
		return strconv.ParseBool(strings.TrimSpace(cell))
	case models.TypeDate:
		return time.Parse(DateLayout, cell)
	case models.TypeTime:
		t, err := time.Parse(TimeLayout, cell)
		if err != nil {
			t, err = time.Parse("15:04", cell)
		}
		return t, err
	case models.TypeTimestamp:
		return ConvertDateTime(cell)
	default:
		return nil, fmt.Errorf("unsupported column type %q", typ)
	}
}

// ConvertDateTime parses a timestamp in any of the layouts the event API or
// the warehouse exports use.
func ConvertDateTime(v string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05 MST",
		"2006-01-02T15:04:05",
		DateLayout,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime: %s", v)
}

// ConvertToString renders a decoded JSON value as a string. Nil stays nil.
func ConvertToString(val any) *string {
	var s string
	switch v := val.(type) {
	case nil:
		return nil
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	case map[string]any, []any:
		return nil
	default:
		s = fmt.Sprintf("%v", v)
	}
	return &s
}

// ConvertToFloat reads a decoded JSON number or numeric string. Anything
// else, including unparsable strings, is nil.
func ConvertToFloat(val any) *float64 {
	var f float64
	switch v := val.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}
