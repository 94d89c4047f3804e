package etl

import (
	"github.com/BartekS5/ticketflow/pkg/models"
)

// Validator prepares flattened records for staging.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Prepare drops records without an id, which could never match a current
// historical row, and collapses duplicate ids keeping the last record seen
// at the position of the first. It returns the kept records and the number
// dropped.
func (v *Validator) Prepare(records []models.EventRecord) ([]models.EventRecord, int) {
	pos := make(map[string]int, len(records))
	out := make([]models.EventRecord, 0, len(records))
	for _, r := range records {
		key := r.Key()
		if key == "" {
			continue
		}
		if i, ok := pos[key]; ok {
			out[i] = r
			continue
		}
		pos[key] = len(out)
		out = append(out, r)
	}
	return out, len(records) - len(out)
}
