package etl

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/models"
)

// StagedFileSuffix ends every staged file name.
const StagedFileSuffix = "_events.csv"

// StagedFileLayout is the timestamp prefix of staged file names. Names sort
// in staging order and their first eight characters are the YYYYMMDD date.
const StagedFileLayout = "20060102150405"

// Stager writes staged files into a local directory.
type Stager struct {
	dir string
	now func() time.Time
}

func NewStager(dir string) *Stager {
	return &Stager{dir: dir, now: time.Now}
}

// Write serializes records with a header row into <timestamp>_events.csv
// and returns its path. The file appears under its final name only once
// complete.
func (s *Stager) Write(records []models.EventRecord) (string, error) {
	name := s.now().UTC().Format(StagedFileLayout) + StagedFileSuffix
	path := filepath.Join(s.dir, name)
	op := "stage " + name

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", etlerr.New(etlerr.KindConfiguration, op, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return "", etlerr.New(etlerr.KindConfiguration, op, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(models.EventSchema().Names()); err != nil {
		tmp.Close()
		return "", etlerr.New(etlerr.KindUnknown, op, err)
	}
	for _, r := range records {
		if err := w.Write(r.Row()); err != nil {
			tmp.Close()
			return "", etlerr.New(etlerr.KindUnknown, op, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return "", etlerr.New(etlerr.KindUnknown, op, err)
	}
	if err := tmp.Close(); err != nil {
		return "", etlerr.New(etlerr.KindUnknown, op, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", etlerr.New(etlerr.KindUnknown, op, err)
	}
	return path, nil
}

// LocalFiles returns every staged file waiting in the directory, including
// leftovers of earlier runs whose upload failed.
func (s *Stager) LocalFiles() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list staged files: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}
