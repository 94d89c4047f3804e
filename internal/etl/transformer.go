package etl

import (
	"fmt"
	"sync"

	"github.com/jmespath/go-jmespath"

	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/models"
	"github.com/BartekS5/ticketflow/pkg/utils"
)

// fieldPath maps one flat column onto its location in the nested event
// document. Only the first venue is read.
type fieldPath struct {
	column string
	path   string
}

var eventPaths = []fieldPath{
	{"id", "id"},
	{"name", "name"},
	{"url", "url"},
	{"date", "dates.start.localDate"},
	{"time", "dates.start.localTime"},
	{"timezone", "dates.timeZone"},
	{"datetime", "dates.start.dateTime"},
	{"venue", "_embedded.venues[0].name"},
	{"city", "_embedded.venues[0].city.name"},
	{"country", "_embedded.venues[0].country.name"},
	{"postal_code", "_embedded.venues[0].postalCode"},
	{"latitude", "_embedded.venues[0].location.latitude"},
	{"longitude", "_embedded.venues[0].location.longitude"},
	{"address", "_embedded.venues[0].address.line1"},
	{"promotor_id", "promoter.name"},
}

// Transformer flattens nested event documents into EventRecords.
type Transformer struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

func NewTransformer() *Transformer {
	return &Transformer{cache: make(map[string]*jmespath.JMESPath)}
}

// ParseEvents flattens every raw event. Missing or mistyped nested fields
// become nil; it never fails.
func (t *Transformer) ParseEvents(raw []map[string]any) []models.EventRecord {
	out := make([]models.EventRecord, 0, len(raw))
	for _, event := range raw {
		out = append(out, t.ParseEvent(event))
	}
	return out
}

func (t *Transformer) ParseEvent(event map[string]any) models.EventRecord {
	v := make(map[string]any, len(eventPaths))
	for _, fp := range eventPaths {
		v[fp.column] = t.lookup(fp.path, event)
	}
	return models.EventRecord{
		ID:         utils.ConvertToString(v["id"]),
		Name:       utils.ConvertToString(v["name"]),
		URL:        utils.ConvertToString(v["url"]),
		Date:       utils.ConvertToString(v["date"]),
		Time:       utils.ConvertToString(v["time"]),
		Timezone:   utils.ConvertToString(v["timezone"]),
		Datetime:   utils.ConvertToString(v["datetime"]),
		Venue:      utils.ConvertToString(v["venue"]),
		City:       utils.ConvertToString(v["city"]),
		Country:    utils.ConvertToString(v["country"]),
		PostalCode: utils.ConvertToString(v["postal_code"]),
		Latitude:   utils.ConvertToFloat(v["latitude"]),
		Longitude:  utils.ConvertToFloat(v["longitude"]),
		Address:    utils.ConvertToString(v["address"]),
		PromotorID: utils.ConvertToString(v["promotor_id"]),
	}
}

func (t *Transformer) lookup(path string, data any) any {
	compiled, err := t.getOrCompile(path)
	if err != nil {
		logger.Errorf("invalid event path %q: %v", path, err)
		return nil
	}
	result, err := compiled.Search(data)
	if err != nil {
		return nil
	}
	return result
}

func (t *Transformer) getOrCompile(path string) (*jmespath.JMESPath, error) {
	t.mu.RLock()
	compiled, ok := t.cache[path]
	t.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if compiled, ok := t.cache[path]; ok {
		return compiled, nil
	}
	compiled, err := jmespath.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", path, err)
	}
	t.cache[path] = compiled
	return compiled, nil
}
