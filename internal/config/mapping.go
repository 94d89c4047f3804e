package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
)

// LoadFilterParams reads a JSON object of event API query parameters from
// filePath. Numbers and booleans are rendered as query strings. The result
// replaces the default filters entirely.
func LoadFilterParams(filePath string) (map[string]string, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, etlerr.New(etlerr.KindConfiguration, "load filters", fmt.Errorf("failed to read filter file '%s': %w", filePath, err))
	}

	var raw map[string]any
	if err := json.Unmarshal(bytes, &raw); err != nil {
		return nil, etlerr.New(etlerr.KindConfiguration, "load filters", fmt.Errorf("failed to parse filter file '%s': %w", filePath, err))
	}

	params := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			params[k] = val
		case float64:
			params[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			params[k] = strconv.FormatBool(val)
		default:
			return nil, etlerr.Errorf(etlerr.KindConfiguration, "load filters", "filter %q must be a string, number or boolean", k)
		}
	}
	return params, nil
}
