package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
)

// memoryEnv points the process at in-memory backends and the given API.
func memoryEnv(t *testing.T, apiURL string) string {
	t.Helper()
	dir := t.TempDir()
	for k, v := range map[string]string{
		"TICKETMASTER_API_KEY":    "test-key",
		"TICKETMASTER_BASE_URL":   apiURL,
		"GCS_BUCKET_NAME":         "events",
		"BQ_DATASET_NAME":         "ticketflow",
		"BLOB_DRIVER":             "memory",
		"WAREHOUSE_DRIVER":        "memory",
		"STAGING_DIR":             dir,
		"UPLOAD_RETRY_DELAY":      "0",
		"REDIS_ADDR":              "",
		"MONGO_CONNECTION_STRING": "",
		"GCP_PROJECT_ID":          "",
	} {
		t.Setenv(k, v)
	}
	return dir
}

type pagedAPI struct {
	mu      sync.Mutex
	queries []map[string]string
}

func (p *pagedAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	p.mu.Lock()
	p.queries = append(p.queries, q)
	p.mu.Unlock()

	body := map[string]any{}
	if q["page"] == "0" {
		body["_embedded"] = map[string]any{"events": []map[string]any{
			{"id": "e1", "name": "Concert"},
			{"id": "e2", "name": "Show"},
		}}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestNewApp_MissingAPIKey(t *testing.T) {
	memoryEnv(t, "http://localhost")
	t.Setenv("TICKETMASTER_API_KEY", "")

	_, err := newApp(context.Background(), &Options{})
	require.Error(t, err)
	assert.True(t, etlerr.Is(err, etlerr.KindConfiguration))
}

func TestNewApp_BadFiltersFile(t *testing.T) {
	memoryEnv(t, "http://localhost")
	path := filepath.Join(t.TempDir(), "filters.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"countryCode": ["NL"]}`), 0o644))

	_, err := newApp(context.Background(), &Options{FiltersFile: path})
	require.Error(t, err)
	assert.True(t, etlerr.Is(err, etlerr.KindConfiguration))
}

func TestRunCommand_MemoryBackends(t *testing.T) {
	api := &pagedAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()
	dir := memoryEnv(t, srv.URL)

	filters := filepath.Join(t.TempDir(), "filters.json")
	require.NoError(t, os.WriteFile(filters, []byte(`{"countryCode": "BE", "classificationName": "music"}`), 0o644))

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"run", "--filters", filters})
	require.NoError(t, cmd.Execute())

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.queries, 2)
	assert.Equal(t, "BE", api.queries[0]["countryCode"])
	assert.Equal(t, "music", api.queries[0]["classificationName"])
	assert.Equal(t, "test-key", api.queries[0]["apikey"])
	_, hasEnd := api.queries[0]["endDateTime"]
	assert.False(t, hasEnd, "filter file replaces the defaults")

	// The staged file was uploaded and removed locally.
	left, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestProvisionCommand_MemoryBackends(t *testing.T) {
	memoryEnv(t, "http://localhost")

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"provision"})
	assert.NoError(t, cmd.Execute())
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "extract", "upload", "load", "serve", "schedule", "provision", "runs"})
}
