package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocelbridge/internal/flatten"
	"ocelbridge/internal/input/ocel"
	"ocelbridge/internal/platform"
	"ocelbridge/internal/provision"
	"ocelbridge/pkg/models"
)

type memoryWriter struct {
	mu      sync.Mutex
	batches [][]*models.Progress
	closed  bool
	fail    bool
}

func (w *memoryWriter) WriteProgress(batch []*models.Progress) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("sink down")
	}
	w.batches = append(w.batches, batch)
	return nil
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memoryWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestHubBatchesAndFlushesOnClose(t *testing.T) {
	w := &memoryWriter{}
	hub := NewHub(w, 3, time.Hour)
	hub.Start(context.Background())

	for i := 0; i < 7; i++ {
		hub.Emit(models.Progress{Severity: models.SeverityInfo, Message: "step"})
	}
	hub.Emit(models.Progress{Severity: models.SeverityWarning, Message: "careful"})
	require.NoError(t, hub.Close())

	assert.True(t, w.closed)
	assert.Equal(t, 8, w.total())
	for _, b := range w.batches {
		assert.LessOrEqual(t, len(b), 3)
	}
	assert.Equal(t, map[models.Severity]int{models.SeverityInfo: 7, models.SeverityWarning: 1}, hub.Counts())

	hub.Emit(models.Progress{Message: "after close"})
	assert.Equal(t, 8, w.total())
}

func TestHubSurvivesWriterFailure(t *testing.T) {
	w := &memoryWriter{fail: true}
	hub := NewHub(w, 1, 10*time.Millisecond)
	hub.Start(context.Background())
	hub.Emit(models.Progress{Message: "lost"})
	require.NoError(t, hub.Close())
	assert.Zero(t, w.total())
}

func TestHubWithoutWriter(t *testing.T) {
	hub := NewHub(nil, 0, 0)
	hub.Emit(models.Progress{Severity: models.SeverityError, Message: "x"})
	require.NoError(t, hub.Close())
	assert.Equal(t, 1, hub.Counts()[models.SeverityError])
}

func TestPrepareReportsWarnings(t *testing.T) {
	hub := NewHub(nil, 0, 0)
	prep, err := Prepare(filepath.Join("testdata", "warehouse.json"), flatten.Options{}, hub, "run-1")
	require.NoError(t, err)

	assert.Len(t, prep.Log.Events, 4)
	assert.NotEmpty(t, prep.Warnings())
	assert.True(t, containsSubstring(prep.Warnings(), `references unknown object "ghost"`))
	assert.Equal(t, len(prep.Warnings()), hub.Counts()[models.SeverityWarning])

	load, ok := prep.Flat.EventDataset("Load")
	require.True(t, ok)
	assert.Equal(t, []string{"ID", "Time", "Dock", "Item"}, load.ColumnNames())
	require.Len(t, prep.Plan.Relationships, 1)
}

func TestPrepareMissingFile(t *testing.T) {
	_, err := Prepare(filepath.Join("testdata", "missing.json"), flatten.Options{}, nil, "")
	require.Error(t, err)
	assert.False(t, ocel.IsInputError(err))
}

func TestRunEndToEnd(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls[r.Method+" "+r.URL.Path]++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/bl/api/v1/factories":
			var req platform.FactoryCreateRequest
			json.NewDecoder(r.Body).Decode(&req)
			f := platform.Factory{FactoryID: "f-" + req.Target.EntityRef.Name, Target: req.Target, DisplayName: req.DisplayName}
			if strings.HasSuffix(req.DisplayName, " relationships") {
				f.Transformations = []platform.Transformation{{RelationshipTransformations: []platform.RelationshipTransformation{{RelationshipName: "Container"}}}}
			}
			json.NewEncoder(w).Encode(f)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/bl/api/v1/factories/"):
			var f platform.Factory
			json.NewDecoder(r.Body).Decode(&f)
			f.ValidationStatus = platform.StatusValid
			json.NewEncoder(w).Encode(f)
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(platform.EventTypePage{Content: []platform.EventTypeDefinition{{Name: "Scan"}, {Name: "Load"}}, Last: true})
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	client, err := platform.New(platform.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	hub := NewHub(nil, 0, 0)
	prov := provision.New(client, provision.Config{Concurrency: 2}, provision.WithProgress(hub))

	_, report, err := Run(context.Background(), filepath.Join("testdata", "warehouse.json"), flatten.Options{}, prov, hub)
	require.NoError(t, err)
	require.NoError(t, hub.Close())

	assert.Empty(t, report.Failures())
	assert.Equal(t, 2, report.Count(provision.PhaseObjectTypes, provision.OutcomeOK))
	assert.Equal(t, 2, report.Count(provision.PhaseEventTypes, provision.OutcomeOK))
	assert.Equal(t, 4, report.Count(provision.PhaseTransformations, provision.OutcomeOK))
	assert.Equal(t, 1, report.Count(provision.PhaseRelationships, provision.OutcomeOK))
	assert.Equal(t, 1, calls["PUT /bl/api/v1/types/events/Load"])
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
