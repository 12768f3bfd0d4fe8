package provision

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ocelbridge/internal/platform"
	"ocelbridge/pkg/models"
)

// mockPlatform is an in-memory platform behind an httptest server.
type mockPlatform struct {
	mu sync.Mutex

	existing         map[string]bool
	failTypes        map[string]int
	rejectFactory    map[string]bool
	validationStatus string
	delay            time.Duration

	eventDefs       []platform.EventTypeDefinition
	createdTypes    []string
	factories       map[string]platform.Factory
	factoryUpdates  []platform.Factory
	eventUpdates    map[string]platform.EventTypeUpdate
	listCalls       int
	nextID          int
	inFlight        atomic.Int64
	maxFactoryCalls atomic.Int64
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		existing:         map[string]bool{},
		failTypes:        map[string]int{},
		rejectFactory:    map[string]bool{},
		validationStatus: platform.StatusValid,
		factories:        map[string]platform.Factory{},
		eventUpdates:     map[string]platform.EventTypeUpdate{},
	}
}

func (m *mockPlatform) client(t *testing.T) *platform.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(srv.Close)
	c, err := platform.New(platform.Config{BaseURL: srv.URL, PageSize: 1})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (m *mockPlatform) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && (path == "/bl/api/v1/types/objects" || path == "/bl/api/v1/types/events"):
		var s platform.TypeSchema
		json.NewDecoder(r.Body).Decode(&s)
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.existing[s.Name] {
			writeJSON(w, 400, map[string]any{"errors": []map[string]string{{"errorCode": "ALREADY_EXISTS"}}})
			return
		}
		if status := m.failTypes[s.Name]; status != 0 {
			writeJSON(w, status, map[string]string{"message": "boom"})
			return
		}
		m.createdTypes = append(m.createdTypes, s.Name)
		writeJSON(w, 201, s)

	case r.Method == http.MethodGet && path == "/bl/api/v1/types/events":
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listCalls++
		var page int
		fmt.Sscan(r.URL.Query().Get("page"), &page)
		p := platform.EventTypePage{Number: page, Last: page >= len(m.eventDefs)-1}
		if page < len(m.eventDefs) {
			p.Content = []platform.EventTypeDefinition{m.eventDefs[page]}
		}
		writeJSON(w, 200, p)

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/bl/api/v1/types/events/"):
		var upd platform.EventTypeUpdate
		json.NewDecoder(r.Body).Decode(&upd)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.eventUpdates[strings.TrimPrefix(path, "/bl/api/v1/types/events/")] = upd
		w.WriteHeader(200)

	case r.Method == http.MethodPost && path == "/bl/api/v1/factories":
		n := m.inFlight.Add(1)
		defer m.inFlight.Add(-1)
		for {
			top := m.maxFactoryCalls.Load()
			if n <= top || m.maxFactoryCalls.CompareAndSwap(top, n) {
				break
			}
		}
		time.Sleep(m.delay)

		var req platform.FactoryCreateRequest
		json.NewDecoder(r.Body).Decode(&req)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.nextID++
		f := platform.Factory{
			FactoryID:   fmt.Sprintf("f-%d", m.nextID),
			Namespace:   req.Namespace,
			DisplayName: req.DisplayName,
			Target:      req.Target,
			Draft:       true,
		}
		if upd, ok := m.eventUpdates[req.Target.EntityRef.Name]; ok && strings.HasSuffix(req.DisplayName, " relationships") {
			var slots []platform.RelationshipTransformation
			for _, rel := range upd.Relationships {
				slots = append(slots, platform.RelationshipTransformation{RelationshipName: rel.Name})
			}
			f.Transformations = []platform.Transformation{{RelationshipTransformations: slots}}
		}
		m.factories[f.FactoryID] = f
		writeJSON(w, 200, f)

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/bl/api/v1/factories/"):
		var f platform.Factory
		json.NewDecoder(r.Body).Decode(&f)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.factoryUpdates = append(m.factoryUpdates, f)
		if m.rejectFactory[f.Target.EntityRef.Name] {
			writeJSON(w, 400, map[string]string{"message": "SQL references unknown column"})
			return
		}
		f.ValidationStatus = m.validationStatus
		writeJSON(w, 200, f)

	default:
		http.NotFound(w, r)
	}
}

func (m *mockPlatform) updatesFor(target string) []platform.Factory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []platform.Factory
	for _, f := range m.factoryUpdates {
		if f.Target.EntityRef.Name == target {
			out = append(out, f)
		}
	}
	return out
}

// progressLog collects progress messages.
type progressLog struct {
	mu   sync.Mutex
	msgs []models.Progress
}

func (l *progressLog) Emit(p models.Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, p)
}

func (l *progressLog) messages(sev models.Severity) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, p := range l.msgs {
		if p.Severity == sev {
			out = append(out, p.Message)
		}
	}
	return out
}
