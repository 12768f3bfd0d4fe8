package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocelbridge/internal/flatten"
	"ocelbridge/internal/platform"
	"ocelbridge/internal/sqlchunk"
	"ocelbridge/pkg/models"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func warehouseLog(objectTypes []models.TypeDecl) *models.EventLog {
	objects := []models.Object{
		{ID: "c1", Type: "Container", Attributes: models.Attributes{{Name: "Weight", Value: int64(10)}}},
		{ID: "c2", Type: "Container", Attributes: models.Attributes{{Name: "Weight", Value: int64(20)}}},
		{ID: "c3", Type: "Container", Attributes: models.Attributes{{Name: "Weight", Value: nil}}},
		{ID: "i1", Type: "Item"},
		{ID: "i2", Type: "Item"},
	}
	link := func(ids ...string) []models.Link {
		var out []models.Link
		for _, id := range ids {
			out = append(out, models.Link{ObjectID: id})
		}
		return out
	}
	events := []models.Event{
		{ID: "s1", Type: "Scan", Time: t0, Links: link("i1")},
		{ID: "s2", Type: "Scan", Time: t0.Add(time.Minute), Links: link("i2")},
		{ID: "l1", Type: "Load", Time: t0.Add(2 * time.Minute), Links: link("c1", "i1")},
		{ID: "l2", Type: "Load", Time: t0.Add(3 * time.Minute), Links: link("c2", "c3", "i2")},
	}
	return models.NewEventLog(events, objects, nil, objectTypes, nil)
}

func warehousePlan(t *testing.T) *Plan {
	t.Helper()
	log := warehouseLog(nil)
	return BuildPlan(log, flatten.Flatten(log, flatten.Options{}))
}

func findResult(t *testing.T, report *Report, phase, unit string) UnitResult {
	t.Helper()
	for _, r := range report.Results {
		if r.Phase == phase && r.Unit == unit {
			return r
		}
	}
	t.Fatalf("no result for %s/%s", phase, unit)
	return UnitResult{}
}

func TestBuildPlanSchemaFields(t *testing.T) {
	decls := []models.TypeDecl{
		{Name: "Container", Attributes: []models.AttributeDecl{
			{Name: "Weight", Type: models.TypeInteger},
			{Name: "volume m3", Type: models.TypeFloat},
		}},
		{Name: "Truck", Attributes: []models.AttributeDecl{{Name: "ID", Type: models.TypeString}}},
	}
	log := warehouseLog(decls)
	plan := BuildPlan(log, flatten.Flatten(log, flatten.Options{}))

	require.Len(t, plan.ObjectTypes, 3)
	container := plan.ObjectTypes[0]
	assert.Equal(t, []platform.Field{
		{Name: "Weight", Namespace: "custom", DataType: "CT_LONG"},
		{Name: "VolumeM3", Namespace: "custom", DataType: "CT_DOUBLE"},
		{Name: "ID", Namespace: "custom", DataType: "CT_UTF8_STRING"},
	}, container.Fields)
	assert.Len(t, container.Chunks, 1)

	truck := plan.ObjectTypes[2]
	assert.Equal(t, "Truck", truck.Name)
	assert.Empty(t, truck.Chunks)
	assert.Equal(t, []platform.Field{{Name: "ID", Namespace: "custom", DataType: "CT_UTF8_STRING"}}, truck.Fields)

	require.Len(t, plan.EventTypes, 2)
	scan := plan.EventTypes[0]
	assert.Equal(t, []platform.Field{
		{Name: "Item", Namespace: "custom", DataType: "CT_UTF8_STRING"},
		{Name: "ID", Namespace: "custom", DataType: "CT_UTF8_STRING"},
		{Name: "Time", Namespace: "custom", DataType: "CT_INSTANT"},
	}, scan.Fields)

	require.Len(t, plan.Relationships, 1)
	assert.Equal(t, "Load", plan.Relationships[0].EventType)
	assert.Equal(t, "Container", plan.Relationships[0].Targets[0].ObjectType)
	assert.Equal(t, 4, plan.Chunks())
}

func TestObjectTimeAttributeIsASchemaField(t *testing.T) {
	objects := []models.Object{
		{ID: "i1", Type: "Item", Attributes: models.Attributes{{Name: "time", Value: t0}, {Name: "weight", Value: int64(3)}}},
		{ID: "i2", Type: "Item", Attributes: models.Attributes{{Name: "time", Value: t0.Add(time.Hour)}, {Name: "weight", Value: int64(4)}}},
	}
	log := models.NewEventLog(nil, objects, nil, nil, nil)
	plan := BuildPlan(log, flatten.Flatten(log, flatten.Options{}))

	require.Len(t, plan.ObjectTypes, 1)
	item := plan.ObjectTypes[0]
	require.Len(t, item.Chunks, 1)

	var names []string
	for _, f := range item.Fields {
		names = append(names, f.Name)
	}
	props := PropertyNames(item.Kind, item.Chunks[0].Columns)
	assert.ElementsMatch(t, props, names)
	assert.Contains(t, item.Fields, platform.Field{Name: "Time", Namespace: "custom", DataType: "CT_INSTANT"})
}

func TestFoldColumnIgnoresDeclaredAttributeOfSameName(t *testing.T) {
	objects := []models.Object{{ID: "c1", Type: "Container"}, {ID: "c2", Type: "Container"}}
	events := []models.Event{
		{ID: "l1", Type: "Load", Time: t0, Links: []models.Link{{ObjectID: "c1"}}},
		{ID: "l2", Type: "Load", Time: t0.Add(time.Minute), Links: []models.Link{{ObjectID: "c2"}}},
	}
	eventTypes := []models.TypeDecl{{Name: "Load", Attributes: []models.AttributeDecl{{Name: "Container", Type: models.TypeInteger}}}}
	log := models.NewEventLog(events, objects, nil, nil, eventTypes)
	plan := BuildPlan(log, flatten.Flatten(log, flatten.Options{}))

	require.Len(t, plan.EventTypes, 1)
	assert.Equal(t, []platform.Field{
		{Name: "Container2", Namespace: "custom", DataType: "CT_LONG"},
		{Name: "Container", Namespace: "custom", DataType: "CT_UTF8_STRING"},
		{Name: "ID", Namespace: "custom", DataType: "CT_UTF8_STRING"},
		{Name: "Time", Namespace: "custom", DataType: "CT_INSTANT"},
	}, plan.EventTypes[0].Fields)
}

func TestSchemaColorOnlyOnObjects(t *testing.T) {
	p := New(nil, Config{})
	obj := p.Schema(TypePlan{Name: "Box", Kind: models.DatasetObject})
	evt := p.Schema(TypePlan{Name: "Pack", Kind: models.DatasetEvent})

	assert.Equal(t, "#4608B3", obj.Color)
	assert.Empty(t, evt.Color)
	require.Len(t, obj.Categories, 1)
	assert.Equal(t, "Processes", obj.Categories[0].Metadata.Name)
	assert.Equal(t, "celonis", obj.Categories[0].Metadata.Namespace)
	assert.Equal(t, "curriculum", obj.Categories[0].Values[0].Name)
}

func TestPropertyNames(t *testing.T) {
	assert.Equal(t, []string{"ID", "Time", "Weight", "Item"},
		PropertyNames(models.DatasetEvent, []string{"ID", "Time", "Weight", "Item", "Weight"}))
	assert.Equal(t, []string{"ID", "Weight"}, PropertyNames(models.DatasetObject, []string{"Weight", "ID"}))
}

func TestRunExistingTypeOnlyWarns(t *testing.T) {
	m := newMockPlatform()
	m.existing["Item"] = true
	m.eventDefs = []platform.EventTypeDefinition{{Name: "Scan"}, {ID: "e-2", Name: "Load", Namespace: "custom"}}
	progress := &progressLog{}

	report, err := New(m.client(t), Config{}, WithProgress(progress)).Run(context.Background(), warehousePlan(t))
	require.NoError(t, err)

	assert.Equal(t, OutcomeExisting, findResult(t, report, PhaseObjectTypes, "Item").Outcome)
	assert.Equal(t, OutcomeOK, findResult(t, report, PhaseObjectTypes, "Container").Outcome)
	assert.Contains(t, progress.messages(models.SeverityWarning), "object type Item already exists; skipping")
	assert.Equal(t, []string{"Container"}, m.createdTypes[:1])
	assert.Equal(t, 4, report.Count(PhaseTransformations, OutcomeOK))
	assert.Equal(t, OutcomeOK, findResult(t, report, PhaseRelationships, "Load").Outcome)
	assert.Empty(t, report.Failures())
}

func TestRunTypeFailureIsIsolated(t *testing.T) {
	m := newMockPlatform()
	m.failTypes["Container"] = 500
	m.eventDefs = []platform.EventTypeDefinition{{Name: "Load"}}

	report, err := New(m.client(t), Config{}).Run(context.Background(), warehousePlan(t))
	require.NoError(t, err)

	failed := findResult(t, report, PhaseObjectTypes, "Container")
	assert.Equal(t, OutcomeFailed, failed.Outcome)
	assert.ErrorIs(t, failed.Err, ErrRemoteTransport)
	assert.Equal(t, OutcomeOK, findResult(t, report, PhaseObjectTypes, "Item").Outcome)
	assert.Equal(t, OutcomeSkipped, findResult(t, report, PhaseTransformations, "Container#1").Outcome)
	assert.Equal(t, 3, report.Count(PhaseTransformations, OutcomeOK))
}

func TestRunValidationRejectionAbandonsChunk(t *testing.T) {
	m := newMockPlatform()
	m.rejectFactory["Container"] = true
	progress := &progressLog{}

	report, err := New(m.client(t), Config{}, WithProgress(progress)).Run(context.Background(), warehousePlan(t))
	require.NoError(t, err)

	res := findResult(t, report, PhaseTransformations, "Container#1")
	assert.Equal(t, OutcomeAbandoned, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrRemoteValidation)
	assert.Equal(t, 3, report.Count(PhaseTransformations, OutcomeOK))
	assert.NotEmpty(t, progress.messages(models.SeverityError))
}

func TestRunChunkFactoryPayload(t *testing.T) {
	m := newMockPlatform()

	_, err := New(m.client(t), Config{}).Run(context.Background(), warehousePlan(t))
	require.NoError(t, err)

	updates := m.updatesFor("Scan")
	require.Len(t, updates, 1)
	f := updates[0]
	assert.False(t, f.Draft)
	assert.True(t, f.Disabled)
	assert.Equal(t, "VALIDATE", f.SaveMode)
	assert.Equal(t, "EVENT", f.Target.Kind)
	require.Len(t, f.Transformations, 1)
	tr := f.Transformations[0]
	assert.Equal(t, []string{"ID", "Time", "Item"}, tr.PropertyNames)
	require.Len(t, tr.PropertySQLFactoryDatasets, 1)
	ds := tr.PropertySQLFactoryDatasets[0]
	assert.Equal(t, "SQL_FACTORY_DATA_SET", ds.Type)
	assert.NotEmpty(t, ds.ID)
	assert.Contains(t, ds.SQL, `'i1' AS "Item"`)
}

func TestRunRelationshipsAddOnly(t *testing.T) {
	m := newMockPlatform()
	m.eventDefs = []platform.EventTypeDefinition{{
		ID:            "e-1",
		Name:          "Load",
		Namespace:     "custom",
		Relationships: []platform.RelationshipDeclaration{platform.HasMany("Truck")},
	}}
	junction := &models.Dataset{
		Name:    "Load_Container_relations",
		Columns: []models.Column{{Name: "ID"}, {Name: "Container"}},
		Rows:    [][]any{{"l2", "c2"}, {"l2", "c3"}},
	}
	plan := &Plan{Relationships: []RelationshipPlan{{
		EventType: "load",
		Targets: []RelationshipTarget{
			{ObjectType: "Container", Chunks: sqlchunk.Encode(junction)},
			{ObjectType: "Truck", Chunks: sqlchunk.Encode(junction)},
		},
	}}}

	report, err := New(m.client(t), Config{}).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, findResult(t, report, PhaseRelationships, "load").Outcome)

	upd, ok := m.eventUpdates["Load"]
	require.True(t, ok, "definition is matched case-insensitively and updated under its remote name")
	require.Len(t, upd.Relationships, 2)
	assert.Equal(t, "Truck", upd.Relationships[0].Name)
	assert.Equal(t, platform.HasMany("Container"), upd.Relationships[1])

	factories := m.updatesFor("Load")
	require.Len(t, factories, 1)
	f := factories[0]
	assert.Equal(t, "load relationships", f.DisplayName)
	slots := f.Transformations[0].RelationshipTransformations
	require.Len(t, slots, 2)
	assert.Equal(t, "Truck", slots[0].RelationshipName)
	assert.Empty(t, slots[0].SQLFactoryDatasets)
	assert.Equal(t, "Container", slots[1].RelationshipName)
	require.Len(t, slots[1].SQLFactoryDatasets, 1)
	assert.Contains(t, slots[1].SQLFactoryDatasets[0].SQL, `'c3' AS "Container"`)
}

func TestRunRelationshipsAlreadyPresent(t *testing.T) {
	m := newMockPlatform()
	m.eventDefs = []platform.EventTypeDefinition{{
		Name:          "Load",
		Relationships: []platform.RelationshipDeclaration{platform.HasMany("Container")},
	}}

	report, err := New(m.client(t), Config{}).Run(context.Background(), warehousePlan(t))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, findResult(t, report, PhaseRelationships, "Load").Outcome)
	assert.Empty(t, m.eventUpdates)
	assert.Len(t, m.updatesFor("Load"), 1, "only the chunk factory")
}

func TestRunRelationshipFactoryNotValid(t *testing.T) {
	m := newMockPlatform()
	m.validationStatus = "INVALID"
	m.eventDefs = []platform.EventTypeDefinition{{Name: "Load"}}
	progress := &progressLog{}

	report, err := New(m.client(t), Config{}, WithProgress(progress)).Run(context.Background(), warehousePlan(t))
	require.NoError(t, err)

	res := findResult(t, report, PhaseRelationships, "Load")
	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Contains(t, progress.messages(models.SeverityError), `relationship factory for Load has validation status "INVALID"`)
}

func TestRunUnknownEventDefinition(t *testing.T) {
	m := newMockPlatform()

	report, err := New(m.client(t), Config{}).Run(context.Background(), warehousePlan(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, findResult(t, report, PhaseRelationships, "Load").Outcome)
	assert.Equal(t, 1, m.listCalls)
}

type gaugeRecorder struct {
	peak atomic.Int64
	done atomic.Int64
}

func (r *gaugeRecorder) UnitFinished(string, Outcome) { r.done.Add(1) }

func (r *gaugeRecorder) GateInFlight(n int64) {
	for {
		top := r.peak.Load()
		if n <= top || r.peak.CompareAndSwap(top, n) {
			return
		}
	}
}

func TestGateBoundsConcurrentFactoryCreates(t *testing.T) {
	wide := &models.Dataset{Name: "Wide"}
	for c := 0; c < 8; c++ {
		wide.Columns = append(wide.Columns, models.Column{Name: fmt.Sprintf("C%d", c)})
	}
	for r := 0; r < 400; r++ {
		row := make([]any, 8)
		for c := range row {
			row[c] = int64(r*8 + c)
		}
		wide.Rows = append(wide.Rows, row)
	}
	chunks := sqlchunk.Encode(wide)
	require.Len(t, chunks, 20)

	m := newMockPlatform()
	m.delay = 30 * time.Millisecond
	rec := &gaugeRecorder{}
	plan := &Plan{ObjectTypes: []TypePlan{{
		Name:   "Wide",
		Kind:   models.DatasetObject,
		Fields: []platform.Field{{Name: "ID", DataType: platform.DataTypeString}},
		Chunks: chunks,
	}}}

	report, err := New(m.client(t), Config{Concurrency: 8}, WithRecorder(rec)).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 20, report.Count(PhaseTransformations, OutcomeOK))
	assert.LessOrEqual(t, m.maxFactoryCalls.Load(), int64(8))
	assert.GreaterOrEqual(t, m.maxFactoryCalls.Load(), int64(2))
	assert.LessOrEqual(t, rec.peak.Load(), int64(8))
	assert.Equal(t, int64(21), rec.done.Load())
}

type panickyPlatform struct{}

func (panickyPlatform) CreateObjectType(context.Context, platform.TypeSchema) error { return nil }
func (panickyPlatform) CreateEventType(context.Context, platform.TypeSchema) error  { return nil }

func (panickyPlatform) CreateFactory(_ context.Context, req platform.FactoryCreateRequest) (*platform.Factory, error) {
	if req.Target.EntityRef.Name == "Boom" {
		panic("nil map write")
	}
	return &platform.Factory{FactoryID: "f-1", Target: req.Target}, nil
}

func (panickyPlatform) UpdateFactory(_ context.Context, f platform.Factory) (*platform.Factory, error) {
	f.ValidationStatus = platform.StatusValid
	return &f, nil
}

func (panickyPlatform) ListEventTypes(context.Context) ([]platform.EventTypeDefinition, error) {
	return nil, nil
}

func (panickyPlatform) UpdateEventType(context.Context, string, platform.EventTypeUpdate) error {
	return nil
}

func TestRunUnexpectedPanicIsRunError(t *testing.T) {
	one := func(name string) TypePlan {
		ds := &models.Dataset{Name: name, Columns: []models.Column{{Name: "ID"}}, Rows: [][]any{{"x"}}}
		return TypePlan{Name: name, Kind: models.DatasetObject, Chunks: sqlchunk.Encode(ds)}
	}
	plan := &Plan{ObjectTypes: []TypePlan{one("Boom"), one("Fine")}}

	report, err := New(panickyPlatform{}, Config{}).Run(context.Background(), plan)
	require.Error(t, err)

	var ue *UnexpectedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "Boom#1", ue.Unit)
	assert.Equal(t, OutcomeOK, findResult(t, report, PhaseTransformations, "Fine#1").Outcome)
}

func TestGateAcquireHonoursContext(t *testing.T) {
	g := NewGate(1)
	require.NoError(t, g.Acquire(context.Background()))
	assert.Equal(t, int64(1), g.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Acquire(ctx), context.DeadlineExceeded)

	g.Release()
	assert.Equal(t, int64(0), g.InFlight())
	assert.Equal(t, int64(1), g.Capacity())
}

func TestGateReportsInFlightInOrder(t *testing.T) {
	g := NewGate(4)
	var reported []int64
	g.onChange = func(n int64) { reported = append(reported, n) }

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background()); err != nil {
				return
			}
			g.Release()
		}()
	}
	wg.Wait()

	require.Len(t, reported, 128)
	prev := int64(0)
	for _, n := range reported {
		assert.LessOrEqual(t, n, g.Capacity())
		assert.True(t, n == prev+1 || n == prev-1, "report %d follows %d", n, prev)
		prev = n
	}
	assert.Equal(t, int64(0), prev)
}
