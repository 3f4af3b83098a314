package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

type fakeFetcher struct {
	content string
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (io.ReadCloser, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

type fakeParser struct {
	result   *domain.ParseResult
	err      error
	panicMsg string
	calls    int
}

func (f *fakeParser) Parse(_ context.Context, _ io.Reader, _ bool) (*domain.ParseResult, error) {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeModelStore struct {
	mu            sync.Mutex
	statuses      []domain.ProcessingStatus
	lastErrMsg    string
	savedSchema   string
	savedCounts   *domain.ModelCounts
	saveCountsErr error
	model         *domain.Model
	getErr        error
}

func (f *fakeModelStore) Create(_ context.Context, m *domain.Model) error {
	f.model = m
	return nil
}

func (f *fakeModelStore) GetByID(_ context.Context, _ string) (*domain.Model, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.model, nil
}

func (f *fakeModelStore) UpdateStatus(_ context.Context, _ string, status domain.ProcessingStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	f.lastErrMsg = errMessage
	return nil
}

func (f *fakeModelStore) SaveCounts(_ context.Context, _ string, schema string, counts domain.ModelCounts) error {
	if f.saveCountsErr != nil {
		return f.saveCountsErr
	}
	f.savedSchema = schema
	f.savedCounts = &counts
	return nil
}

// fakeBulkWriter hands out sequential surrogate keys per GUID and lets a
// test fail one named stage.
type fakeBulkWriter struct {
	nextID    int64
	failStage string
	failErr   error
	stages    []string
}

func (f *fakeBulkWriter) assign(guids []string) map[string]int64 {
	entries := make(map[string]int64, len(guids))
	for _, guid := range guids {
		f.nextID++
		entries[guid] = f.nextID
	}
	return entries
}

func (f *fakeBulkWriter) fail(stage string) error {
	if f.failStage != stage {
		return nil
	}
	if f.failErr != nil {
		return f.failErr
	}
	return errors.New(stage + " write failed")
}

func (f *fakeBulkWriter) WriteSpatialNodes(_ context.Context, _ string, nodes []domain.ResolvedSpatialNode) (map[string]int64, error) {
	f.stages = append(f.stages, "spatial")
	if err := f.fail("spatial"); err != nil {
		return nil, err
	}
	guids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		guids = append(guids, n.GUID)
	}
	return f.assign(guids), nil
}

func (f *fakeBulkWriter) WriteMaterials(_ context.Context, _ string, materials []domain.MaterialRecord) (map[string]int64, error) {
	f.stages = append(f.stages, "materials")
	if err := f.fail("materials"); err != nil {
		return nil, err
	}
	guids := make([]string, 0, len(materials))
	for _, m := range materials {
		guids = append(guids, m.GUID)
	}
	return f.assign(guids), nil
}

func (f *fakeBulkWriter) WriteTypes(_ context.Context, _ string, types []domain.TypeRecord) (map[string]int64, error) {
	f.stages = append(f.stages, "types")
	if err := f.fail("types"); err != nil {
		return nil, err
	}
	guids := make([]string, 0, len(types))
	for _, t := range types {
		guids = append(guids, t.GUID)
	}
	return f.assign(guids), nil
}

func (f *fakeBulkWriter) WriteSystems(_ context.Context, _ string, systems []domain.SystemRecord) (map[string]int64, error) {
	f.stages = append(f.stages, "systems")
	if err := f.fail("systems"); err != nil {
		return nil, err
	}
	guids := make([]string, 0, len(systems))
	for _, s := range systems {
		guids = append(guids, s.GUID)
	}
	return f.assign(guids), nil
}

func (f *fakeBulkWriter) WriteElements(_ context.Context, _ string, elements []domain.ResolvedEntity) (map[string]int64, error) {
	f.stages = append(f.stages, "elements")
	if err := f.fail("elements"); err != nil {
		return nil, err
	}
	guids := make([]string, 0, len(elements))
	for _, e := range elements {
		guids = append(guids, e.GUID)
	}
	return f.assign(guids), nil
}

func (f *fakeBulkWriter) WriteTypeAssignments(_ context.Context, _ string, assignments []domain.ResolvedTypeAssignment) (int, error) {
	f.stages = append(f.stages, "type_assignments")
	if err := f.fail("type_assignments"); err != nil {
		return 0, err
	}
	return len(assignments), nil
}

func (f *fakeBulkWriter) WriteMaterialAssignments(_ context.Context, _ string, assignments []domain.ResolvedMaterialAssignment) (int, error) {
	f.stages = append(f.stages, "material_assignments")
	if err := f.fail("material_assignments"); err != nil {
		return 0, err
	}
	return len(assignments), nil
}

func (f *fakeBulkWriter) WriteProperties(_ context.Context, _ string, properties []domain.ResolvedProperty) (int, error) {
	f.stages = append(f.stages, "properties")
	if err := f.fail("properties"); err != nil {
		return 0, err
	}
	return len(properties), nil
}

type fakeReportStore struct {
	reports   []*domain.ProcessingReport
	createErr error
}

func (f *fakeReportStore) CreateReport(_ context.Context, report *domain.ProcessingReport) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeReportStore) GetReportByID(_ context.Context, _ string) (*domain.ProcessingReport, error) {
	if len(f.reports) == 0 {
		return nil, domain.ErrModelNotFound
	}
	return f.reports[len(f.reports)-1], nil
}

type fakeJobStore struct {
	mu         sync.Mutex
	acquireErr error
	acquired   []string
	completed  []string
	failed     []string
	cleared    []string
	getStatus  *domain.JobStatus
	getErr     error
}

func (f *fakeJobStore) Acquire(_ context.Context, modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return f.acquireErr
	}
	f.acquired = append(f.acquired, modelID)
	return nil
}

func (f *fakeJobStore) Complete(_ context.Context, modelID string, _ *domain.ProcessResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, modelID)
	return nil
}

func (f *fakeJobStore) Fail(_ context.Context, modelID string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, modelID)
	return nil
}

func (f *fakeJobStore) Get(_ context.Context, modelID string) (*domain.JobStatus, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getStatus != nil {
		return f.getStatus, nil
	}
	return nil, domain.WrapError(domain.ErrModelNotFound, "get job", errors.New(modelID))
}

func (f *fakeJobStore) Clear(_ context.Context, modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, modelID)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	payloads []domain.CallbackPayload
	targets  []string
}

func (f *fakeNotifier) Notify(_ context.Context, target string, payload domain.CallbackPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	f.payloads = append(f.payloads, payload)
	return f.err
}

type fakeScanner struct {
	stats domain.QuickStats
	err   error
}

func (f *fakeScanner) QuickScan(_ context.Context, _ io.Reader) (domain.QuickStats, error) {
	return f.stats, f.err
}

type fakeSyncProcessor struct {
	mu     sync.Mutex
	result domain.ProcessResult
	calls  []string
	done   chan struct{}
}

func (f *fakeSyncProcessor) ProcessSync(_ context.Context, modelID, _ string, _ domain.ProcessOptions) domain.ProcessResult {
	f.mu.Lock()
	f.calls = append(f.calls, modelID)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return f.result
}

func (f *fakeSyncProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeQueue struct {
	mu         sync.Mutex
	publishErr error
	published  []domain.ProcessJob
}

func (f *fakeQueue) PublishProcessJob(_ context.Context, job domain.ProcessJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, job)
	return nil
}

func (f *fakeQueue) SubscribeProcessJobs(_ context.Context, _ func(context.Context, domain.ProcessJob) error) error {
	return nil
}

type fakePurgeStore struct {
	purged []string
	err    error
	order  *[]string
}

func (f *fakePurgeStore) PurgeModelData(_ context.Context, modelID string) error {
	if f.err != nil {
		return f.err
	}
	f.purged = append(f.purged, modelID)
	if f.order != nil {
		*f.order = append(*f.order, "purge")
	}
	return nil
}

// sampleParseResult is a small but fully linked model: one site, building
// and storey, two elements on the storey plus one orphan, one material,
// one type, one system, assignments and properties.
func sampleParseResult() *domain.ParseResult {
	return &domain.ParseResult{
		Schema: "IFC4",
		Spatial: []domain.SpatialItem{
			{GUID: "storey-1", Class: domain.ClassStorey, Name: "Level 1", Level: 3, Path: "Site/Building/Level 1", ParentGUID: "building-1"},
			{GUID: "site-1", Class: "IfcSite", Name: "Site", Level: 1, Path: "Site"},
			{GUID: "building-1", Class: "IfcBuilding", Name: "Building", Level: 2, Path: "Site/Building", ParentGUID: "site-1"},
		},
		Materials: []domain.MaterialRecord{
			{GUID: "material-1", Name: "Concrete"},
		},
		Types: []domain.TypeRecord{
			{GUID: "type-1", Class: "IfcWallType", Name: "Basic Wall"},
		},
		Systems: []domain.SystemRecord{
			{GUID: "system-1", Name: "HVAC"},
		},
		Entities: []domain.EntityRecord{
			{GUID: "wall-1", Class: "IfcWall", Name: "Wall A", ParentStoreyGUID: "storey-1"},
			{GUID: "wall-2", Class: "IfcWall", Name: "Wall B", ParentStoreyGUID: "storey-1"},
			{GUID: "door-1", Class: "IfcDoor", Name: "Door", ParentStoreyGUID: "missing-storey"},
		},
		TypeAssignments: []domain.TypeAssignment{
			{EntityGUID: "wall-1", TypeGUID: "type-1"},
			{EntityGUID: "ghost", TypeGUID: "type-1"},
		},
		MaterialAssignments: []domain.MaterialAssignment{
			{EntityGUID: "wall-1", MaterialGUID: "material-1"},
		},
		Properties: []domain.PropertyRecord{
			{OwnerGUID: "wall-1", PsetName: "Pset_WallCommon", PropName: "FireRating", Value: "REI60", ValueType: "string"},
			{OwnerGUID: "nobody", PsetName: "Pset_WallCommon", PropName: "FireRating", Value: "REI60", ValueType: "string"},
		},
	}
}
