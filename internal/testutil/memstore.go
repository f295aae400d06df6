package testutil

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
)

// MemoryJobStore is an in-memory JobRepository with the same guarded-write semantics as the
// Postgres store. Every method holds one mutex, so increments are atomic.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	now  func() time.Time

	// IncrementHook, when set, runs inside IncrementAndReturn before the counters change.
	IncrementHook func(jobID string)
	// UpdateStatusErr, when set, is consulted before each UpdateStatus; a non-nil result is returned.
	UpdateStatusErr func(p core.UpdateStatusParams) error
	updateCalls     int
}

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*model.Job), now: time.Now}
}

// SetClock replaces the store's clock.
func (s *MemoryJobStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Put stores a copy of job, replacing any existing row.
func (s *MemoryJobStore) Put(job *model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
}

// UpdateStatusCalls reports how many UpdateStatus calls reached the store.
func (s *MemoryJobStore) UpdateStatusCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCalls
}

// Create implements core.JobRepository.
func (s *MemoryJobStore) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid create job request")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := s.jobs[id]; ok {
		return nil, apperrors.Conflictf("job %s already exists", id)
	}
	total := model.UnknownTotal
	if req.Total != nil {
		total = *req.Total
	}
	now := s.now().UTC()
	job := &model.Job{
		ID:          id,
		OwnerID:     req.OwnerID,
		Status:      model.JobStatusWaiting,
		Total:       total,
		Config:      req.Config,
		RuntimeData: json.RawMessage(`{}`),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[id] = job
	return job.Clone(), nil
}

// IncrementAndReturn implements core.ProgressStore.
func (s *MemoryJobStore) IncrementAndReturn(
	_ context.Context,
	jobID string,
	deltas model.ProgressDeltas,
) (model.ProgressSnapshot, error) {
	if err := deltas.Validate(); err != nil {
		return model.ProgressSnapshot{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid progress deltas")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return model.ProgressSnapshot{}, apperrors.NotFound("job not found")
	}
	if s.IncrementHook != nil {
		s.IncrementHook(jobID)
	}
	job.Successful += deltas.Successful
	job.Failed += deltas.Failed
	job.UpdatedAt = s.now().UTC()
	return job.Progress(), nil
}

// GetByID implements core.ProgressStore.
func (s *MemoryJobStore) GetByID(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, apperrors.NotFound("job not found")
	}
	return job.Clone(), nil
}

// UpdateStatus implements core.ProgressStore.
func (s *MemoryJobStore) UpdateStatus(_ context.Context, p core.UpdateStatusParams) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.UpdateStatusErr != nil {
		if err := s.UpdateStatusErr(p); err != nil {
			return nil, err
		}
	}
	job, ok := s.jobs[p.JobID]
	if !ok {
		return nil, apperrors.NotFound("job not found")
	}
	if job.Status != p.ExpectedStatus {
		return nil, apperrors.Conflictf("job %s is %s, expected %s", p.JobID, job.Status, p.ExpectedStatus)
	}
	if p.Total != nil && !p.AllowCounterReset && job.Successful+job.Failed > 0 {
		return nil, apperrors.Conflictf("job %s already counted %d units", p.JobID, job.Successful+job.Failed)
	}

	job.Status = p.Status
	if job.StartedAt == nil && p.StartedAt != nil {
		t := p.StartedAt.UTC()
		job.StartedAt = &t
	}
	if job.FinishedAt == nil && p.FinishedAt != nil {
		t := p.FinishedAt.UTC()
		job.FinishedAt = &t
	}
	if p.Reason != nil {
		r := strings.TrimSpace(*p.Reason)
		job.Reason = &r
	}
	if p.Total != nil {
		job.Total = *p.Total
		job.Successful, job.Failed = 0, 0
	}
	job.UpdatedAt = p.UpdatedAt.UTC()
	if p.UpdatedAt.IsZero() {
		job.UpdatedAt = s.now().UTC()
	}
	return job.Clone(), nil
}

// UpdateRuntimeData implements core.JobRepository.
func (s *MemoryJobStore) UpdateRuntimeData(_ context.Context, p core.UpdateRuntimeDataParams) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[p.JobID]
	if !ok {
		return nil, apperrors.NotFound("job not found")
	}
	if job.Version != p.ExpectedVersion {
		return nil, apperrors.Conflictf("job %s is at version %d, expected %d", p.JobID, job.Version, p.ExpectedVersion)
	}
	job.RuntimeData = append(json.RawMessage(nil), p.Data...)
	job.Version++
	job.UpdatedAt = s.now().UTC()
	return job.Clone(), nil
}

// ListOpen implements core.ReconcilerRepository.
func (s *MemoryJobStore) ListOpen(_ context.Context, p core.ListOpenParams) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Job
	for _, job := range s.jobs {
		if job.Status.Terminal() {
			continue
		}
		if !p.UpdatedBefore.IsZero() && !job.UpdatedAt.Before(p.UpdatedBefore) {
			continue
		}
		if p.AfterID != "" && job.ID <= p.AfterID {
			continue
		}
		out = append(out, job.Clone())
	}
	slices.SortFunc(out, func(a, b *model.Job) int { return strings.Compare(a.ID, b.ID) })
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryResultStore is an in-memory ResultStore. Records can be appended while a poller reads.
type MemoryResultStore struct {
	mu      sync.Mutex
	records map[string][]model.ResultRecord
	queries int
}

// NewMemoryResultStore creates an empty result store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{records: make(map[string][]model.ResultRecord)}
}

// Add appends records.
func (s *MemoryResultStore) Add(recs ...model.ResultRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.records[r.RequestID] = append(s.records[r.RequestID], r)
	}
}

// Queries reports how many QueryByCorrelationID calls were made.
func (s *MemoryResultStore) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

// QueryByCorrelationID implements core.ResultStore.
func (s *MemoryResultStore) QueryByCorrelationID(_ context.Context, correlationID string) ([]model.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	return slices.Clone(s.records[correlationID]), nil
}

// CountByCorrelationID implements core.ResultStore.
func (s *MemoryResultStore) CountByCorrelationID(_ context.Context, correlationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, r := range s.records[correlationID] {
		seen[r.AuthorityKey()] = struct{}{}
	}
	return len(seen), nil
}

// MemoryUnitStore is an in-memory UnitMappingRepository and UnitRecordRepository.
type MemoryUnitStore struct {
	mu       sync.Mutex
	mappings map[string]*model.UnitMapping // by correlation id
	records  map[string]model.UnitRecord   // by job id + unit ref
}

// NewMemoryUnitStore creates an empty unit store.
func NewMemoryUnitStore() *MemoryUnitStore {
	return &MemoryUnitStore{
		mappings: make(map[string]*model.UnitMapping),
		records:  make(map[string]model.UnitRecord),
	}
}

// Create implements core.UnitMappingRepository.
func (s *MemoryUnitStore) Create(_ context.Context, req *model.CreateUnitMappingRequest) (*model.UnitMapping, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid unit mapping")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	corr := req.CorrelationID
	if corr == "" {
		corr = uuid.NewString()
	}
	if _, ok := s.mappings[corr]; ok {
		return nil, apperrors.Conflictf("correlation id %s already mapped", corr)
	}
	for _, m := range s.mappings {
		if m.JobID == req.JobID && m.UnitRef == req.UnitRef {
			return nil, apperrors.Conflictf("unit %s already mapped", req.UnitRef)
		}
	}
	m := &model.UnitMapping{
		ID:            uuid.NewString(),
		JobID:         req.JobID,
		UnitRef:       req.UnitRef,
		CorrelationID: corr,
		CreatedAt:     time.Now().UTC(),
	}
	s.mappings[corr] = m
	out := *m
	return &out, nil
}

// GetByCorrelationID implements core.UnitMappingRepository.
func (s *MemoryUnitStore) GetByCorrelationID(_ context.Context, correlationID string) (*model.UnitMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[correlationID]
	if !ok {
		return nil, apperrors.NotFound("unit mapping not found")
	}
	out := *m
	return &out, nil
}

// GetByUnit implements core.UnitMappingRepository.
func (s *MemoryUnitStore) GetByUnit(_ context.Context, jobID, unitRef string) (*model.UnitMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.JobID == jobID && m.UnitRef == unitRef {
			out := *m
			return &out, nil
		}
	}
	return nil, apperrors.NotFound("unit mapping not found")
}

// Upsert implements core.UnitRecordRepository.
func (s *MemoryUnitStore) Upsert(_ context.Context, p core.UpsertUnitRecordParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := model.UnitRecord{JobID: p.JobID, UnitRef: p.UnitRef, Outcome: p.Outcome, UpdatedAt: time.Now().UTC()}
	if p.ReasonForDev != "" {
		reason := p.ReasonForDev
		rec.ReasonForDev = &reason
	}
	s.records[p.JobID+"\x00"+p.UnitRef] = rec
	return nil
}

// Record returns the stored outcome for a unit.
func (s *MemoryUnitStore) Record(jobID, unitRef string) (model.UnitRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID+"\x00"+unitRef]
	return rec, ok
}

// MemoryDeliveryGuard is an in-process DeliveryGuard without expiry.
type MemoryDeliveryGuard struct {
	mu   sync.Mutex
	keys map[string]bool // true once completed
}

// NewMemoryDeliveryGuard creates an empty guard.
func NewMemoryDeliveryGuard() *MemoryDeliveryGuard {
	return &MemoryDeliveryGuard{keys: make(map[string]bool)}
}

// Claim implements core.DeliveryGuard.
func (g *MemoryDeliveryGuard) Claim(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.keys[key]; held {
		return false, nil
	}
	g.keys[key] = false
	return true, nil
}

// Complete implements core.DeliveryGuard.
func (g *MemoryDeliveryGuard) Complete(_ context.Context, key string) error {
	g.mu.Lock()
	g.keys[key] = true
	g.mu.Unlock()
	return nil
}

// Release implements core.DeliveryGuard.
func (g *MemoryDeliveryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
	return nil
}
