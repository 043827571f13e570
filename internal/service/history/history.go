// Package history keeps a short-lived record of finished conversion jobs.
package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/feichai0017/document-converter/internal/models"
)

// ErrNotFound is returned by Get for unknown or expired jobs.
var ErrNotFound = errors.New("job not found")

// Record is the outcome of one job.
type Record struct {
	JobID        string                `json:"jobId"`
	Kind         models.ConversionKind `json:"kind"`
	Status       models.JobStatus      `json:"status"`
	OriginalName string                `json:"originalName,omitempty"`
	Outputs      []string              `json:"outputs,omitempty"`
	Reason       models.ErrorReason    `json:"reason,omitempty"`
	Error        string                `json:"error,omitempty"`
	StartedAt    time.Time             `json:"startedAt"`
	FinishedAt   time.Time             `json:"finishedAt,omitempty"`
}

// Recorder stores job records.
type Recorder interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, jobID string) (*Record, error)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) Save(ctx context.Context, rec *Record) error { return nil }

func (NopRecorder) Get(ctx context.Context, jobID string) (*Record, error) {
	return nil, ErrNotFound
}

// MemoryRecorder keeps records in process for ttl.
type MemoryRecorder struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	records map[string]memoryEntry
}

type memoryEntry struct {
	rec     Record
	expires time.Time
}

func NewMemoryRecorder(ttl time.Duration) *MemoryRecorder {
	return &MemoryRecorder{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]memoryEntry),
	}
}

func (m *MemoryRecorder) Save(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, e := range m.records {
		if now.After(e.expires) {
			delete(m.records, id)
		}
	}
	m.records[rec.JobID] = memoryEntry{rec: *rec, expires: now.Add(m.ttl)}
	return nil
}

func (m *MemoryRecorder) Get(ctx context.Context, jobID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.records[jobID]
	if !ok || m.now().After(e.expires) {
		return nil, ErrNotFound
	}
	rec := e.rec
	return &rec, nil
}
