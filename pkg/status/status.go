// Package status tracks long-running browse sessions started through the
// HTTP API so clients can poll their results and cancel them.
package status

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/health"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// OperationStatus represents the status of a long-running operation
type OperationStatus int

const (
	// StatusInProgress indicates the operation is still receiving results
	StatusInProgress OperationStatus = iota

	// StatusCompleted indicates the operation delivered its last result
	StatusCompleted

	// StatusFailed indicates the operation terminated with an error
	StatusFailed

	// StatusCanceled indicates the operation was canceled
	StatusCanceled
)

// String returns the string representation of an operation status
func (s OperationStatus) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s OperationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Operation is a tracked browse and the results delivered so far.
type Operation struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	Source    string               `json:"source"`
	ObjectID  string               `json:"object_id"`
	BrowseID  uint32               `json:"browse_id"`
	Status    OperationStatus      `json:"status"`
	Progress  Progress             `json:"progress"`
	Results   []types.BrowseResult `json:"results"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`
	Error     *errors.BridgeError  `json:"error,omitempty"`

	mu     sync.RWMutex
	cancel func() error
	done   chan struct{}
}

// Progress counts delivered results against what the source announced.
type Progress struct {
	Delivered  int     `json:"delivered"`
	Remaining  int     `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// Tracker tracks all operations and provides status information
type Tracker struct {
	mu            sync.RWMutex
	operations    map[string]*Operation
	history       []*Operation
	maxHistory    int
	healthTracker *health.Tracker
}

// TrackerConfig configures operation tracking behavior
type TrackerConfig struct {
	MaxHistorySize int             `json:"max_history_size"`
	HealthTracker  *health.Tracker `json:"-"`
}

// DefaultTrackerConfig returns default configuration
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxHistorySize: 100,
	}
}

// NewTracker creates a new operation tracker
func NewTracker(config TrackerConfig) *Tracker {
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 100
	}

	return &Tracker{
		operations:    make(map[string]*Operation),
		history:       make([]*Operation, 0, config.MaxHistorySize),
		maxHistory:    config.MaxHistorySize,
		healthTracker: config.HealthTracker,
	}
}

// StartOperation begins tracking a browse of objectID on source. Register
// the operation before starting the browse so a synchronous terminal
// delivery finds it.
func (t *Tracker) StartOperation(opType, source, objectID string) *Operation {
	op := &Operation{
		ID:        uuid.NewString(),
		Type:      opType,
		Source:    source,
		ObjectID:  objectID,
		Status:    StatusInProgress,
		StartTime: time.Now(),
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	t.operations[op.ID] = op
	t.mu.Unlock()
	return op
}

// Bind records the browse id and how to cancel it.
func (t *Tracker) Bind(opID string, browseID uint32, cancel func() error) error {
	op, err := t.active(opID)
	if err != nil {
		return err
	}
	op.mu.Lock()
	op.BrowseID = browseID
	op.cancel = cancel
	op.mu.Unlock()
	return nil
}

// Deliver appends a browse result. A terminal result finishes the operation
// and moves it to history. Deliver never blocks on the caller.
func (t *Tracker) Deliver(opID string, r types.BrowseResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, exists := t.operations[opID]
	if !exists {
		return
	}

	op.mu.Lock()
	if r.Err == nil && r.ObjectID != "" {
		op.Results = append(op.Results, r)
	}
	op.Progress.Delivered = len(op.Results)
	op.Progress.Remaining = max(r.Remaining, 0)
	if total := op.Progress.Delivered + op.Progress.Remaining; total > 0 {
		op.Progress.Percentage = float64(op.Progress.Delivered) / float64(total) * 100
	}

	if !r.Terminal() {
		op.mu.Unlock()
		return
	}

	now := time.Now()
	op.EndTime = &now
	switch {
	case r.Err == nil:
		op.Status = StatusCompleted
		op.Progress.Percentage = 100
	case errors.IsCode(r.Err, errors.ErrCodeOperationCanceled):
		op.Status = StatusCanceled
		op.Error = asBridgeError(r.Err)
	default:
		op.Status = StatusFailed
		op.Error = asBridgeError(r.Err)
	}
	op.cancel = nil
	close(op.done)
	op.mu.Unlock()

	t.moveToHistory(op)
	delete(t.operations, opID)
}

// CancelOperation asks the source to cancel the browse. The operation
// finishes when the source delivers its terminal result.
func (t *Tracker) CancelOperation(opID string) error {
	op, err := t.active(opID)
	if err != nil {
		return err
	}

	op.mu.RLock()
	cancel := op.cancel
	op.mu.RUnlock()
	if cancel == nil {
		return errors.NewError(errors.ErrCodeInvalidValue, "operation cannot be canceled").
			WithComponent("status").
			WithDetail("operation_id", opID)
	}
	return cancel()
}

// Wait blocks until the operation finishes or ctx is done and returns its
// latest snapshot.
func (t *Tracker) Wait(ctx context.Context, opID string) (*Operation, error) {
	t.mu.RLock()
	op, exists := t.operations[opID]
	t.mu.RUnlock()

	if exists {
		select {
		case <-op.done:
		case <-ctx.Done():
			return op.Copy(), ctx.Err()
		}
	}
	return t.GetOperation(opID)
}

// GetOperation returns an active or finished operation by ID
func (t *Tracker) GetOperation(opID string) (*Operation, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if op, exists := t.operations[opID]; exists {
		return op.Copy(), nil
	}
	for _, op := range t.history {
		if op.ID == opID {
			return op.Copy(), nil
		}
	}
	return nil, notFound(opID)
}

// GetAllOperations returns all active operations
func (t *Tracker) GetAllOperations() []*Operation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ops := make([]*Operation, 0, len(t.operations))
	for _, op := range t.operations {
		ops = append(ops, op.Copy())
	}
	return ops
}

// GetHistory returns finished operations, newest first
func (t *Tracker) GetHistory(limit int) []*Operation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > len(t.history) {
		limit = len(t.history)
	}

	result := make([]*Operation, limit)
	for i := range result {
		result[i] = t.history[i].Copy()
	}
	return result
}

// GetSystemStatus returns overall system status including health
func (t *Tracker) GetSystemStatus() *SystemStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := &SystemStatus{
		Timestamp:          time.Now(),
		ActiveOps:          len(t.operations),
		OperationsBySource: make(map[string]int),
	}

	for _, op := range t.operations {
		status.OperationsBySource[op.Source]++
	}

	if t.healthTracker != nil {
		status.HealthState = t.healthTracker.GetOverallHealth()
		status.SourceHealth = t.healthTracker.GetAllComponents()
	}

	return status
}

// SystemStatus represents the overall system status
type SystemStatus struct {
	Timestamp          time.Time                          `json:"timestamp"`
	ActiveOps          int                                `json:"active_operations"`
	OperationsBySource map[string]int                     `json:"operations_by_source"`
	HealthState        health.HealthState                 `json:"health_state"`
	SourceHealth       map[string]*health.ComponentHealth `json:"source_health,omitempty"`
}

func (t *Tracker) active(opID string) (*Operation, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	op, exists := t.operations[opID]
	if !exists {
		return nil, notFound(opID)
	}
	return op, nil
}

// moveToHistory must be called with the lock held.
func (t *Tracker) moveToHistory(op *Operation) {
	t.history = append([]*Operation{op}, t.history...)
	if len(t.history) > t.maxHistory {
		t.history = t.history[:t.maxHistory]
	}
}

// Copy returns a snapshot of the operation.
func (o *Operation) Copy() *Operation {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return &Operation{
		ID:        o.ID,
		Type:      o.Type,
		Source:    o.Source,
		ObjectID:  o.ObjectID,
		BrowseID:  o.BrowseID,
		Status:    o.Status,
		Progress:  o.Progress,
		Results:   append([]types.BrowseResult(nil), o.Results...),
		StartTime: o.StartTime,
		EndTime:   o.EndTime,
		Error:     o.Error,
	}
}

func asBridgeError(err error) *errors.BridgeError {
	var be *errors.BridgeError
	if stderrors.As(err, &be) {
		return be
	}
	return errors.Wrap(errors.ErrCodeUnknownError, "browse failed", err)
}

func notFound(opID string) error {
	return errors.NewError(errors.ErrCodeNotFound, "operation not found").
		WithComponent("status").
		WithDetail("operation_id", opID)
}
