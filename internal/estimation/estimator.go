// Package estimation produces per-task duration estimates from size
// signals, with an online calibration factor learned from actual task
// durations, per spec.md §4.11.
package estimation

import (
	"sync"

	"github.com/nexus-build/nexus/internal/models"
)

// Calibration bounds: a shape's running multiplier is clamped to this
// range so one wildly mis-estimated task can't send future estimates for
// its shape to zero or to infinity.
const (
	minCalibration = 0.5
	maxCalibration = 2.0

	// calibrationWeight is the EWMA smoothing factor applied to each new
	// actual/estimated ratio. Higher weighs recent tasks more heavily.
	calibrationWeight = 0.3
)

// Estimator produces baseline estimates from task size signals and
// refines them per task "shape" using an exponentially weighted running
// mean of past actual/estimated ratios.
type Estimator struct {
	store CalibrationStore
	mu    sync.Mutex
	cache map[string]float64
}

// NewEstimator builds an Estimator backed by store. Pass NewMemoryStore()
// for a process-local estimator, or a *SQLiteStore to carry calibration
// across restarts.
func NewEstimator(store CalibrationStore) *Estimator {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Estimator{store: store, cache: make(map[string]float64)}
}

// Estimate returns the calibrated estimate in minutes for task.
func (e *Estimator) Estimate(task models.Task) int {
	base := baselineMinutes(task)
	shape := shapeKey(task)
	mean := e.calibrationFor(shape)
	estimate := int(float64(base) * mean)
	if estimate < floorMinutes {
		estimate = floorMinutes
	}
	return estimate
}

// Record feeds back a completed task's actual duration, updating the
// running calibration mean for its shape. estimatedMinutes should be the
// value Estimate previously returned for this task (the Task's own
// EstimatedMinutes field, by convention).
func (e *Estimator) Record(task models.Task, estimatedMinutes, actualMinutes int) {
	if estimatedMinutes <= 0 || actualMinutes <= 0 {
		return
	}
	ratio := float64(actualMinutes) / float64(estimatedMinutes)
	shape := shapeKey(task)

	e.mu.Lock()
	defer e.mu.Unlock()

	mean := e.calibrationForLocked(shape)
	mean = calibrationWeight*ratio + (1-calibrationWeight)*mean
	if mean < minCalibration {
		mean = minCalibration
	}
	if mean > maxCalibration {
		mean = maxCalibration
	}
	e.cache[shape] = mean
	_ = e.store.Save(shape, mean)
}

func (e *Estimator) calibrationFor(shape string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calibrationForLocked(shape)
}

func (e *Estimator) calibrationForLocked(shape string) float64 {
	if mean, ok := e.cache[shape]; ok {
		return mean
	}
	if mean, ok, err := e.store.Load(shape); err == nil && ok {
		e.cache[shape] = mean
		return mean
	}
	return 1.0
}
