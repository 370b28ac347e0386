package estimation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/models"
)

func taskWithFiles(n int, description string) models.Task {
	files := make([]string, n)
	for i := range files {
		files[i] = "file.go"
	}
	return models.Task{ID: "t1", Title: "task", Description: description, Files: files}
}

func TestEstimateGrowsWithFileCountAndDescriptionLength(t *testing.T) {
	e := NewEstimator(nil)
	small := e.Estimate(taskWithFiles(1, "short"))
	large := e.Estimate(taskWithFiles(8, "a much longer description with many more words describing the work to be done across several files and edge cases to consider"))
	assert.Greater(t, large, small)
}

func TestEstimateAppliesTestVerbMultiplier(t *testing.T) {
	e := NewEstimator(nil)
	plain := e.Estimate(taskWithFiles(2, "implement the parser"))
	withTests := e.Estimate(taskWithFiles(2, "implement the parser and write tests to validate edge cases"))
	assert.Greater(t, withTests, plain)
}

func TestEstimateNeverGoesBelowFloor(t *testing.T) {
	e := NewEstimator(nil)
	minutes := e.Estimate(models.Task{ID: "t1", Title: "tiny"})
	assert.GreaterOrEqual(t, minutes, floorMinutes)
}

func TestRecordAdjustsFutureEstimatesForSameShape(t *testing.T) {
	e := NewEstimator(nil)
	task := taskWithFiles(1, "a small fix")
	initial := e.Estimate(task)

	// Actual duration consistently 2x the estimate for this shape: the
	// calibration mean should climb toward (and be clamped at) 2.0.
	for i := 0; i < 50; i++ {
		e.Record(task, initial, initial*2)
	}

	recalibrated := e.Estimate(task)
	assert.Greater(t, recalibrated, initial)
	assert.LessOrEqual(t, float64(recalibrated), float64(initial)*maxCalibration+1)
}

func TestRecordClampsCalibrationToConfiguredRange(t *testing.T) {
	e := NewEstimator(nil)
	task := taskWithFiles(1, "a small fix")
	initial := e.Estimate(task)

	for i := 0; i < 100; i++ {
		e.Record(task, initial, initial*10)
	}
	mean := e.calibrationFor(shapeKey(task))
	assert.LessOrEqual(t, mean, maxCalibration)

	for i := 0; i < 100; i++ {
		e.Record(task, initial, 1)
	}
	mean = e.calibrationFor(shapeKey(task))
	assert.GreaterOrEqual(t, mean, minCalibration)
}

func TestRecordIgnoresNonPositiveDurations(t *testing.T) {
	e := NewEstimator(nil)
	task := taskWithFiles(1, "a small fix")
	before := e.calibrationFor(shapeKey(task))
	e.Record(task, 0, 10)
	e.Record(task, 10, 0)
	after := e.calibrationFor(shapeKey(task))
	assert.Equal(t, before, after)
}

func TestMemoryStoreRoundTrips(t *testing.T) {
	store := NewMemoryStore()
	_, ok, err := store.Load("files:1-2/notests")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save("files:1-2/notests", 1.4))
	mean, ok, err := store.Load("files:1-2/notests")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.4, mean)
}

func TestEstimatorPersistsCalibrationThroughStore(t *testing.T) {
	store := NewMemoryStore()
	e1 := NewEstimator(store)
	task := taskWithFiles(1, "a small fix")
	initial := e1.Estimate(task)
	for i := 0; i < 20; i++ {
		e1.Record(task, initial, initial*2)
	}

	e2 := NewEstimator(store)
	assert.Equal(t, e1.calibrationFor(shapeKey(task)), e2.calibrationFor(shapeKey(task)))
}

func TestShapeKeyBucketsByFileCountAndTestVerbs(t *testing.T) {
	assert.Equal(t, "files:0/notests", shapeKey(models.Task{}))
	assert.Equal(t, "files:1-2/tests", shapeKey(taskWithFiles(2, "write tests")))
	assert.Equal(t, "files:6+/notests", shapeKey(taskWithFiles(9, "refactor")))
}

func TestCountWordsIgnoresPunctuationOnlySegments(t *testing.T) {
	assert.Equal(t, 0, countWords(""))
	assert.Equal(t, 3, countWords("hello, world! go."))
}
