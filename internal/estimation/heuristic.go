package estimation

import (
	"strings"

	"github.com/clipperhouse/uax29/v2/words"

	"github.com/nexus-build/nexus/internal/models"
)

// Baseline heuristic weights, in minutes. These are starting points; the
// calibration multiplier is what actually adapts them to reality over
// time.
const (
	baseMinutes          = 10
	minutesPerFile       = 6
	minutesPerHundredWords = 3
	testVerbMultiplier   = 1.25
	floorMinutes         = 5
)

var testVerbs = []string{
	"test", "tests", "testing", "verify", "validate", "assert", "cover", "coverage",
}

// baselineMinutes computes the pre-calibration estimate from size signals:
// file count, description word count, and presence of test-writing verbs.
func baselineMinutes(task models.Task) int {
	minutes := baseMinutes + minutesPerFile*len(task.Files)
	minutes += (countWords(task.Description) * minutesPerHundredWords) / 100

	if hasTestVerbs(task.Description) {
		minutes = int(float64(minutes) * testVerbMultiplier)
	}
	if minutes < floorMinutes {
		minutes = floorMinutes
	}
	return minutes
}

func countWords(text string) int {
	if text == "" {
		return 0
	}
	seg := words.NewSegmenter([]byte(text))
	count := 0
	for seg.Next() {
		if isWordLike(seg.Value()) {
			count++
		}
	}
	return count
}

// isWordLike filters segments uax29 reports that aren't themselves words,
// such as isolated whitespace or punctuation runs.
func isWordLike(segment []byte) bool {
	for _, r := range string(segment) {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return true
		}
	}
	return false
}

func hasTestVerbs(description string) bool {
	lower := strings.ToLower(description)
	for _, verb := range testVerbs {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}

// shapeKey buckets a task into a coarse class so the calibration
// multiplier generalizes across tasks "of similar shape" rather than
// memorizing per-task-ID ratios, per spec.md §4.11.
func shapeKey(task models.Task) string {
	bucket := fileCountBucket(len(task.Files))
	if hasTestVerbs(task.Description) {
		return bucket + "/tests"
	}
	return bucket + "/notests"
}

func fileCountBucket(n int) string {
	switch {
	case n == 0:
		return "files:0"
	case n <= 2:
		return "files:1-2"
	case n <= 5:
		return "files:3-5"
	default:
		return "files:6+"
	}
}
