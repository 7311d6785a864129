package intents

import (
	"strings"
	"time"
)

// Clock is the time source used to resolve relative dates.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// Classifier scores utterances against the catalog and extracts slots.
// It holds no state besides its clock and is safe for concurrent use.
type Classifier struct {
	clock Clock
}

// NewClassifier returns a Classifier. A nil clock uses the system clock.
func NewClassifier(clock Clock) *Classifier {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Classifier{clock: clock}
}

// Classify returns the best-scoring intent and its confidence, the fraction of the
// intent's rules that match. Ties go to the earliest intent in catalog order; when
// nothing matches the result is (General, 0).
func (c *Classifier) Classify(text string) (Intent, float64) {
	lower := strings.ToLower(text)

	best, bestScore := General, 0.0
	for _, d := range catalog {
		hits := 0
		for _, rule := range d.Rules {
			if rule.MatchString(lower) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(d.Rules))
		if score > bestScore {
			best, bestScore = d.Intent, score
		}
	}
	return best, bestScore
}

// RequiredSlots is a convenience wrapper over the package-level table.
func (c *Classifier) RequiredSlots(i Intent) []string {
	return RequiredSlots(i)
}
