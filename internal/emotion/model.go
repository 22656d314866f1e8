package emotion

import (
	"fmt"

	"careguardian/internal/apperr"
)

// Level is the classified risk level. It is the sole driver of alert
// dispatch and UI color-coding.
type Level string

const (
	LevelSafe    Level = "Safe"
	LevelWarning Level = "Warning"
	LevelDanger  Level = "Danger"
)

// ParseLevel validates a level value coming back from the classifier.
// Anything outside the three canonical values is a classification error,
// never a fourth state.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelSafe, LevelWarning, LevelDanger:
		return Level(s), nil
	default:
		return "", apperr.Format("Could not analyze mood. Please try again.",
			fmt.Errorf("unrecognized risk level %q", s))
	}
}

// TrendValue maps the level onto the fixed numeric emotion-trend scale.
func (l Level) TrendValue() int {
	switch l {
	case LevelSafe:
		return 8
	case LevelWarning:
		return 4
	default:
		return 2
	}
}

// Result is the validated output of one classification.
type Result struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}
