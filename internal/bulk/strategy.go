// ABOUTME: Duplicate handling strategies for records whose natural key already exists.
// ABOUTME: skip leaves stored rows alone, update overwrites them, error aborts the run.
package bulk

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy decides what happens to incoming records that already exist.
type Strategy string

// Duplicate strategies.
const (
	StrategyUpdate Strategy = "update"
	StrategySkip   Strategy = "skip"
	StrategyError  Strategy = "error"
)

// ErrUnknownStrategy is returned for a strategy name outside the supported set.
var ErrUnknownStrategy = errors.New("unknown duplicate strategy")

// ParseStrategy validates a strategy name. Empty means update.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return StrategyUpdate, nil
	case StrategyUpdate, StrategySkip, StrategyError:
		return s, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
}

// DuplicateError aborts a run under StrategyError.
type DuplicateError struct {
	DataType string
	Count    int
}

// Error reports how many stored records blocked the run.
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("found %d existing %s records", e.Count, e.DataType)
}
