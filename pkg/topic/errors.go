package topic

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTopic            = errors.New("empty topic")
	ErrTopicTooLong          = errors.New("topic longer than 65535 bytes")
	ErrNullCharacter         = errors.New("topic contains U+0000")
	ErrWildcardInName        = errors.New("wildcard in topic name")
	ErrInvalidMultiWildcard  = errors.New("'#' must be the whole last level")
	ErrInvalidSingleWildcard = errors.New("'+' must be a whole level")
)

// ValidationError reports which level of a topic or filter is malformed.
// Level is -1 when the problem is not tied to one level.
type ValidationError struct {
	Topic string
	Level int
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Level < 0 {
		return fmt.Sprintf("topic %q: %v", e.Topic, e.Err)
	}
	return fmt.Sprintf("topic %q level %d: %v", e.Topic, e.Level, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(topic string, level int, err error) error {
	return &ValidationError{Topic: topic, Level: level, Err: err}
}
