// Package topic provides MQTT topic name and filter handling.
// It implements topic validation and wildcard matching according to
// MQTT 3.1.1 Section 4.7.
package topic

import (
	"strings"
)

const (
	// Separator is the topic level separator.
	Separator = "/"

	// MultiWildcard matches the remaining levels, including none. Only
	// meaningful as the last level of a filter.
	MultiWildcard = "#"

	// SingleWildcard matches exactly one level.
	SingleWildcard = "+"

	maxLength = 65535
)

// ValidateName validates a topic name used in PUBLISH (no wildcards allowed).
func ValidateName(name string) error {
	if err := checkLength(name); err != nil {
		return err
	}
	for i, level := range Levels(name) {
		if HasWildcard(level) {
			return invalid(name, i, ErrWildcardInName)
		}
	}
	return nil
}

// ValidateFilter validates a topic filter used in SUBSCRIBE.
func ValidateFilter(filter string) error {
	if err := checkLength(filter); err != nil {
		return err
	}

	levels := Levels(filter)
	last := len(levels) - 1
	for i, level := range levels {
		if strings.Contains(level, MultiWildcard) && (level != MultiWildcard || i != last) {
			return invalid(filter, i, ErrInvalidMultiWildcard)
		}
		if strings.Contains(level, SingleWildcard) && level != SingleWildcard {
			return invalid(filter, i, ErrInvalidSingleWildcard)
		}
	}
	return nil
}

func checkLength(topic string) error {
	switch {
	case topic == "":
		return invalid(topic, -1, ErrEmptyTopic)
	case len(topic) > maxLength:
		return invalid(topic[:32]+"...", -1, ErrTopicTooLong)
	case strings.IndexByte(topic, 0) >= 0:
		return invalid(topic, -1, ErrNullCharacter)
	}
	return nil
}

// Match reports whether the topic name matches the filter.
//
// A trailing "#" matches any number of remaining levels, including zero, so
// "a/#" matches both "a" and "a/b/c". "+" matches exactly one level. A "#"
// that is not the last level is compared literally.
func Match(filter, name string) bool {
	f := Levels(filter)
	n := Levels(name)

	if f[len(f)-1] == MultiWildcard {
		prefix := f[:len(f)-1]
		if len(n) < len(prefix) {
			return false
		}
		return matchLevels(prefix, n[:len(prefix)])
	}

	if len(f) != len(n) {
		return false
	}
	return matchLevels(f, n)
}

// matchLevels compares equal-length level slices.
func matchLevels(filter, name []string) bool {
	for i, level := range filter {
		if level != SingleWildcard && level != name[i] {
			return false
		}
	}
	return true
}

// Levels splits a topic into its constituent levels.
func Levels(topic string) []string {
	return strings.Split(topic, Separator)
}

// HasWildcard returns true if the filter contains any wildcard characters.
func HasWildcard(filter string) bool {
	return strings.ContainsAny(filter, MultiWildcard+SingleWildcard)
}
