package topic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		name   string
		want   bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b", false},
		{"a/b", "a/b/c", false},
		{"a/b/c", "a/b/d", false},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/d", false},
		{"a/+/c", "a/c", false},
		{"+", "a", true},
		{"+", "a/b", false},
		{"+/+", "/a", true},
		{"a/#", "a/b/c", true},
		{"a/#", "a/b", true},
		{"a/#", "a", true},
		{"a/#", "b/c", false},
		{"a/+/#", "a/b", true},
		{"a/+/#", "a", false},
		{"#", "a/b/c", true},
		{"#", "a", true},
		{"sensors/+/temp", "sensors/room1/temp", true},
		{"sensors/+/temp", "sensors/room1/humidity", false},
		{"a/#/c", "a/#/c", true},
		{"a/#/c", "a/b/c", false},
		{"a/", "a/", true},
		{"a/", "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+" "+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.filter, tt.name))
		})
	}
}

func TestMatchWithoutWildcardsIsEquality(t *testing.T) {
	topics := []string{"a", "a/b", "a/b/c", "b/a", "a//b", "/a", ""}
	for _, f := range topics {
		for _, n := range topics {
			assert.Equal(t, f == n, Match(f, n), "filter %q name %q", f, n)
		}
	}
}

func TestValidateFilter(t *testing.T) {
	valid := []string{"a", "a/b", "+", "#", "a/+/c", "a/#", "+/+/#", "/", "a//b"}
	for _, f := range valid {
		assert.NoError(t, ValidateFilter(f), f)
	}

	invalid := map[string]error{
		"":      ErrEmptyTopic,
		"a/#/c": ErrInvalidMultiWildcard,
		"a#":    ErrInvalidMultiWildcard,
		"a/b+":  ErrInvalidSingleWildcard,
		"a\x00": ErrNullCharacter,
	}
	for f, want := range invalid {
		assert.ErrorIs(t, ValidateFilter(f), want, f)
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("sensors/room1/temp"))
	assert.ErrorIs(t, ValidateName(""), ErrEmptyTopic)
	assert.ErrorIs(t, ValidateName("a/+"), ErrWildcardInName)
	assert.ErrorIs(t, ValidateName("a/#"), ErrWildcardInName)
}

func TestHasWildcard(t *testing.T) {
	assert.True(t, HasWildcard("a/+"))
	assert.True(t, HasWildcard("#"))
	assert.False(t, HasWildcard("a/b"))
}

func TestValidationErrorLevel(t *testing.T) {
	err := ValidateFilter("a/b/c+")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, verr.Level)
	assert.Equal(t, "a/b/c+", verr.Topic)
	assert.Contains(t, err.Error(), "level 2")

	err = ValidateName("")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, -1, verr.Level)
	assert.ErrorIs(t, err, ErrEmptyTopic)

	long := strings.Repeat("a", 70000)
	assert.ErrorIs(t, ValidateName(long), ErrTopicTooLong)
}
