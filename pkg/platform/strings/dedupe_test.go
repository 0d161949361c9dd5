package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "   ", nil},
		{"single", "broker:9092", []string{"broker:9092"}},
		{"trims and drops empties", " a:9092, ,b:9092 ,", []string{"a:9092", "b:9092"}},
		{"drops repeats in order", "b,a,b,a", []string{"b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.raw, ","))
		})
	}
}

func TestDedupeAndTrim(t *testing.T) {
	assert.Nil(t, DedupeAndTrim(nil))
	assert.Equal(t, []string{}, DedupeAndTrim([]string{}))
	assert.Equal(t, []string{"foo", "bar"}, DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "}))
}

func TestDedupeAndTrimDoesNotAliasInput(t *testing.T) {
	in := []string{" x", "y"}
	_ = DedupeAndTrim(in)
	assert.Equal(t, []string{" x", "y"}, in)
}
