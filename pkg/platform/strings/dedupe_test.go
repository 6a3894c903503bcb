package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil stays nil", nil, nil},
		{"trims and drops empties", []string{" kafka-1:9092 ", "", "  "}, []string{"kafka-1:9092"}},
		{"dedupes keeping first-seen order", []string{"b:9092", "a:9092", "b:9092"}, []string{"b:9092", "a:9092"}},
		{"case sensitive", []string{"Broker", "broker"}, []string{"Broker", "broker"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.in))
		})
	}
}
