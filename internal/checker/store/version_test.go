package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNewer(t *testing.T) {
	tests := []struct {
		newVer     string
		currentVer string
		expected   bool
	}{
		{"2.0.0", "1.9.9", true},
		{"1.0.1", "1.0.0", true},
		{"1.0.10", "1.0.9", true},
		{"1.0.0", "1.0.0", false},
		{"1.0.0", "1.0.1", false},
		{"0.9.9", "1.0.0", false},
		// only the components up to the shorter length are compared
		{"1.0", "1.0.1", false},
		{"1.0.1", "1.0", true},
		// non-numeric components are never newer
		{"1.2.x", "1.0.0", false},
		{"2.0.0", "unknown", false},
		{"", "1.0.0", false},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s_vs_%s", tc.newVer, tc.currentVer), func(t *testing.T) {
			assert.Equal(t, tc.expected, IsNewer(tc.newVer, tc.currentVer))
		})
	}
}
