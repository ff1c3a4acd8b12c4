package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromptText(t *testing.T) {
	assert.Equal(t, "continue? [Y/n]: ", promptText("continue?", yesNoConstraints))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		given    string
		expected string
	}{
		{"", Yes},
		{"n", No},
		{" N ", No},
		{"y", Yes},
		{"maybe", Yes},
	}
	for _, test := range tests {
		t.Run(test.given, func(t *testing.T) {
			assert.Equal(t, test.expected, normalize(test.given, yesNoConstraints))
		})
	}
}
