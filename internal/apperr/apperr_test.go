package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain error", errors.New("boom"), ExitFailure},
		{"validation", Validation("bad flag %q", "--x"), ExitValidation},
		{"configuration", Configuration("missing key"), ExitConfiguration},
		{"network", New(KindNetwork, "generate", errors.New("timeout")), ExitNetwork},
		{"content policy", New(KindContentPolicy, "generate", errors.New("blocked")), ExitContentPolicy},
		{"api", New(KindAPI, "generate", errors.New("400")), ExitFailure},
		{"wrapped validation", fmt.Errorf("run: %w", Validation("bad")), ExitValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	sentinel := errors.New("root cause")
	err := New(KindAPI, "edit", sentinel)

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "edit: root cause", err.Error())
	assert.Equal(t, KindAPI, KindOf(err))
	assert.True(t, Is(err, KindAPI))
	assert.False(t, Is(nil, KindAPI))
}

func TestNew_NilError(t *testing.T) {
	assert.NoError(t, New(KindAPI, "op", nil))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "content policy", KindContentPolicy.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
