package logentry

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStart(t *testing.T) {
	e := CreateStart("ProcessOrder", "OrderService", LevelInformation)

	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, "OrderService.ProcessOrder", e.Key())
	assert.False(t, e.Success)
	assert.False(t, e.StartedAt.IsZero())

	other := CreateStart("ProcessOrder", "OrderService", LevelInformation)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestMutatorsReturnNewValues(t *testing.T) {
	start := CreateStart("Bar", "Foo", LevelDebug)

	withInput := start.WithInput(map[string]any{"id": 1})
	withTarget := withInput.WithTarget("orders").WithFormatter("json").WithTemplate("audit")

	assert.Nil(t, start.Input)
	assert.Empty(t, start.Target)
	assert.Equal(t, map[string]any{"id": 1}, withInput.Input)
	assert.Empty(t, withInput.Target)
	assert.Equal(t, "orders", withTarget.Target)
	assert.Equal(t, "json", withTarget.Formatter)
	assert.Equal(t, "audit", withTarget.TemplateName)
	assert.Equal(t, start.ID, withTarget.ID)
}

func TestCompletionAndException(t *testing.T) {
	start := CreateStart("Bar", "Foo", LevelInformation)
	start.StartedAt = time.Now().Add(-20 * time.Millisecond)

	ok := start.WithOutput(42).WithCompletion(true)
	assert.True(t, ok.Success)
	assert.GreaterOrEqual(t, ok.Duration, 20*time.Millisecond)
	assert.Equal(t, LevelInformation, ok.EffectiveLevel())

	failed := start.WithException(errors.New("db down"), LevelError).WithCompletion(true)
	assert.False(t, failed.Success)
	assert.Equal(t, "db down", failed.ExceptionMessage)
	assert.Equal(t, LevelError, failed.EffectiveLevel())

	assert.Equal(t, start, start.WithException(nil, LevelCritical))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace": LevelTrace, "Debug": LevelDebug, "information": LevelInformation,
		"info": LevelInformation, "warning": LevelWarning, "error": LevelError,
		"critical": LevelCritical, "none": LevelNone,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)

	var l Level
	require.NoError(t, l.UnmarshalText([]byte("warning")))
	assert.Equal(t, "Warning", l.String())
	assert.Equal(t, "Level(42)", Level(42).String())
}
