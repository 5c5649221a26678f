package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/calllog/sinks"
)

func TestStreamValues(t *testing.T) {
	values, err := streamValues(sinks.Record{
		Time:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:    "INFO",
		Message:  "OrderService.ProcessOrder",
		Fields:   map[string]any{"TypeName": "OrderService"},
		Success:  true,
		Fallback: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T03:04:05.000000Z", values["time"])
	assert.Equal(t, `{"TypeName":"OrderService"}`, values["fields"])
	assert.Equal(t, true, values["fallback"])
	assert.NotContains(t, values, "template")
}
