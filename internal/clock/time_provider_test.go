package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockTimeProviderAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock := NewMockTimeProvider(start)

	mock.Advance(250 * time.Millisecond)
	assert.Equal(t, start.Add(250*time.Millisecond), mock.Now())
	assert.Equal(t, 250*time.Millisecond, mock.Since(start))

	mock.SetTime(start)
	assert.Equal(t, start, mock.Now())
}

func TestOrDefault(t *testing.T) {
	assert.IsType(t, DefaultTimeProvider{}, OrDefault(nil))

	mock := NewMockTimeProvider(time.Unix(0, 0))
	assert.Same(t, mock, OrDefault(mock))
}
