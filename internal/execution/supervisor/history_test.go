package supervisor

import (
	"testing"

	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/stretchr/testify/assert"
)

func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory(3)

	for pid := 1; pid <= 5; pid++ {
		h.Append(models.Event{Kind: models.EventSpawn, Pid: pid})
	}

	events := h.Events()
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []int{3, 4, 5}, pids(events))
}

func TestHistory_PartiallyFilled(t *testing.T) {
	h := NewHistory(4)
	h.Append(models.Event{Pid: 1})
	h.Append(models.Event{Pid: 2})

	assert.Equal(t, []int{1, 2}, pids(h.Events()))
	assert.Equal(t, 2, h.Len())
}

func TestHistory_Empty(t *testing.T) {
	assert.Empty(t, NewHistory(2).Events())
}

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{Capacity: -1}.withDefaults()

	assert.Equal(t, DefaultConfig().Capacity, c.Capacity)
	assert.Equal(t, DefaultConfig().PollInterval, c.PollInterval)
	assert.Equal(t, DefaultConfig().MaxResultSize, c.MaxResultSize)
	assert.Empty(t, c.PidFile)
}

func pids(events []models.Event) []int {
	out := make([]int, 0, len(events))
	for _, e := range events {
		out = append(out, e.Pid)
	}
	return out
}
