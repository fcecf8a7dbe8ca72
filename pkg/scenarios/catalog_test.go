package scenarios

import (
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-playback-engine/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default(testLogger())
	require.NoError(t, err)
	require.Greater(t, c.Len(), 0)

	for _, sc := range c.All() {
		assert.NotEmpty(t, sc.PointOfView, "scenario %d", sc.ID)
		for j, turn := range sc.Turns {
			length := len([]rune(turn.Content))
			for _, off := range turn.PauseOffsets {
				assert.True(t, off >= 0 && off <= length, "scenario %d turn %d offset %d", sc.ID, j, off)
			}
			if turn.LocalInput {
				assert.Equal(t, sc.PointOfView, turn.Sender)
			}
		}
	}
}

func TestLoadFromReader_NormalizesTurns(t *testing.T) {
	doc := `
scenarios:
  - id: 7
    name: Demo
    pov: Sarah
    thread:
      title: Sync
      channel: product
      tz: "+08:00"
    turns:
      - sender: Sarah
        role: human
        timestamp: "10:30"
        content: Hi team
        pauses: [5, 2, 2, 40]
        local_input: true
      - sender: Akarii
        role: ai
        kind: rich
        timestamp: "10:31"
        content: Hello!
        local_input: true
`
	c, err := LoadFromReader(strings.NewReader(doc), testLogger())
	require.NoError(t, err)

	sc, ok := c.Get(0)
	require.True(t, ok)
	assert.Equal(t, models.KindText, sc.Turns[0].Kind)
	assert.Equal(t, []int{2, 5}, sc.Turns[0].PauseOffsets)
	assert.True(t, sc.Turns[0].LocalInput)
	assert.False(t, sc.Turns[1].LocalInput, "only the point of view types locally")
	assert.Equal(t, "7-1", sc.TurnID(1))
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	doc := `
scenarios:
  - id: 1
    pov: Sarah
    colour: blue
    turns:
      - {sender: Sarah, role: human, content: hi}
`
	_, err := LoadFromReader(strings.NewReader(doc), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestLoadFromReader_Empty(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(""), testLogger())
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestValidate_JoinsErrors(t *testing.T) {
	err := Validate([]models.Scenario{
		{ID: 1, PointOfView: "Sarah", Turns: []models.Turn{{Sender: "Sarah", Role: "robot", Content: "x"}}},
		{ID: 1, Turns: []models.Turn{{Role: models.RoleAI, Kind: "banner"}}},
	})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, `role "robot" is invalid`)
	assert.Contains(t, msg, "duplicate id 1")
	assert.Contains(t, msg, "pov is required")
	assert.Contains(t, msg, "sender is required")
	assert.Contains(t, msg, `kind "banner" is invalid`)
	assert.Contains(t, msg, "content is required")
}

func TestCatalog_Resolve(t *testing.T) {
	c, err := Default(testLogger())
	require.NoError(t, err)

	sc, idx, err := c.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, c.All()[1].ID, sc.ID)

	sc, idx, err = c.Resolve(99)
	assert.True(t, errors.Is(err, ErrScenarioNotFound))
	assert.Equal(t, 0, idx)
	assert.Equal(t, c.All()[0].ID, sc.ID)

	_, ok := c.Get(-1)
	assert.False(t, ok)
}
