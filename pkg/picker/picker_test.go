package picker

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var options = []string{"ABCD2345 - Smith - 2020 - A", "EFGH6789 - Miller - 1999 - B", "IJKL0123 - 2001 - C"}

func TestFirst(t *testing.T) {
	idx, err := First{}.Choose(context.Background(), "items", options)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	_, err = First{}.Choose(context.Background(), "items", nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestStrict(t *testing.T) {
	idx, err := Strict{}.Choose(context.Background(), "items", options[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	_, err = Strict{}.Choose(context.Background(), "items", options)
	assert.ErrorIs(t, err, ErrAmbiguous)
	var amb *AmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, options, amb.Options)
	assert.Contains(t, err.Error(), "EFGH6789")
}

func TestInteractiveSingleOption(t *testing.T) {
	idx, err := Interactive{In: strings.NewReader(""), Out: &strings.Builder{}}.Choose(context.Background(), "items", options[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func press(m tea.Model, keys ...string) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m, cmd = m.Update(msg)
	}
	return m, cmd
}

func TestModelNavigation(t *testing.T) {
	m, _ := press(newModel("items", options), "j", "down", "down", "k")
	assert.Equal(t, 1, m.(model).cursor)
	assert.Contains(t, m.View(), "EFGH6789")

	m, cmd := press(m, "enter")
	assert.True(t, m.(model).chosen)
	assert.False(t, m.(model).aborted)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())

	m, _ = press(newModel("items", options), "up", "G")
	assert.Equal(t, 2, m.(model).cursor)
	m, _ = press(m, "g")
	assert.Equal(t, 0, m.(model).cursor)
}

func TestModelAbort(t *testing.T) {
	for _, k := range []string{"q", "esc"} {
		m, cmd := press(newModel("items", options), "j", k)
		assert.True(t, m.(model).aborted, k)
		require.NotNil(t, cmd)
	}
}

func TestModelResult(t *testing.T) {
	m, _ := press(newModel("items", options), "j")
	_, err := m.(model).result()
	assert.ErrorIs(t, err, ErrAborted)

	m, _ = press(m, "esc")
	_, err = m.(model).result()
	assert.ErrorIs(t, err, ErrAborted)

	m, _ = press(newModel("items", options), "j", "enter")
	idx, err := m.(model).result()
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}
