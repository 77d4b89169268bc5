package formatter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvoll/timelinehub/internal/core/model"
	"github.com/rvoll/timelinehub/internal/util"
)

func sampleView() View {
	return View{
		URI: "file:///repo",
		Items: []model.Item{
			{Handle: "g1", Timestamp: 1700000000000, Label: "commit", Description: "fix parser", Source: "git", ContextTag: "main"},
			{Handle: "f1", Timestamp: 1600000000000, Label: "saved", Source: "feed"},
		},
		HasMore: map[string]bool{"git": true, "feed": false},
	}
}

func TestTableFormat(t *testing.T) {
	require.NoError(t, util.InitializeTimeProvider("UTC"))

	var buf bytes.Buffer
	f := NewTableFormatter(&buf)
	require.NoError(t, f.Format(sampleView()))

	out := buf.String()
	assert.Contains(t, out, "Time")
	assert.Contains(t, out, "Source")
	assert.Contains(t, out, "commit")
	assert.Contains(t, out, "fix parser")
	assert.Contains(t, out, "git")
	assert.Contains(t, out, "2023-11-14 22:13:20")
	assert.Contains(t, out, "More items available from: git")
	assert.NotContains(t, out, "feed,", "exhausted sources must not be listed as pending")
}

func TestTableBordersAlign(t *testing.T) {
	require.NoError(t, util.InitializeTimeProvider("UTC"))

	var buf bytes.Buffer
	f := NewTableFormatter(&buf)
	require.NoError(t, f.Format(sampleView()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 5)

	width := util.GetDisplayWidth(lines[0])
	for i, line := range lines {
		if strings.HasPrefix(line, "More items") {
			continue
		}
		assert.Equal(t, width, util.GetDisplayWidth(line), "line %d has a different width", i)
	}
}

func TestTableEmptyView(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter(&buf)
	require.NoError(t, f.Format(View{URI: "file:///repo"}))

	out := buf.String()
	assert.Contains(t, out, "Time")
	assert.NotContains(t, out, "More items available")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(&buf)
	require.NoError(t, f.Format(sampleView()))

	var decoded View
	require.NoError(t, sonic.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "file:///repo", decoded.URI)
	require.Len(t, decoded.Items, 2)
	assert.Equal(t, "commit", decoded.Items[0].Label)
	assert.True(t, decoded.HasMore["git"])
}
