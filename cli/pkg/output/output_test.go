package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func init() {
	color.NoColor = true
}

func newPrinter(format Format) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(&out, &errOut, format), &out, &errOut
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"", FormatTable, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestSuccess(t *testing.T) {
	p, out, _ := newPrinter(FormatTable)
	p.Success("Blocked %s", "de:ad:be:ef:00:01")

	assert.Contains(t, out.String(), "✓")
	assert.Contains(t, out.String(), "Blocked de:ad:be:ef:00:01")
}

func TestError(t *testing.T) {
	p, out, errOut := newPrinter(FormatTable)
	p.Error("Failed to connect to %s on port %d", "enforcer", 9000)

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "✗")
	assert.Contains(t, errOut.String(), "Failed to connect to enforcer on port 9000")
}

func TestInfoAndWarn(t *testing.T) {
	p, out, _ := newPrinter(FormatTable)
	p.Info("MAC %s: NOT BLOCKED", "aa:bb:cc:dd:ee:ff")
	p.Warn("%s was not in the blocklist", "aa:bb:cc:dd:ee:ff")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "MAC aa:bb:cc:dd:ee:ff: NOT BLOCKED", lines[0])
	assert.Equal(t, "⚠ aa:bb:cc:dd:ee:ff was not in the blocklist", lines[1])
}

func TestJSON_Indented(t *testing.T) {
	p, out, _ := newPrinter(FormatJSON)
	require.NoError(t, p.JSON(map[string]any{"blocked_macs": []string{"aa:bb:cc:dd:ee:ff"}, "total": 1}))

	assert.Contains(t, out.String(), "  \"total\": 1")
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &parsed))
	assert.Equal(t, float64(1), parsed["total"])
}

func TestStructured(t *testing.T) {
	type result struct {
		MAC     string `json:"mac" yaml:"mac"`
		Blocked bool   `json:"blocked" yaml:"blocked"`
	}
	v := result{MAC: "aa:bb:cc:dd:ee:ff", Blocked: true}

	t.Run("json", func(t *testing.T) {
		p, out, _ := newPrinter(FormatJSON)
		handled, err := p.Structured(v)
		require.NoError(t, err)
		assert.True(t, handled)
		assert.JSONEq(t, `{"mac":"aa:bb:cc:dd:ee:ff","blocked":true}`, out.String())
	})

	t.Run("yaml", func(t *testing.T) {
		p, out, _ := newPrinter(FormatYAML)
		handled, err := p.Structured(v)
		require.NoError(t, err)
		assert.True(t, handled)

		var parsed result
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &parsed))
		assert.Equal(t, v, parsed)
	})

	t.Run("table", func(t *testing.T) {
		p, out, _ := newPrinter(FormatTable)
		handled, err := p.Structured(v)
		require.NoError(t, err)
		assert.False(t, handled)
		assert.Empty(t, out.String())
	})
}

func TestTable_Render_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewTable([]string{"#", "MAC"}).Render(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "MAC")
	assert.Contains(t, lines[1], "---")
}

func TestTable_Render_ColumnAlignment(t *testing.T) {
	table := NewTable([]string{"#", "MAC"})
	table.AddRow([]string{"1", "aa:bb:cc:dd:ee:ff"})
	table.AddRow([]string{"10", "de:ad:be:ef:00:01"})

	var buf bytes.Buffer
	table.Render(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "#   MAC                ", lines[0])
	assert.Equal(t, "--  -----------------  ", lines[1])
	assert.Equal(t, "1   aa:bb:cc:dd:ee:ff  ", lines[2])
	assert.Equal(t, "10  de:ad:be:ef:00:01  ", lines[3])
}

func TestTable_Render_ShortRows(t *testing.T) {
	table := NewTable([]string{"Name", "Value"})
	table.AddRow([]string{"only"})
	table.AddRow([]string{"a", "b", "extra"})

	var buf bytes.Buffer
	table.Render(&buf)

	assert.Contains(t, buf.String(), "only")
	assert.NotContains(t, buf.String(), "extra")
}
