package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"enrollment_id", "course", "status"},
		Rows: []map[string]string{
			{"enrollment_id": "e1", "course": "C101", "status": "ACTIVE"},
			{"enrollment_id": "e2", "course": "Intro, Part 2", "status": "DROPPED"},
		},
	}

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "enrollment_id,course,status", lines[0])
	assert.Equal(t, `e2,"Intro, Part 2",DROPPED`, lines[2])
}

func TestCSVExporterNeutralizesFormulas(t *testing.T) {
	data := Dataset{
		Headers: []string{"person", "amount"},
		Rows:    []map[string]string{{"person": "=HYPERLINK(\"x\")", "amount": "500.00"}, {"person": "@sum", "amount": ""}},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, NewCSVExporter().Write(buf, data))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"'=HYPERLINK(""x"")",500.00`, lines[1])
	assert.Equal(t, "'@sum,", lines[2])
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRenderDocument(t *testing.T) {
	out, err := NewPDFExporter().RenderDocument(Document{
		Title:  "Payment receipt",
		Fields: []Field{{Label: "Amount", Value: "500.00"}, {Label: "Method", Value: "Credit Card"}},
		Footer: "Keep this receipt for your records.",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().RenderDocument(Document{Title: "empty"})
	assert.Error(t, err)
}

func TestPDFExporterRenderTable(t *testing.T) {
	out, err := NewPDFExporter().Render(Dataset{Headers: []string{"a"}, Rows: []map[string]string{{"a": "1"}}}, "table")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
