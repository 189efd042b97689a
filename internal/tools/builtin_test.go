package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/docpilot/internal/document"
	"github.com/xiaot623/docpilot/internal/domain"
)

func call(name, args string) domain.ToolCall {
	return domain.ToolCall{ID: "call_" + name, Name: name, Args: json.RawMessage(args)}
}

func exec(t *testing.T, rt document.Runtime, name, args string) map[string]any {
	t.Helper()
	raw, err := Execute(context.Background(), rt, call(name, args))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestListElements(t *testing.T) {
	mem := document.NewMemory(document.New("alpha", "beta", "gamma"))
	out := exec(t, mem, ListElements, `{"offset":1,"limit":1}`)

	assert.EqualValues(t, 3, out["total"])
	elements := out["elements"].([]any)
	require.Len(t, elements, 1)
	assert.Equal(t, "p2", elements[0].(map[string]any)["id"])
	assert.Equal(t, "beta", elements[0].(map[string]any)["text"])
}

func TestReadToolsDoNotChangeRevision(t *testing.T) {
	mem := document.NewMemory(document.New("alpha"))
	exec(t, mem, SearchText, `{"query":"ALP"}`)
	exec(t, mem, ScrollToElement, `{"id":"p1"}`)

	assert.Equal(t, int64(0), mem.Document().Revision)
	assert.Equal(t, "p1", mem.View().Focus)
}

func TestSearchTextFindsParagraphsAndCells(t *testing.T) {
	mem := document.NewMemory(document.New("the quarterly report", "nothing here"))
	exec(t, mem, AddTable, `{"rows":1,"cols":2,"data":[["Report total","42"]]}`)

	out := exec(t, mem, SearchText, `{"query":"report"}`)
	matches := out["matches"].([]any)
	require.Len(t, matches, 2)
	assert.Equal(t, "p1", matches[0].(map[string]any)["id"])
	assert.EqualValues(t, 14, matches[0].(map[string]any)["offset"])
	assert.Equal(t, "t1.r1.c1", matches[1].(map[string]any)["id"])

	out = exec(t, mem, SearchText, `{"query":"report","case_sensitive":true}`)
	assert.Len(t, out["matches"].([]any), 1)
}

func TestSearchTextOffsetsIgnoreCaseFoldingWidth(t *testing.T) {
	// İ lowercases to three bytes and the Kelvin sign to one.
	text := strings.Repeat("İ", 40) + " match \u212Aelvin"
	mem := document.NewMemory(document.New(text))

	out := exec(t, mem, SearchText, `{"query":"MATCH"}`)
	matches := out["matches"].([]any)
	require.Len(t, matches, 1)
	first := matches[0].(map[string]any)
	assert.EqualValues(t, 41, first["offset"])
	assert.Contains(t, first["snippet"], "match")

	out = exec(t, mem, SearchText, `{"query":"kelvin"}`)
	matches = out["matches"].([]any)
	require.Len(t, matches, 1)
	assert.EqualValues(t, 47, matches[0].(map[string]any)["offset"])
	assert.Contains(t, matches[0].(map[string]any)["snippet"], "\u212Aelvin")

	out = exec(t, mem, SearchText, `{"query":"kelvin","case_sensitive":true}`)
	assert.Empty(t, out["matches"].([]any))
}

func TestAddAndReplaceParagraph(t *testing.T) {
	mem := document.NewMemory(document.New("first"))
	out := exec(t, mem, AddParagraph, `{"text":"second","after_id":"p1"}`)
	assert.Equal(t, "p2", out["id"])
	assert.EqualValues(t, 1, out["revision"])

	out = exec(t, mem, ReplaceParagraph, `{"id":"p2","range":{"start":0,"end":3,"text":"thi"},"expected_revision":1}`)
	assert.Equal(t, "thiond", out["text"])
	changes := out["changes"].(map[string]any)
	assert.EqualValues(t, 3, changes["inserted"])
	assert.EqualValues(t, 3, changes["deleted"])
	assert.Equal(t, int64(2), mem.Document().Revision)
}

func TestWriteToMissingTargetFails(t *testing.T) {
	mem := document.NewMemory(document.New("only"))
	_, err := Execute(context.Background(), mem, call(ReplaceParagraph, `{"id":"p9","text":"x"}`))
	require.ErrorIs(t, err, document.ErrTargetNotFound)
	assert.Equal(t, "Target not found", err.Error())
	assert.Equal(t, int64(0), mem.Document().Revision)
}

func TestExpectedRevisionMismatch(t *testing.T) {
	mem := document.NewMemory(document.New("only"))
	_, err := Execute(context.Background(), mem, call(DeleteParagraph, `{"id":"p1","expected_revision":3}`))
	require.Error(t, err)
	assert.Equal(t, domain.CodeRevisionMismatch, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "expected 3, document is at 0")
	assert.Len(t, mem.Document().Elements, 1)
}

func TestTableTools(t *testing.T) {
	mem := document.NewMemory(document.New("intro"))
	exec(t, mem, AddTable, `{"rows":2,"cols":2,"header_rows":1,"data":[["Name","Qty"]]}`)
	exec(t, mem, UpdateTableCell, `{"id":"t1.r2.c2","text":"7"}`)
	exec(t, mem, SetTableHeaderStyle, `{"table_ids":["t1"],"style":{"bold":true,"fill":"#eee"}}`)

	doc := mem.Document()
	table, err := doc.Table("t1")
	require.NoError(t, err)
	assert.Equal(t, "7", table.Rows[1].Cells[1].Text)
	assert.True(t, table.HeaderStyle.Bold)
	assert.True(t, table.Rows[0].Cells[0].Style.Bold)
	assert.False(t, table.Rows[1].Cells[0].Style.Bold)

	exec(t, mem, DeleteTable, `{"id":"t1"}`)
	_, err = mem.Document().Table("t1")
	assert.ErrorIs(t, err, document.ErrTargetNotFound)
}

func TestSetTextStyleOnRunsRowsAndCells(t *testing.T) {
	mem := document.NewMemory(document.New("styled"))
	exec(t, mem, AddTable, `{"rows":1,"cols":2}`)
	exec(t, mem, SetTextStyle, `{"ids":["p1","t1.r1"],"style":{"italic":true,"color":"#f00"}}`)

	doc := mem.Document()
	p, _ := doc.Paragraph("p1")
	assert.True(t, p.Runs[0].Style.Italic)
	cell, _ := doc.Cell("t1.r1.c2")
	assert.Equal(t, "#f00", cell.Style.Color)
}

func TestImageTools(t *testing.T) {
	mem := document.NewMemory(document.New("caption"))
	out := exec(t, mem, AddImage, `{"src":"https://example.com/a.png","alt":"chart","after_id":"p1"}`)
	assert.Equal(t, "img1", out["id"])

	got := exec(t, mem, GetElement, `{"id":"img1"}`)
	assert.Equal(t, "image", got["type"])

	exec(t, mem, DeleteImage, `{"id":"img1"}`)
	_, err := Execute(context.Background(), mem, call(DeleteImage, `{"id":"img1"}`))
	assert.ErrorIs(t, err, document.ErrTargetNotFound)

	_, err = Validate(AddImage, json.RawMessage(`{"src":"ftp://x/y.png"}`))
	assert.Error(t, err)
}
