package tools

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/xiaot623/docpilot/internal/document"
	"github.com/xiaot623/docpilot/internal/domain"
)

const previewRunes = 120

var catalogue = [toolCount]Tool{
	define(ListElements, domain.ToolKindRead,
		"List the top-level elements of the document in order, with a short text preview.",
		`{"type":"object","properties":{"type":{"type":"string","enum":["paragraph","table","image"]},"offset":{"type":"integer","minimum":0},"limit":{"type":"integer","minimum":0,"maximum":200}},"additionalProperties":false}`,
		(*ListElementsArgs).check, listElements),
	define(GetElement, domain.ToolKindRead,
		"Return the full content of a paragraph, inline text run, table, row, cell or image.",
		`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"],"additionalProperties":false}`,
		(*GetElementArgs).check, getElement),
	define(SearchText, domain.ToolKindRead,
		"Find text in paragraphs and table cells.",
		`{"type":"object","properties":{"query":{"type":"string"},"case_sensitive":{"type":"boolean"},"limit":{"type":"integer","minimum":0,"maximum":100}},"required":["query"],"additionalProperties":false}`,
		(*SearchTextArgs).check, searchText),
	define(ScrollToElement, domain.ToolKindRead,
		"Scroll the editor so the element is visible.",
		`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"],"additionalProperties":false}`,
		(*ScrollToElementArgs).check, scrollToElement),
	define(AddParagraph, domain.ToolKindWrite,
		"Insert a paragraph after an element, or at the end of the document.",
		`{"type":"object","properties":{"text":{"type":"string"},"after_id":{"type":"string"},"style":{"$ref":"#/$defs/style"},"expected_revision":{"type":"integer"}},"required":["text"],"additionalProperties":false,"$defs":{"style":`+styleSchema+`}}`,
		(*AddParagraphArgs).check, addParagraph),
	define(ReplaceParagraph, domain.ToolKindWrite,
		"Replace the whole text of a paragraph (text) or a rune range of it (range); give exactly one.",
		`{"type":"object","properties":{"id":{"type":"string"},"text":{"type":"string"},"range":{"type":"object","properties":{"start":{"type":"integer","minimum":0},"end":{"type":"integer","minimum":0},"text":{"type":"string"}},"required":["start","end","text"]},"expected_revision":{"type":"integer"}},"required":["id"],"additionalProperties":false}`,
		(*ReplaceParagraphArgs).check, replaceParagraph),
	define(DeleteParagraph, domain.ToolKindWrite,
		"Delete a paragraph.",
		deleteSchema,
		deleteCheck(IsParagraphID, "a paragraph"), deleteElement(document.ElementParagraph)),
	define(SetTextStyle, domain.ToolKindWrite,
		"Apply character style to paragraphs, inline text runs, table rows or table cells.",
		`{"type":"object","properties":{"ids":{"type":"array","items":{"type":"string"},"minItems":1},"style":`+styleSchema+`,"expected_revision":{"type":"integer"}},"required":["ids","style"],"additionalProperties":false}`,
		(*SetTextStyleArgs).check, setTextStyle),
	define(AddTable, domain.ToolKindWrite,
		"Insert a table with optional initial cell text.",
		`{"type":"object","properties":{"rows":{"type":"integer","minimum":1},"cols":{"type":"integer","minimum":1},"data":{"type":"array","items":{"type":"array","items":{"type":"string"}}},"header_rows":{"type":"integer","minimum":0},"after_id":{"type":"string"},"expected_revision":{"type":"integer"}},"required":["rows","cols"],"additionalProperties":false}`,
		(*AddTableArgs).check, addTable),
	define(UpdateTableCell, domain.ToolKindWrite,
		"Replace the text of a table cell.",
		`{"type":"object","properties":{"id":{"type":"string"},"text":{"type":"string"},"expected_revision":{"type":"integer"}},"required":["id","text"],"additionalProperties":false}`,
		(*UpdateTableCellArgs).check, updateTableCell),
	define(SetTableHeaderStyle, domain.ToolKindWrite,
		"Style the header rows of tables and optionally change how many rows form the header.",
		`{"type":"object","properties":{"table_ids":{"type":"array","items":{"type":"string"},"minItems":1},"style":`+styleSchema+`,"header_rows":{"type":"integer","minimum":0},"expected_revision":{"type":"integer"}},"required":["table_ids"],"additionalProperties":false}`,
		(*SetTableHeaderStyleArgs).check, setTableHeaderStyle),
	define(DeleteTable, domain.ToolKindWrite,
		"Delete a table.",
		deleteSchema,
		deleteCheck(IsTableID, "a table"), deleteElement(document.ElementTable)),
	define(AddImage, domain.ToolKindWrite,
		"Insert an image from an http(s) or data URL.",
		`{"type":"object","properties":{"src":{"type":"string"},"alt":{"type":"string"},"width":{"type":"integer","minimum":0},"height":{"type":"integer","minimum":0},"after_id":{"type":"string"},"expected_revision":{"type":"integer"}},"required":["src"],"additionalProperties":false}`,
		(*AddImageArgs).check, addImage),
	define(DeleteImage, domain.ToolKindWrite,
		"Delete an image.",
		deleteSchema,
		deleteCheck(IsImageID, "an image"), deleteElement(document.ElementImage)),
}

const styleSchema = `{"type":"object","properties":{"bold":{"type":"boolean"},"italic":{"type":"boolean"},"underline":{"type":"boolean"},"color":{"type":"string"},"font_size":{"type":"number"},"align":{"type":"string","enum":["left","center","right","justify"]},"fill":{"type":"string"}},"additionalProperties":false}`

const deleteSchema = `{"type":"object","properties":{"id":{"type":"string"},"expected_revision":{"type":"integer"}},"required":["id"],"additionalProperties":false}`

// ElementSummary is one entry of a list_elements result.
type ElementSummary struct {
	ID   string               `json:"id"`
	Type document.ElementType `json:"type"`
	Text string               `json:"text,omitempty"`
	Rows int                  `json:"rows,omitempty"`
	Cols int                  `json:"cols,omitempty"`
	Src  string               `json:"src,omitempty"`
}

// SearchMatch is one hit of a search_text result.
type SearchMatch struct {
	ID      string `json:"id"`
	Offset  int    `json:"offset"`
	Snippet string `json:"snippet"`
}

// EditSummary counts the runes a paragraph edit inserted and deleted.
type EditSummary struct {
	Inserted int `json:"inserted"`
	Deleted  int `json:"deleted"`
}

type writeResult struct {
	OK       bool         `json:"ok"`
	ID       string       `json:"id,omitempty"`
	IDs      []string     `json:"ids,omitempty"`
	Revision int64        `json:"revision"`
	Text     string       `json:"text,omitempty"`
	Changes  *EditSummary `json:"changes,omitempty"`
}

func committed(tx *document.Tx, id string) writeResult {
	return writeResult{OK: true, ID: id, Revision: tx.Doc.Revision + 1}
}

func listElements(tx *document.Tx, args *ListElementsArgs) (any, error) {
	var all []ElementSummary
	for _, el := range tx.Doc.Elements {
		if args.Type != "" && el.Type != document.ElementType(args.Type) {
			continue
		}
		all = append(all, summarize(el))
	}

	total := len(all)
	start := min(args.Offset, total)
	end := total
	if args.Limit > 0 {
		end = min(start+args.Limit, total)
	}
	page := all[start:end]
	if page == nil {
		page = []ElementSummary{}
	}
	return map[string]any{
		"revision": tx.Doc.Revision,
		"total":    total,
		"elements": page,
	}, nil
}

func summarize(el *document.Element) ElementSummary {
	s := ElementSummary{ID: el.ID(), Type: el.Type}
	switch el.Type {
	case document.ElementParagraph:
		s.Text = preview(el.Paragraph.Text())
	case document.ElementTable:
		s.Rows = len(el.Table.Rows)
		if s.Rows > 0 {
			s.Cols = len(el.Table.Rows[0].Cells)
		}
	case document.ElementImage:
		s.Src = preview(el.Image.Src)
		s.Text = el.Image.Alt
	}
	return s
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "…"
}

func getElement(tx *document.Tx, args *GetElementArgs) (any, error) {
	doc := tx.Doc
	out := map[string]any{"id": args.ID, "revision": doc.Revision}
	switch {
	case IsParagraphID(args.ID):
		p, err := doc.Paragraph(args.ID)
		if err != nil {
			return nil, err
		}
		out["type"], out["paragraph"], out["text"] = document.ElementParagraph, p, p.Text()
	case IsTableID(args.ID):
		t, err := doc.Table(args.ID)
		if err != nil {
			return nil, err
		}
		out["type"], out["table"] = document.ElementTable, t
	case IsImageID(args.ID):
		idx := doc.IndexOf(args.ID)
		if idx < 0 || doc.Elements[idx].Type != document.ElementImage {
			return nil, document.ErrTargetNotFound
		}
		out["type"], out["image"] = document.ElementImage, doc.Elements[idx].Image
	case IsTextRunID(args.ID):
		run, err := doc.TextRun(args.ID)
		if err != nil {
			return nil, err
		}
		out["type"], out["run"] = "text_run", run
	case IsTableRowID(args.ID):
		row, err := doc.Row(args.ID)
		if err != nil {
			return nil, err
		}
		out["type"], out["row"] = "table_row", row
	default:
		cell, err := doc.Cell(args.ID)
		if err != nil {
			return nil, err
		}
		out["type"], out["cell"] = "table_cell", cell
	}
	return out, nil
}

func searchText(tx *document.Tx, args *SearchTextArgs) (any, error) {
	limit := args.Limit
	if limit == 0 {
		limit = 20
	}
	queryRunes := utf8.RuneCountInString(args.Query)

	// Matching walks the original text rune by rune, so offsets and snippets
	// stay aligned even where lowercasing would change a rune's byte length.
	matches := []SearchMatch{}
	scan := func(id, text string) bool {
		at, offset := 0, 0
		for at < len(text) {
			if len(matches) >= limit {
				return false
			}
			end := at
			for n := 0; n < queryRunes && end < len(text); n++ {
				_, size := utf8.DecodeRuneInString(text[end:])
				end += size
			}
			if utf8.RuneCountInString(text[at:end]) < queryRunes {
				return true
			}
			window := text[at:end]
			if window == args.Query || (!args.CaseSensitive && strings.EqualFold(window, args.Query)) {
				matches = append(matches, SearchMatch{
					ID:      id,
					Offset:  offset,
					Snippet: snippet(text, at, len(window)),
				})
				at, offset = end, offset+queryRunes
				continue
			}
			_, size := utf8.DecodeRuneInString(text[at:])
			at += size
			offset++
		}
		return len(matches) < limit
	}

	for _, el := range tx.Doc.Elements {
		switch el.Type {
		case document.ElementParagraph:
			if !scan(el.Paragraph.ID, el.Paragraph.Text()) {
				return searchResult(args, matches), nil
			}
		case document.ElementTable:
			for _, row := range el.Table.Rows {
				for _, cell := range row.Cells {
					if !scan(cell.ID, cell.Text) {
						return searchResult(args, matches), nil
					}
				}
			}
		}
	}
	return searchResult(args, matches), nil
}

func searchResult(args *SearchTextArgs, matches []SearchMatch) map[string]any {
	return map[string]any{"query": args.Query, "matches": matches}
}

func snippet(text string, at, n int) string {
	const around = 30
	end := min(len(text), at+n+around)
	start := min(max(0, at-around), end)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return text[start:end]
}

func scrollToElement(tx *document.Tx, args *ScrollToElementArgs) (any, error) {
	if !tx.Doc.Contains(args.ID) {
		return nil, document.ErrTargetNotFound
	}
	tx.View.Focus = args.ID
	return map[string]any{"ok": true, "focus": args.ID}, nil
}

func addParagraph(tx *document.Tx, args *AddParagraphArgs) (any, error) {
	p := tx.Doc.NewParagraph(args.Text, args.Style)
	if err := tx.Doc.Insert(&document.Element{Type: document.ElementParagraph, Paragraph: p}, args.AfterID); err != nil {
		return nil, err
	}
	return committed(tx, p.ID), nil
}

func replaceParagraph(tx *document.Tx, args *ReplaceParagraphArgs) (any, error) {
	p, err := tx.Doc.Paragraph(args.ID)
	if err != nil {
		return nil, err
	}
	before := p.Text()
	if args.Text != nil {
		p.SetText(*args.Text)
	} else if err := p.ReplaceRange(args.Range.Start, args.Range.End, args.Range.Text); err != nil {
		return nil, err
	}

	res := committed(tx, p.ID)
	res.Text = p.Text()
	res.Changes = summarizeEdit(before, res.Text)
	return res, nil
}

func summarizeEdit(before, after string) *EditSummary {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	var s EditSummary
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			s.Inserted += utf8.RuneCountInString(d.Text)
		case diffmatchpatch.DiffDelete:
			s.Deleted += utf8.RuneCountInString(d.Text)
		}
	}
	return &s
}

func deleteCheck(valid func(string) bool, what string) func(*DeleteElementArgs) []string {
	return func(a *DeleteElementArgs) []string {
		return append(a.Revisioned.check(), checkID("id", a.ID, valid, what)...)
	}
}

func deleteElement(typ document.ElementType) func(*document.Tx, *DeleteElementArgs) (any, error) {
	return func(tx *document.Tx, args *DeleteElementArgs) (any, error) {
		if err := tx.Doc.Remove(args.ID, typ); err != nil {
			return nil, err
		}
		if tx.View.Focus == args.ID {
			tx.View.Focus = ""
		}
		return committed(tx, args.ID), nil
	}
}

func setTextStyle(tx *document.Tx, args *SetTextStyleArgs) (any, error) {
	doc := tx.Doc
	for _, id := range args.IDs {
		switch {
		case IsParagraphID(id):
			p, err := doc.Paragraph(id)
			if err != nil {
				return nil, err
			}
			for _, run := range p.Runs {
				args.Style.Apply(&run.Style)
			}
		case IsTextRunID(id):
			run, err := doc.TextRun(id)
			if err != nil {
				return nil, err
			}
			args.Style.Apply(&run.Style)
		case IsTableRowID(id):
			row, err := doc.Row(id)
			if err != nil {
				return nil, err
			}
			for _, cell := range row.Cells {
				args.Style.Apply(&cell.Style)
			}
		default:
			cell, err := doc.Cell(id)
			if err != nil {
				return nil, err
			}
			args.Style.Apply(&cell.Style)
		}
	}
	res := committed(tx, "")
	res.IDs = args.IDs
	return res, nil
}

func addTable(tx *document.Tx, args *AddTableArgs) (any, error) {
	t := tx.Doc.NewTable(args.Rows, args.Cols, args.Data, args.HeaderRows)
	if err := tx.Doc.Insert(&document.Element{Type: document.ElementTable, Table: t}, args.AfterID); err != nil {
		return nil, err
	}
	return committed(tx, t.ID), nil
}

func updateTableCell(tx *document.Tx, args *UpdateTableCellArgs) (any, error) {
	cell, err := tx.Doc.Cell(args.ID)
	if err != nil {
		return nil, err
	}
	cell.Text = args.Text
	return committed(tx, cell.ID), nil
}

func setTableHeaderStyle(tx *document.Tx, args *SetTableHeaderStyleArgs) (any, error) {
	for _, id := range args.TableIDs {
		t, err := tx.Doc.Table(id)
		if err != nil {
			return nil, err
		}
		if args.HeaderRows != nil {
			t.HeaderRows = min(*args.HeaderRows, len(t.Rows))
		}
		args.Style.Apply(&t.HeaderStyle)
		for _, row := range t.Rows[:t.HeaderRows] {
			for _, cell := range row.Cells {
				args.Style.Apply(&cell.Style)
			}
		}
	}
	res := committed(tx, "")
	res.IDs = args.TableIDs
	return res, nil
}

func addImage(tx *document.Tx, args *AddImageArgs) (any, error) {
	img := tx.Doc.NewImage(args.Src, args.Alt, args.Width, args.Height)
	if err := tx.Doc.Insert(&document.Element{Type: document.ElementImage, Image: img}, args.AfterID); err != nil {
		return nil, err
	}
	return committed(tx, img.ID), nil
}
