package tools

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xiaot623/docpilot/internal/document"
)

const (
	maxListLimit   = 200
	maxTableRows   = 100
	maxTableCols   = 20
	maxSearchLimit = 100
)

// Revisioned is embedded by write tool arguments.
type Revisioned struct {
	ExpectedRevision *int64 `json:"expected_revision,omitempty"`
}

func (r Revisioned) check() []string {
	if r.ExpectedRevision != nil && *r.ExpectedRevision < 0 {
		return []string{"expected_revision: must be >= 0"}
	}
	return nil
}

// ListElementsArgs are the arguments of list_elements.
type ListElementsArgs struct {
	Type   string `json:"type,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (a *ListElementsArgs) check() []string {
	var problems []string
	switch document.ElementType(a.Type) {
	case "", document.ElementParagraph, document.ElementTable, document.ElementImage:
	default:
		problems = append(problems, fmt.Sprintf("type: unknown element type %q", a.Type))
	}
	if a.Offset < 0 {
		problems = append(problems, "offset: must be >= 0")
	}
	if a.Limit < 0 || a.Limit > maxListLimit {
		problems = append(problems, fmt.Sprintf("limit: must be between 0 and %d", maxListLimit))
	}
	return problems
}

// GetElementArgs are the arguments of get_element.
type GetElementArgs struct {
	ID string `json:"id"`
}

func (a *GetElementArgs) check() []string {
	return checkID("id", a.ID, IsElementID, "an element")
}

// SearchTextArgs are the arguments of search_text.
type SearchTextArgs struct {
	Query         string `json:"query"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

func (a *SearchTextArgs) check() []string {
	var problems []string
	if strings.TrimSpace(a.Query) == "" {
		problems = append(problems, "query: required")
	}
	if a.Limit < 0 || a.Limit > maxSearchLimit {
		problems = append(problems, fmt.Sprintf("limit: must be between 0 and %d", maxSearchLimit))
	}
	return problems
}

// ScrollToElementArgs are the arguments of scroll_to_element.
type ScrollToElementArgs struct {
	ID string `json:"id"`
}

func (a *ScrollToElementArgs) check() []string {
	return checkID("id", a.ID, IsElementID, "an element")
}

// AddParagraphArgs are the arguments of add_paragraph.
type AddParagraphArgs struct {
	Revisioned
	Text    string         `json:"text"`
	AfterID string         `json:"after_id,omitempty"`
	Style   document.Style `json:"style,omitempty"`
}

func (a *AddParagraphArgs) check() []string {
	problems := a.Revisioned.check()
	if a.AfterID != "" {
		problems = append(problems, checkID("after_id", a.AfterID, IsBlockID, "a paragraph, table or image")...)
	}
	return problems
}

// TextRange replaces the runes in [Start, End) of a paragraph.
type TextRange struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// ReplaceParagraphArgs are the arguments of replace_paragraph. Exactly one of
// Text and Range must be set.
type ReplaceParagraphArgs struct {
	Revisioned
	ID    string     `json:"id"`
	Text  *string    `json:"text,omitempty"`
	Range *TextRange `json:"range,omitempty"`
}

func (a *ReplaceParagraphArgs) check() []string {
	problems := a.Revisioned.check()
	problems = append(problems, checkID("id", a.ID, IsParagraphID, "a paragraph")...)
	switch {
	case a.Text != nil && a.Range != nil:
		problems = append(problems, "text, range: specify exactly one of a full replacement or a range edit, not both")
	case a.Text == nil && a.Range == nil:
		problems = append(problems, "text, range: specify exactly one of a full replacement or a range edit")
	case a.Range != nil:
		if a.Range.Start < 0 {
			problems = append(problems, "range.start: must be >= 0")
		}
		if a.Range.Start > a.Range.End {
			problems = append(problems, fmt.Sprintf("range: start (%d) must be <= end (%d)", a.Range.Start, a.Range.End))
		}
	}
	return problems
}

// DeleteElementArgs are the arguments of delete_paragraph, delete_table and delete_image.
type DeleteElementArgs struct {
	Revisioned
	ID string `json:"id"`
}

// SetTextStyleArgs are the arguments of set_text_style.
type SetTextStyleArgs struct {
	Revisioned
	IDs   []string            `json:"ids"`
	Style document.StylePatch `json:"style"`
}

func (a *SetTextStyleArgs) check() []string {
	problems := a.Revisioned.check()
	if len(a.IDs) == 0 {
		problems = append(problems, "ids: at least one id is required")
	}
	for i, id := range a.IDs {
		problems = append(problems, checkID(fmt.Sprintf("ids[%d]", i), id, IsStyleTargetID, "a paragraph, inline text, table cell or table row")...)
	}
	if a.Style.Empty() {
		problems = append(problems, "style: at least one property is required")
	}
	return problems
}

// AddTableArgs are the arguments of add_table.
type AddTableArgs struct {
	Revisioned
	Rows       int        `json:"rows"`
	Cols       int        `json:"cols"`
	Data       [][]string `json:"data,omitempty"`
	HeaderRows int        `json:"header_rows,omitempty"`
	AfterID    string     `json:"after_id,omitempty"`
}

func (a *AddTableArgs) check() []string {
	problems := a.Revisioned.check()
	if a.Rows < 1 || a.Rows > maxTableRows {
		problems = append(problems, fmt.Sprintf("rows: must be between 1 and %d", maxTableRows))
	}
	if a.Cols < 1 || a.Cols > maxTableCols {
		problems = append(problems, fmt.Sprintf("cols: must be between 1 and %d", maxTableCols))
	}
	if len(a.Data) > a.Rows {
		problems = append(problems, fmt.Sprintf("data: has %d rows, table has %d", len(a.Data), a.Rows))
	}
	for i, row := range a.Data {
		if len(row) > a.Cols {
			problems = append(problems, fmt.Sprintf("data[%d]: has %d cells, table has %d columns", i, len(row), a.Cols))
		}
	}
	if a.HeaderRows < 0 || a.HeaderRows > a.Rows {
		problems = append(problems, "header_rows: must be between 0 and rows")
	}
	if a.AfterID != "" {
		problems = append(problems, checkID("after_id", a.AfterID, IsBlockID, "a paragraph, table or image")...)
	}
	return problems
}

// UpdateTableCellArgs are the arguments of update_table_cell.
type UpdateTableCellArgs struct {
	Revisioned
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (a *UpdateTableCellArgs) check() []string {
	problems := a.Revisioned.check()
	return append(problems, checkID("id", a.ID, IsTableCellID, "a table cell")...)
}

// SetTableHeaderStyleArgs are the arguments of set_table_header_style.
type SetTableHeaderStyleArgs struct {
	Revisioned
	TableIDs   []string            `json:"table_ids"`
	Style      document.StylePatch `json:"style"`
	HeaderRows *int                `json:"header_rows,omitempty"`
}

func (a *SetTableHeaderStyleArgs) check() []string {
	problems := a.Revisioned.check()
	if len(a.TableIDs) == 0 {
		problems = append(problems, "table_ids: at least one id is required")
	}
	for i, id := range a.TableIDs {
		problems = append(problems, checkID(fmt.Sprintf("table_ids[%d]", i), id, IsTableID, "a table")...)
	}
	if a.Style.Empty() && a.HeaderRows == nil {
		problems = append(problems, "style: at least one property or header_rows is required")
	}
	if a.HeaderRows != nil && *a.HeaderRows < 0 {
		problems = append(problems, "header_rows: must be >= 0")
	}
	return problems
}

// AddImageArgs are the arguments of add_image.
type AddImageArgs struct {
	Revisioned
	Src     string `json:"src"`
	Alt     string `json:"alt,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	AfterID string `json:"after_id,omitempty"`
}

func (a *AddImageArgs) check() []string {
	problems := a.Revisioned.check()
	if !validImageSource(a.Src) {
		problems = append(problems, "src: must be an http(s) or data URL")
	}
	if a.Width < 0 || a.Height < 0 {
		problems = append(problems, "width, height: must be >= 0")
	}
	if a.AfterID != "" {
		problems = append(problems, checkID("after_id", a.AfterID, IsBlockID, "a paragraph, table or image")...)
	}
	return problems
}

func validImageSource(src string) bool {
	if strings.HasPrefix(src, "data:image/") {
		return true
	}
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func checkID(field, id string, valid func(string) bool, what string) []string {
	if id == "" {
		return []string{field + ": required"}
	}
	if !valid(id) {
		return []string{fmt.Sprintf("%s: %q is not %s id", field, id, what)}
	}
	return nil
}
