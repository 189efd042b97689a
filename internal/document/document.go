// Package document provides the in-memory document engine: an ordered list of
// paragraphs, tables and images addressed by stable identifiers.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrTargetNotFound is returned when an identifier does not address a live element.
var ErrTargetNotFound = errors.New("Target not found")

// ElementType is the kind of a top-level element.
type ElementType string

const (
	ElementParagraph ElementType = "paragraph"
	ElementTable     ElementType = "table"
	ElementImage     ElementType = "image"
)

// Style holds character and block formatting.
type Style struct {
	Bold      bool    `json:"bold,omitempty"`
	Italic    bool    `json:"italic,omitempty"`
	Underline bool    `json:"underline,omitempty"`
	Color     string  `json:"color,omitempty"`
	FontSize  float64 `json:"font_size,omitempty"`
	Align     string  `json:"align,omitempty"`
	Fill      string  `json:"fill,omitempty"`
}

// StylePatch changes only the fields that are set.
type StylePatch struct {
	Bold      *bool    `json:"bold,omitempty"`
	Italic    *bool    `json:"italic,omitempty"`
	Underline *bool    `json:"underline,omitempty"`
	Color     *string  `json:"color,omitempty"`
	FontSize  *float64 `json:"font_size,omitempty"`
	Align     *string  `json:"align,omitempty"`
	Fill      *string  `json:"fill,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p StylePatch) Empty() bool {
	return p.Bold == nil && p.Italic == nil && p.Underline == nil && p.Color == nil &&
		p.FontSize == nil && p.Align == nil && p.Fill == nil
}

// Apply applies the patch to s.
func (p StylePatch) Apply(s *Style) {
	if p.Bold != nil {
		s.Bold = *p.Bold
	}
	if p.Italic != nil {
		s.Italic = *p.Italic
	}
	if p.Underline != nil {
		s.Underline = *p.Underline
	}
	if p.Color != nil {
		s.Color = *p.Color
	}
	if p.FontSize != nil {
		s.FontSize = *p.FontSize
	}
	if p.Align != nil {
		s.Align = *p.Align
	}
	if p.Fill != nil {
		s.Fill = *p.Fill
	}
}

// TextRun is a span of uniformly styled text inside a paragraph.
type TextRun struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Style Style  `json:"style"`
}

// Paragraph is a block of text runs.
type Paragraph struct {
	ID      string     `json:"id"`
	Runs    []*TextRun `json:"runs"`
	Style   Style      `json:"style"`
	NextRun int        `json:"next_run"`
}

// Text returns the concatenated text of all runs.
func (p *Paragraph) Text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Length returns the number of runes in the paragraph text.
func (p *Paragraph) Length() int {
	return len([]rune(p.Text()))
}

func (p *Paragraph) newRun(text string, style Style) *TextRun {
	p.NextRun++
	return &TextRun{ID: fmt.Sprintf("%s.r%d", p.ID, p.NextRun), Text: text, Style: style}
}

// SetText replaces the paragraph content with a single run carrying the style of the first run.
func (p *Paragraph) SetText(text string) {
	var style Style
	if len(p.Runs) > 0 {
		style = p.Runs[0].Style
	}
	p.Runs = []*TextRun{p.newRun(text, style)}
}

// ReplaceRange replaces the runes in [start, end) with text. Offsets count
// runes of the paragraph text. Inserted text takes the style of the run where
// the edit starts.
func (p *Paragraph) ReplaceRange(start, end int, text string) error {
	total := p.Length()
	if start < 0 || end < start || end > total {
		return fmt.Errorf("range [%d, %d) is outside paragraph text of length %d", start, end, total)
	}
	if len(p.Runs) == 0 {
		p.Runs = []*TextRun{p.newRun(text, Style{})}
		return nil
	}

	inserted := false
	offset := 0
	kept := make([]*TextRun, 0, len(p.Runs))
	for i, run := range p.Runs {
		runes := []rune(run.Text)
		runStart, runEnd := offset, offset+len(runes)
		offset = runEnd

		var b strings.Builder
		if start > runStart {
			b.WriteString(string(runes[:min(start, runEnd)-runStart]))
		}
		last := i == len(p.Runs)-1
		if !inserted && (start < runEnd || (last && start == runEnd)) {
			b.WriteString(text)
			inserted = true
		}
		if end < runEnd {
			b.WriteString(string(runes[max(end, runStart)-runStart:]))
		}
		run.Text = b.String()
		if run.Text != "" {
			kept = append(kept, run)
		}
	}
	if len(kept) == 0 {
		first := p.Runs[0]
		first.Text = ""
		kept = append(kept, first)
	}
	p.Runs = kept
	return nil
}

// Cell is a table cell.
type Cell struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Style Style  `json:"style"`
}

// Row is a table row.
type Row struct {
	ID    string  `json:"id"`
	Cells []*Cell `json:"cells"`
	Style Style   `json:"style"`
}

// Table is a grid of cells. The first HeaderRows rows form the header.
type Table struct {
	ID          string `json:"id"`
	Rows        []*Row `json:"rows"`
	HeaderRows  int    `json:"header_rows"`
	HeaderStyle Style  `json:"header_style"`
}

// Image is an embedded picture.
type Image struct {
	ID     string `json:"id"`
	Src    string `json:"src"`
	Alt    string `json:"alt,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Element is a top-level document element; exactly one pointer is set.
type Element struct {
	Type      ElementType `json:"type"`
	Paragraph *Paragraph  `json:"paragraph,omitempty"`
	Table     *Table      `json:"table,omitempty"`
	Image     *Image      `json:"image,omitempty"`
}

// ID returns the element identifier.
func (e *Element) ID() string {
	switch e.Type {
	case ElementParagraph:
		return e.Paragraph.ID
	case ElementTable:
		return e.Table.ID
	case ElementImage:
		return e.Image.ID
	}
	return ""
}

// Document is the editable content.
type Document struct {
	Revision      int64      `json:"revision"`
	Elements      []*Element `json:"elements"`
	NextParagraph int        `json:"next_paragraph"`
	NextTable     int        `json:"next_table"`
	NextImage     int        `json:"next_image"`
}

// New returns a document holding one paragraph per text.
func New(paragraphs ...string) *Document {
	doc := &Document{Elements: []*Element{}}
	for _, text := range paragraphs {
		doc.Elements = append(doc.Elements, &Element{Type: ElementParagraph, Paragraph: doc.NewParagraph(text, Style{})})
	}
	return doc
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	data, err := json.Marshal(d)
	if err != nil {
		panic(fmt.Sprintf("document: clone: %v", err))
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("document: clone: %v", err))
	}
	return &out
}

// NewParagraph allocates a detached paragraph with a fresh identifier.
func (d *Document) NewParagraph(text string, style Style) *Paragraph {
	d.NextParagraph++
	p := &Paragraph{ID: fmt.Sprintf("p%d", d.NextParagraph), Style: style}
	p.Runs = []*TextRun{p.newRun(text, Style{})}
	return p
}

// NewTable allocates a detached table. data may be shorter than the grid.
func (d *Document) NewTable(rows, cols int, data [][]string, headerRows int) *Table {
	d.NextTable++
	t := &Table{ID: fmt.Sprintf("t%d", d.NextTable), HeaderRows: headerRows}
	for r := 0; r < rows; r++ {
		row := &Row{ID: fmt.Sprintf("%s.r%d", t.ID, r+1)}
		for c := 0; c < cols; c++ {
			cell := &Cell{ID: fmt.Sprintf("%s.c%d", row.ID, c+1)}
			if r < len(data) && c < len(data[r]) {
				cell.Text = data[r][c]
			}
			row.Cells = append(row.Cells, cell)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// NewImage allocates a detached image.
func (d *Document) NewImage(src, alt string, width, height int) *Image {
	d.NextImage++
	return &Image{ID: fmt.Sprintf("img%d", d.NextImage), Src: src, Alt: alt, Width: width, Height: height}
}

// IndexOf returns the position of the top-level element with id, or -1.
func (d *Document) IndexOf(id string) int {
	for i, el := range d.Elements {
		if el.ID() == id {
			return i
		}
	}
	return -1
}

// Insert places el after the element with afterID. An empty afterID appends.
func (d *Document) Insert(el *Element, afterID string) error {
	if afterID == "" {
		d.Elements = append(d.Elements, el)
		return nil
	}
	idx := d.IndexOf(afterID)
	if idx < 0 {
		return ErrTargetNotFound
	}
	d.Elements = append(d.Elements, nil)
	copy(d.Elements[idx+2:], d.Elements[idx+1:])
	d.Elements[idx+1] = el
	return nil
}

// Remove deletes the top-level element with id and expected type.
func (d *Document) Remove(id string, typ ElementType) error {
	idx := d.IndexOf(id)
	if idx < 0 || d.Elements[idx].Type != typ {
		return ErrTargetNotFound
	}
	d.Elements = append(d.Elements[:idx], d.Elements[idx+1:]...)
	return nil
}

// Paragraph returns the paragraph with id.
func (d *Document) Paragraph(id string) (*Paragraph, error) {
	idx := d.IndexOf(id)
	if idx < 0 || d.Elements[idx].Type != ElementParagraph {
		return nil, ErrTargetNotFound
	}
	return d.Elements[idx].Paragraph, nil
}

// Table returns the table with id.
func (d *Document) Table(id string) (*Table, error) {
	idx := d.IndexOf(id)
	if idx < 0 || d.Elements[idx].Type != ElementTable {
		return nil, ErrTargetNotFound
	}
	return d.Elements[idx].Table, nil
}

// TextRun returns the run with id.
func (d *Document) TextRun(id string) (*TextRun, error) {
	for _, el := range d.Elements {
		if el.Type != ElementParagraph {
			continue
		}
		for _, run := range el.Paragraph.Runs {
			if run.ID == id {
				return run, nil
			}
		}
	}
	return nil, ErrTargetNotFound
}

// Row returns the table row with id.
func (d *Document) Row(id string) (*Row, error) {
	for _, el := range d.Elements {
		if el.Type != ElementTable {
			continue
		}
		for _, row := range el.Table.Rows {
			if row.ID == id {
				return row, nil
			}
		}
	}
	return nil, ErrTargetNotFound
}

// Cell returns the table cell with id.
func (d *Document) Cell(id string) (*Cell, error) {
	for _, el := range d.Elements {
		if el.Type != ElementTable {
			continue
		}
		for _, row := range el.Table.Rows {
			for _, cell := range row.Cells {
				if cell.ID == id {
					return cell, nil
				}
			}
		}
	}
	return nil, ErrTargetNotFound
}

// Contains reports whether id addresses any element, run, row or cell.
func (d *Document) Contains(id string) bool {
	if d.IndexOf(id) >= 0 {
		return true
	}
	if _, err := d.TextRun(id); err == nil {
		return true
	}
	if _, err := d.Row(id); err == nil {
		return true
	}
	_, err := d.Cell(id)
	return err == nil
}
