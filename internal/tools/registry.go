// Package tools defines the closed catalogue of document tools: their names,
// argument shapes, read/write classification and executors.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xiaot623/docpilot/internal/document"
	"github.com/xiaot623/docpilot/internal/domain"
)

// Tool names.
const (
	ListElements        = "list_elements"
	GetElement          = "get_element"
	SearchText          = "search_text"
	ScrollToElement     = "scroll_to_element"
	AddParagraph        = "add_paragraph"
	ReplaceParagraph    = "replace_paragraph"
	DeleteParagraph     = "delete_paragraph"
	SetTextStyle        = "set_text_style"
	AddTable            = "add_table"
	UpdateTableCell     = "update_table_cell"
	SetTableHeaderStyle = "set_table_header_style"
	DeleteTable         = "delete_table"
	AddImage            = "add_image"
	DeleteImage         = "delete_image"
)

const toolCount = 14

// names lists every tool. The catalogue shares its fixed length, so an entry
// cannot be added to one without the other.
var names = [toolCount]string{
	ListElements, GetElement, SearchText, ScrollToElement,
	AddParagraph, ReplaceParagraph, DeleteParagraph, SetTextStyle,
	AddTable, UpdateTableCell, SetTableHeaderStyle, DeleteTable,
	AddImage, DeleteImage,
}

// Tool is one catalogue entry.
type Tool struct {
	Name        string
	Kind        domain.ToolKind
	Description string
	Schema      json.RawMessage

	decode func(raw json.RawMessage) (any, []string)
	exec   func(tx *document.Tx, args any) (any, error)
}

// define builds a catalogue entry whose decoder and executor share the argument type A.
func define[A any](name string, kind domain.ToolKind, description, schema string, check func(*A) []string, exec func(*document.Tx, *A) (any, error)) Tool {
	return Tool{
		Name:        name,
		Kind:        kind,
		Description: description,
		Schema:      json.RawMessage(schema),
		decode: func(raw json.RawMessage) (any, []string) {
			args := new(A)
			if err := decodeStrict(raw, args); err != nil {
				return nil, []string{err.Error()}
			}
			if check != nil {
				if problems := check(args); len(problems) > 0 {
					return nil, problems
				}
			}
			return args, nil
		},
		exec: func(tx *document.Tx, args any) (any, error) {
			return exec(tx, args.(*A))
		},
	}
}

// Registry indexes the catalogue by name.
type Registry struct {
	tools map[string]*Tool
}

// DefaultRegistry holds the built-in catalogue.
var DefaultRegistry = NewRegistry(catalogue[:]...)

// NewRegistry indexes tools, panicking on duplicates or incomplete entries.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for i := range tools {
		t := tools[i]
		if t.Name == "" || t.decode == nil || t.exec == nil {
			panic(fmt.Sprintf("tools: incomplete catalogue entry %d", i))
		}
		if t.Kind != domain.ToolKindRead && t.Kind != domain.ToolKindWrite {
			panic(fmt.Sprintf("tools: %s has no read/write classification", t.Name))
		}
		if _, exists := r.tools[t.Name]; exists {
			panic(fmt.Sprintf("tools: %s registered twice", t.Name))
		}
		r.tools[t.Name] = &t
	}
	return r
}

// Lookup returns the tool with name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// IsWriteTool reports whether name is a known mutating tool.
func (r *Registry) IsWriteTool(name string) bool {
	t, ok := r.tools[name]
	return ok && t.Kind == domain.ToolKindWrite
}

// Validate decodes and checks the arguments of a call to name.
func (r *Registry) Validate(name string, raw json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, domain.InvalidInput(domain.CodeUnknownTool, fmt.Sprintf("unknown tool %q", name))
	}
	args, problems := t.decode(raw)
	if len(problems) > 0 {
		return nil, domain.InvalidInput(domain.CodeInvalidToolArguments, fmt.Sprintf("invalid arguments for %s", name), problems...)
	}
	return args, nil
}

// Execute validates call and runs it against rt: read tools in a ReadOnly
// transaction, write tools in a Commit transaction. It does not snapshot or
// roll back; a failed write may leave partial changes behind.
func (r *Registry) Execute(ctx context.Context, rt document.Runtime, call domain.ToolCall) (json.RawMessage, error) {
	args, err := r.Validate(call.Name, call.Args)
	if err != nil {
		return nil, err
	}
	t := r.tools[call.Name]

	mode := document.ReadOnly
	if t.Kind == domain.ToolKindWrite {
		mode = document.Commit
	}

	var result any
	err = rt.Transaction(ctx, mode, func(tx *document.Tx) error {
		if rev, ok := args.(revisioned); ok {
			if err := checkRevision(tx.Doc, rev.expectedRevision()); err != nil {
				return err
			}
		}
		var execErr error
		result, execErr = t.exec(tx, args)
		return execErr
	})
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s result: %w", call.Name, err)
	}
	return data, nil
}

// List returns the catalogue sorted by name.
func (r *Registry) List() []domain.ToolListItem {
	items := make([]domain.ToolListItem, 0, len(r.tools))
	for _, t := range r.tools {
		items = append(items, domain.ToolListItem{
			Name:        t.Name,
			Kind:        t.Kind,
			Description: t.Description,
			Schema:      t.Schema,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

// IsWriteTool reports whether name is a mutating tool of the default catalogue.
func IsWriteTool(name string) bool {
	return DefaultRegistry.IsWriteTool(name)
}

// Validate checks a call against the default catalogue.
func Validate(name string, raw json.RawMessage) (any, error) {
	return DefaultRegistry.Validate(name, raw)
}

// Execute runs a call against the default catalogue.
func Execute(ctx context.Context, rt document.Runtime, call domain.ToolCall) (json.RawMessage, error) {
	return DefaultRegistry.Execute(ctx, rt, call)
}

type revisioned interface {
	expectedRevision() *int64
}

func (r *Revisioned) expectedRevision() *int64 { return r.ExpectedRevision }

func checkRevision(doc *document.Document, expected *int64) error {
	if expected == nil || *expected == doc.Revision {
		return nil
	}
	return domain.ToolExecutionFailed(domain.CodeRevisionMismatch,
		"Revision mismatch: expected %d, document is at %d", *expected, doc.Revision)
}

func decodeStrict(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("arguments: %v", err)
	}
	return nil
}
