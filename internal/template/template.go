// Package template renders the path templates of a pipeline configuration,
// e.g. "output/expo/{{ .fold }}.{{ .weight }}.buzz.csv".
package template

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
	"text/template/parse"

	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
)

// Renderer renders path templates against a data map.
type Renderer interface {
	Render(templateString string, data map[string]interface{}) (string, error)
	ExtractVariables(templateString string) ([]string, error)
}

// GoRenderer implements Renderer with text/template. Parsed templates and
// extracted variables are cached; it is safe for concurrent use.
type GoRenderer struct {
	funcs         template.FuncMap
	mu            sync.Mutex
	templateCache map[string]*template.Template
	varCache      map[string][]string
}

var _ Renderer = (*GoRenderer)(nil)

func NewGoRenderer() *GoRenderer {
	return &GoRenderer{
		funcs:         FuncMap(),
		templateCache: make(map[string]*template.Template),
		varCache:      make(map[string][]string),
	}
}

// Render executes templateString. A key missing from data is an error, so a
// misspelled variable never renders as "<no value>" inside a path.
func (r *GoRenderer) Render(templateString string, data map[string]interface{}) (string, error) {
	if !strings.Contains(templateString, "{{") {
		return templateString, nil
	}
	t, err := r.getOrParse(templateString)
	if err != nil {
		return "", tgerrors.NewValidationError(fmt.Sprintf("template parse error in %q", templateString), err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", tgerrors.NewValidationError(fmt.Sprintf("template execution error in %q", templateString), err)
	}
	return buf.String(), nil
}

// ExtractVariables returns the sorted top-level field paths referenced by
// templateString, e.g. ["fold", "weight"]. Function names are not reported.
func (r *GoRenderer) ExtractVariables(templateString string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.varCache[templateString]; ok {
		return cached, nil
	}
	t, err := template.New("extract").Funcs(r.funcs).Parse(templateString)
	if err != nil {
		return nil, tgerrors.NewValidationError(fmt.Sprintf("template parse error in %q", templateString), err)
	}

	found := make(map[string]struct{})
	if t.Tree != nil && t.Root != nil {
		walk(t.Root, found)
	}
	vars := make([]string, 0, len(found))
	for v := range found {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	r.varCache[templateString] = vars
	return vars, nil
}

func (r *GoRenderer) getOrParse(templateString string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.templateCache[templateString]; ok {
		return t, nil
	}
	t, err := template.New(templateString).Option("missingkey=error").Funcs(r.funcs).Parse(templateString)
	if err != nil {
		return nil, err
	}
	r.templateCache[templateString] = t
	return t, nil
}

func walk(node parse.Node, vars map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, sub := range n.Nodes {
			walk(sub, vars)
		}
	case *parse.ActionNode:
		walk(n.Pipe, vars)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			for _, arg := range cmd.Args {
				walk(arg, vars)
			}
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			vars[strings.Join(n.Ident, ".")] = struct{}{}
		}
	case *parse.ChainNode:
		walk(n.Node, vars)
	case *parse.IfNode:
		walk(n.Pipe, vars)
		walk(n.List, vars)
		walk(n.ElseList, vars)
	case *parse.RangeNode:
		walk(n.Pipe, vars)
		walk(n.List, vars)
		walk(n.ElseList, vars)
	case *parse.WithNode:
		walk(n.Pipe, vars)
		walk(n.List, vars)
		walk(n.ElseList, vars)
	}
}
