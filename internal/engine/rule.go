/*
PURPOSE:
  Turns a combination into an identity, a command line and a run log name
  using text/template strings from the model profile.

REQUIREMENTS:
  User-specified:
  - Identity and log name formats of the existing benchmark scripts.

  Implementation-discovered:
  - Derived values (clamped prompt counts) are needed by several templates.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine/runner.go
  - Built by: internal/cli/sweep.go from internal/config profiles

ERROR HANDLING:
  - Templates are parsed up front; render errors name the template.

IMPLEMENTATION RULES:
  - missingkey=error so typos fail instead of rendering "<no value>".

USAGE:
  rule, err := engine.NewTemplateRule(engine.RuleSpec{Model: "GROK2", Program: "python3", Args: args})

SELF-HEALING INSTRUCTIONS:
  - Add new template helpers to templateFuncs.

RELATED FILES:
  - internal/config/profiles.go

MAINTENANCE:
  - None.
*/

package engine

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// TimestampLayout matches the generation timestamp used in log file names.
const TimestampLayout = "20060102_150405"

// Rule derives everything the runner needs from a combination.
type Rule interface {
	Identity(c Combination) (string, error)
	Invocation(c Combination) (Invocation, error)
	RunLogName(c Combination, generated time.Time) (string, error)
}

// Var is a derived template value, evaluated in declaration order so later
// vars may reference earlier ones.
type Var struct {
	Name  string
	Value string
}

// RuleSpec is the uncompiled form of a TemplateRule.
type RuleSpec struct {
	Model    string
	Program  string
	Args     []string
	Vars     []Var
	Identity string // empty: model and axis tokens joined by "_"
	RunLog   string // empty: <model>_<tokens>_<timestamp>.log
	Env      map[string]string
}

// TemplateRule renders identities, invocations and run log names from
// text/template strings. Template data holds every axis value by axis name,
// the derived vars, "model", "model_lower" and (for run logs) "timestamp".
type TemplateRule struct {
	spec     RuleSpec
	args     []*template.Template
	vars     []*template.Template
	identity *template.Template
	runLog   *template.Template
}

// NewTemplateRule parses every template up front so mistakes surface before
// the first run.
func NewTemplateRule(spec RuleSpec) (*TemplateRule, error) {
	if spec.Model == "" {
		return nil, fmt.Errorf("rule requires a model name")
	}
	if spec.Program == "" {
		return nil, fmt.Errorf("rule for %s requires a program", spec.Model)
	}

	r := &TemplateRule{spec: spec}
	for i, a := range spec.Args {
		t, err := parseTemplate(fmt.Sprintf("arg%d", i), a)
		if err != nil {
			return nil, err
		}
		r.args = append(r.args, t)
	}
	for _, v := range spec.Vars {
		if v.Name == "" {
			return nil, fmt.Errorf("derived var with empty name")
		}
		t, err := parseTemplate("var:"+v.Name, v.Value)
		if err != nil {
			return nil, err
		}
		r.vars = append(r.vars, t)
	}
	var err error
	if spec.Identity != "" {
		if r.identity, err = parseTemplate("identity", spec.Identity); err != nil {
			return nil, err
		}
	}
	if spec.RunLog != "" {
		if r.runLog, err = parseTemplate("run_log", spec.RunLog); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Model returns the model the rule was built for.
func (r *TemplateRule) Model() string {
	return r.spec.Model
}

// Identity implements Rule.
func (r *TemplateRule) Identity(c Combination) (string, error) {
	if r.identity == nil {
		return strings.Join(append([]string{r.spec.Model}, c.Tokens()...), "_"), nil
	}
	data, err := r.data(c)
	if err != nil {
		return "", err
	}
	id, err := execute(r.identity, data)
	if err != nil {
		return "", err
	}
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return "", fmt.Errorf("identity template produced invalid identity %q", id)
	}
	return id, nil
}

// Invocation implements Rule.
func (r *TemplateRule) Invocation(c Combination) (Invocation, error) {
	data, err := r.data(c)
	if err != nil {
		return Invocation{}, err
	}
	inv := Invocation{Program: r.spec.Program}
	for _, t := range r.args {
		arg, err := execute(t, data)
		if err != nil {
			return Invocation{}, err
		}
		// An arg that renders empty is dropped, which lets templates make
		// flags conditional.
		if arg == "" {
			continue
		}
		inv.Args = append(inv.Args, arg)
	}
	if r.spec.Env != nil {
		inv.Env = make(map[string]string, len(r.spec.Env))
		for k, v := range r.spec.Env {
			inv.Env[k] = v
		}
	}
	return inv, nil
}

// RunLogName implements Rule.
func (r *TemplateRule) RunLogName(c Combination, generated time.Time) (string, error) {
	ts := generated.Format(TimestampLayout)
	if r.runLog == nil {
		parts := append([]string{strings.ToLower(r.spec.Model)}, c.Tokens()...)
		return strings.Join(append(parts, ts), "_") + ".log", nil
	}
	data, err := r.data(c)
	if err != nil {
		return "", err
	}
	data["timestamp"] = ts
	name, err := execute(r.runLog, data)
	if err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("run log template produced invalid file name %q", name)
	}
	return name, nil
}

// Derived returns the rendered derived vars for c in declaration order.
func (r *TemplateRule) Derived(c Combination) ([]Var, error) {
	data, err := r.data(c)
	if err != nil {
		return nil, err
	}
	out := make([]Var, len(r.spec.Vars))
	for i, v := range r.spec.Vars {
		out[i] = Var{Name: v.Name, Value: fmt.Sprint(data[v.Name])}
	}
	return out, nil
}

func (r *TemplateRule) data(c Combination) (map[string]any, error) {
	data := map[string]any{
		"model":       r.spec.Model,
		"model_lower": strings.ToLower(r.spec.Model),
	}
	for k, v := range c.Values() {
		data[k] = v
	}
	for i, t := range r.vars {
		val, err := execute(t, data)
		if err != nil {
			return nil, err
		}
		data[r.spec.Vars[i].Name] = val
	}
	return data, nil
}

var templateFuncs = template.FuncMap{
	"mul":   func(a, b any) (int, error) { return intOp(a, b, func(x, y int) int { return x * y }) },
	"add":   func(a, b any) (int, error) { return intOp(a, b, func(x, y int) int { return x + y }) },
	"min":   func(a, b any) (int, error) { return intOp(a, b, func(x, y int) int { return min(x, y) }) },
	"max":   func(a, b any) (int, error) { return intOp(a, b, func(x, y int) int { return max(x, y) }) },
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
}

func parseTemplate(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid template %s: %w", name, err)
	}
	return t, nil
}

func execute(t *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func intOp(a, b any, op func(x, y int) int) (int, error) {
	x, err := toInt(a)
	if err != nil {
		return 0, err
	}
	y, err := toInt(b)
	if err != nil {
		return 0, err
	}
	return op(x, y), nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}
