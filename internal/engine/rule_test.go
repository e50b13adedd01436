package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generated = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func TestTemplateRule_DefaultIdentity(t *testing.T) {
	rule, err := NewTemplateRule(RuleSpec{Model: "M", Program: "bench"})
	require.NoError(t, err)

	var ids []string
	for _, c := range Product(sampleAxes()) {
		id, err := rule.Identity(c)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{
		"M_1_10_run1", "M_1_10_run2", "M_1_10_run3",
		"M_2_10_run1", "M_2_10_run2", "M_2_10_run3",
	}, ids)
}

func TestTemplateRule_IdentityIsDeterministic(t *testing.T) {
	spec := RuleSpec{Model: "M", Program: "bench"}
	a, err := NewTemplateRule(spec)
	require.NoError(t, err)
	b, err := NewTemplateRule(spec)
	require.NoError(t, err)

	c := Product(sampleAxes())[4]
	idA, err := a.Identity(c)
	require.NoError(t, err)
	idB, err := b.Identity(c)
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
	assert.Equal(t, "M_2_10_run2", idA)
}

func TestTemplateRule_DerivedVars(t *testing.T) {
	rule, err := NewTemplateRule(RuleSpec{
		Model:    "GROK2",
		Program:  "python3",
		Args:     []string{"--num-prompts", "{{.num_prompts}}", "--request-rate", "{{.rate}}"},
		Vars:     []Var{{Name: "num_prompts", Value: "{{min (mul 300 .rate) .max_prompts}}"}},
		Identity: "{{.model}}_{{.rate}}_{{.num_prompts}}_run{{.run}}",
		RunLog:   "client_{{.model_lower}}_{{.rate}}_max{{.max_prompts}}_run{{.run}}_{{.timestamp}}.log",
	})
	require.NoError(t, err)

	axes := []Axis{IntAxis("rate", []int{1, 8, 16}), IntAxis("max_prompts", []int{2400}), RepetitionAxis(1)}
	combos := Product(axes)

	var ids []string
	for _, c := range combos {
		id, err := rule.Identity(c)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"GROK2_1_300_run1", "GROK2_8_2400_run1", "GROK2_16_2400_run1"}, ids)

	inv, err := rule.Invocation(combos[0])
	require.NoError(t, err)
	assert.Equal(t, "python3", inv.Program)
	assert.Equal(t, []string{"--num-prompts", "300", "--request-rate", "1"}, inv.Args)
	assert.Nil(t, inv.Env)

	name, err := rule.RunLogName(combos[1], generated)
	require.NoError(t, err)
	assert.Equal(t, "client_grok2_8_max2400_run1_20250304_050607.log", name)
}

func TestTemplateRule_DefaultRunLogName(t *testing.T) {
	rule, err := NewTemplateRule(RuleSpec{Model: "M", Program: "bench"})
	require.NoError(t, err)

	name, err := rule.RunLogName(Product(sampleAxes())[0], generated)
	require.NoError(t, err)
	assert.Equal(t, "m_1_10_run1_20250304_050607.log", name)
}

func TestTemplateRule_EmptyArgIsDropped(t *testing.T) {
	rule, err := NewTemplateRule(RuleSpec{
		Model:   "M",
		Program: "bench",
		Args:    []string{"--rate", "{{.rate}}", `{{if eq .run "2"}}--warm{{end}}`},
	})
	require.NoError(t, err)

	combos := Product(sampleAxes())
	inv, err := rule.Invocation(combos[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"--rate", "1"}, inv.Args)

	inv, err = rule.Invocation(combos[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"--rate", "1", "--warm"}, inv.Args)
}

func TestTemplateRule_EnvIsCopied(t *testing.T) {
	env := map[string]string{"A": "1"}
	rule, err := NewTemplateRule(RuleSpec{Model: "M", Program: "bench", Env: env})
	require.NoError(t, err)

	inv, err := rule.Invocation(Product(sampleAxes())[0])
	require.NoError(t, err)
	inv.Env["A"] = "changed"

	assert.Equal(t, "1", env["A"])
}

func TestTemplateRule_Errors(t *testing.T) {
	_, err := NewTemplateRule(RuleSpec{Program: "bench"})
	assert.Error(t, err)

	_, err = NewTemplateRule(RuleSpec{Model: "M"})
	assert.Error(t, err)

	_, err = NewTemplateRule(RuleSpec{Model: "M", Program: "bench", Args: []string{"{{.rate"}})
	assert.Error(t, err)

	rule, err := NewTemplateRule(RuleSpec{Model: "M", Program: "bench", Args: []string{"{{.nope}}"}})
	require.NoError(t, err)
	_, err = rule.Invocation(Product(sampleAxes())[0])
	assert.Error(t, err, "missing keys must fail instead of rendering <no value>")

	rule, err = NewTemplateRule(RuleSpec{Model: "M", Program: "bench", Vars: []Var{{Name: "n", Value: "{{mul .rate \"x\"}}"}}})
	require.NoError(t, err)
	_, err = rule.Identity(Product(sampleAxes())[0])
	assert.NoError(t, err, "default identity does not evaluate vars")
	_, err = rule.Invocation(Product(sampleAxes())[0])
	assert.Error(t, err)

	rule, err = NewTemplateRule(RuleSpec{Model: "M", Program: "bench", RunLog: "logs/{{.rate}}.log"})
	require.NoError(t, err)
	_, err = rule.RunLogName(Product(sampleAxes())[0], generated)
	assert.Error(t, err)
}
