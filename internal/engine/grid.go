/*
PURPOSE:
  Sweep axes and the ordered cartesian product over them.

REQUIREMENTS:
  User-specified:
  - Visit every combination exactly once, outer axis slowest.

  Implementation-discovered:
  - Axis names and values must be unique or identities collide.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine/runner.go, internal/cli

ERROR HANDLING:
  - ValidateAxes returns descriptive errors; Product assumes valid axes.

IMPLEMENTATION RULES:
  - Values stay strings; numeric meaning lives in templates.

USAGE:
  combos := engine.Product([]engine.Axis{engine.IntAxis("rate", rates), engine.RepetitionAxis(3)})

SELF-HEALING INSTRUCTIONS:
  - If ordering looks wrong, check the odometer in Product.

RELATED FILES:
  - internal/engine/rule.go

MAINTENANCE:
  - None.
*/

package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Axis is a named, ordered sequence of values that participates in the sweep.
// Prefix is prepended to each value when the axis contributes to a
// default identity (the repetition axis uses "run").
type Axis struct {
	Name   string
	Values []string
	Prefix string
}

// IntAxis builds an axis from integer values.
func IntAxis(name string, values []int) Axis {
	vals := make([]string, len(values))
	for i, v := range values {
		vals[i] = strconv.Itoa(v)
	}
	return Axis{Name: name, Values: vals}
}

// RepetitionAxis builds the "run" axis with values 1..n.
func RepetitionAxis(n int) Axis {
	vals := make([]int, n)
	for i := range vals {
		vals[i] = i + 1
	}
	a := IntAxis("run", vals)
	a.Prefix = "run"
	return a
}

// Combination is one concrete assignment of a value to every axis.
type Combination struct {
	axes   []Axis
	values []string
}

// Get returns the value assigned to the named axis.
func (c Combination) Get(name string) (string, bool) {
	for i, a := range c.axes {
		if a.Name == name {
			return c.values[i], true
		}
	}
	return "", false
}

// Values returns the assignment as a map keyed by axis name.
func (c Combination) Values() map[string]string {
	m := make(map[string]string, len(c.axes))
	for i, a := range c.axes {
		m[a.Name] = c.values[i]
	}
	return m
}

// Tokens returns the prefixed values in axis order.
func (c Combination) Tokens() []string {
	out := make([]string, len(c.values))
	for i, a := range c.axes {
		out[i] = a.Prefix + c.values[i]
	}
	return out
}

func (c Combination) String() string {
	parts := make([]string, len(c.axes))
	for i, a := range c.axes {
		parts[i] = a.Name + "=" + c.values[i]
	}
	return strings.Join(parts, ", ")
}

// GridSize returns the number of combinations the axes produce.
func GridSize(axes []Axis) int {
	if len(axes) == 0 {
		return 0
	}
	n := 1
	for _, a := range axes {
		n *= len(a.Values)
	}
	return n
}

// Product enumerates the Cartesian product of axes. The first axis varies
// slowest, the last fastest.
func Product(axes []Axis) []Combination {
	total := GridSize(axes)
	if total == 0 {
		return nil
	}

	combos := make([]Combination, 0, total)
	idx := make([]int, len(axes))
	for {
		vals := make([]string, len(axes))
		for i, a := range axes {
			vals[i] = a.Values[idx[i]]
		}
		combos = append(combos, Combination{axes: axes, values: vals})

		// Odometer increment from the innermost axis.
		i := len(axes) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return combos
		}
	}
}

// ValidateAxes rejects empty or duplicated axes.
func ValidateAxes(axes []Axis) error {
	if len(axes) == 0 {
		return fmt.Errorf("sweep has no axes")
	}
	seen := make(map[string]bool, len(axes))
	for _, a := range axes {
		if a.Name == "" {
			return fmt.Errorf("axis with empty name")
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate axis %q", a.Name)
		}
		seen[a.Name] = true
		if len(a.Values) == 0 {
			return fmt.Errorf("axis %q has no values", a.Name)
		}
		dup := make(map[string]bool, len(a.Values))
		for _, v := range a.Values {
			if dup[v] {
				return fmt.Errorf("axis %q repeats value %q", a.Name, v)
			}
			dup[v] = true
		}
	}
	return nil
}
