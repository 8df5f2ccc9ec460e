package models

import (
	"errors"
	"fmt"
	"strings"
)

// Operator is the closed set of predicate operators usable in step
// conditions. The evaluator matches it exhaustively so an unknown operator
// is an error, never a silent no-op.
type Operator string

const (
	OperatorEq       Operator = "eq"
	OperatorNe       Operator = "ne"
	OperatorGt       Operator = "gt"
	OperatorGte      Operator = "gte"
	OperatorLt       Operator = "lt"
	OperatorLte      Operator = "lte"
	OperatorContains Operator = "contains"
	OperatorExists   Operator = "exists"
)

var ErrUnknownOperator = errors.New("unknown condition operator")

// OutputMap holds the named result slots one step produced.
type OutputMap map[string]any

// OutputSet accumulates outputs of succeeded steps keyed by step id. It only
// grows during a run; a failed step's partial output is never merged.
type OutputSet map[string]OutputMap

// Clone copies the set and every per-step map so holders of the copy
// cannot touch the run's committed outputs.
func (s OutputSet) Clone() OutputSet {
	cloned := make(OutputSet, len(s))
	for stepID, outputs := range s {
		copied := make(OutputMap, len(outputs))
		for k, v := range outputs {
			copied[k] = v
		}

		cloned[stepID] = copied
	}

	return cloned
}

// Condition is a predicate over a strictly-earlier step's output that gates
// execution of the declaring step. A referenced step that never produced the
// field (skipped, or slot unset) makes the condition false, not an error.
type Condition struct {
	Step     string   `json:"step"     validate:"required"`
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required,oneof=eq ne gt gte lt lte contains exists"`
	Value    any      `json:"value,omitempty"`
}

// Evaluate resolves the condition against accumulated outputs.
func (c Condition) Evaluate(outputs OutputSet) (bool, error) {
	stepOutputs, ok := outputs[c.Step]
	if !ok {
		return false, nil
	}

	actual, present := stepOutputs[c.Field]

	switch c.Operator {
	case OperatorExists:
		return present, nil
	case OperatorEq:
		if !present {
			return false, nil
		}

		return looseEqual(actual, c.Value), nil
	case OperatorNe:
		if !present {
			return false, nil
		}

		return !looseEqual(actual, c.Value), nil
	case OperatorGt, OperatorGte, OperatorLt, OperatorLte:
		if !present {
			return false, nil
		}

		return compareNumeric(c.Operator, actual, c.Value)
	case OperatorContains:
		if !present {
			return false, nil
		}

		return contains(actual, c.Value)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
}

func compareNumeric(op Operator, actual, expected any) (bool, error) {
	left, err := toFloat(actual)
	if err != nil {
		return false, err
	}

	right, err := toFloat(expected)
	if err != nil {
		return false, err
	}

	switch op {
	case OperatorGt:
		return left > right, nil
	case OperatorGte:
		return left >= right, nil
	case OperatorLt:
		return left < right, nil
	case OperatorLte:
		return left <= right, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
}

func contains(actual, expected any) (bool, error) {
	switch v := actual.(type) {
	case string:
		needle, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("contains on string requires a string value, got %T", expected)
		}

		return strings.Contains(v, needle), nil
	case []any:
		for _, item := range v {
			if looseEqual(item, expected) {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("contains requires a string or list, got %T", actual)
	}
}

// looseEqual compares values the way JSON round-trips produce them: numbers
// of different Go types compare by value, everything else by string form.
func looseEqual(a, b any) bool {
	if af, err := toFloat(a); err == nil {
		if bf, err := toFloat(b); err == nil {
			return af == bf
		}
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}
