// Package workflow manages the registration and validation of workflow
// definitions.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/maestro-flow/maestro/pkg/capability"
	"github.com/maestro-flow/maestro/pkg/models"
)

// ValidationError carries every violation found in a definition so callers
// can fix all issues in one pass instead of whack-a-mole.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid workflow definition: %s", strings.Join(e.Violations, "; "))
}

// IsValidationError reports whether err is a definition validation failure.
func IsValidationError(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}

// Catalogue is the registry view the validator needs: declared addresses
// and their optional parameter schemas. Declared does not imply invocable.
type Catalogue interface {
	Declared(addr capability.Address) bool
	SchemaFor(addr capability.Address) (map[string]any, bool)
}

// Validator checks definitions against structural rules and the capability
// catalogue before they are accepted for registration.
type Validator struct {
	validate  *validator.Validate
	catalogue Catalogue
}

func NewValidator(catalogue Catalogue) *Validator {
	return &Validator{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		catalogue: catalogue,
	}
}

// Validate returns nil or a *ValidationError listing all violations.
func (v *Validator) Validate(def *models.WorkflowDefinition) error {
	violations := make([]string, 0)

	if err := v.validate.Struct(def); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fieldErr := range fieldErrors {
				violations = append(violations,
					fmt.Sprintf("field %s failed %q validation", fieldErr.Namespace(), fieldErr.Tag()))
			}
		} else {
			violations = append(violations, err.Error())
		}
	}

	violations = append(violations, v.checkSteps(def)...)
	violations = append(violations, v.checkTriggers(def)...)

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	return nil
}

// checkSteps verifies step id uniqueness, backward-only condition
// references, capability resolution, and declared parameter schemas. The
// step sequence is a DAG realized as a linear order: conditions may only
// reference outputs of strictly earlier steps.
func (v *Validator) checkSteps(def *models.WorkflowDefinition) []string {
	violations := make([]string, 0)
	seen := make(map[string]int, len(def.Steps))

	for i, step := range def.Steps {
		if first, dup := seen[step.ID]; dup {
			violations = append(violations,
				fmt.Sprintf("step %q at index %d duplicates step at index %d", step.ID, i, first))

			continue
		}

		seen[step.ID] = i

		addr := capability.Address{Agent: step.Agent, Service: step.Service, Action: step.Action}
		if !v.catalogue.Declared(addr) {
			violations = append(violations,
				fmt.Sprintf("step %q references undeclared capability %s", step.ID, addr))
		} else if schema, ok := v.catalogue.SchemaFor(addr); ok {
			violations = append(violations, checkParameters(step, schema)...)
		}

		for _, condition := range step.Conditions {
			refIndex := def.StepIndex(condition.Step)
			if refIndex == -1 || refIndex >= i {
				violations = append(violations,
					fmt.Sprintf("step %q condition references %q which is not an earlier step", step.ID, condition.Step))

				continue
			}

			if !producesOutput(def.Steps[refIndex], condition.Field) {
				violations = append(violations,
					fmt.Sprintf("step %q condition references output %q not declared by step %q",
						step.ID, condition.Field, condition.Step))
			}
		}
	}

	return violations
}

func (v *Validator) checkTriggers(def *models.WorkflowDefinition) []string {
	violations := make([]string, 0)
	seen := make(map[string]bool, len(def.Triggers))

	for _, trigger := range def.Triggers {
		if seen[trigger.ID] {
			violations = append(violations, fmt.Sprintf("duplicate trigger id %q", trigger.ID))

			continue
		}

		seen[trigger.ID] = true

		if err := trigger.Validate(); err != nil {
			violations = append(violations, err.Error())
		}
	}

	return violations
}

func checkParameters(step *models.Step, schema map[string]any) []string {
	params := step.Parameters
	if params == nil {
		params = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return []string{fmt.Sprintf("step %q parameter schema check failed: %v", step.ID, err)}
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		violations = append(violations,
			fmt.Sprintf("step %q parameters: %s", step.ID, schemaErr.String()))
	}

	return violations
}

func producesOutput(step *models.Step, field string) bool {
	// Steps with no declared outputs are treated as open: conditions may
	// reference any field and resolve at runtime.
	if len(step.Outputs) == 0 {
		return true
	}

	for _, output := range step.Outputs {
		if output == field {
			return true
		}
	}

	return false
}
