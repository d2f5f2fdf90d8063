package llm

import (
	"fmt"
	"math"

	"mailflow/core/domain"
	"mailflow/pkg/apperr"
)

// validateAgainstSchema checks the decoded object against the declared
// schema: every required key present, every present key matching its
// declared type. Undeclared keys are dropped rather than rejected since
// models occasionally volunteer extras.
func validateAgainstSchema(obj map[string]any, schema *domain.AgentSchema) error {
	for _, key := range schema.Required {
		if _, ok := obj[key]; !ok {
			return apperr.ValidationFailed(fmt.Sprintf("agent response missing required property: %s", key))
		}
	}

	for key, value := range obj {
		prop, declared := schema.Properties[key]
		if !declared {
			delete(obj, key)
			continue
		}
		if value == nil {
			continue
		}
		if !matchesType(value, prop.Type) {
			return apperr.ValidationFailed(
				fmt.Sprintf("agent response property %q is not of type %s", key, prop.Type))
		}
	}

	return nil
}

func matchesType(value any, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		if !ok {
			return false
		}
		return f == math.Trunc(f)
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
