package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// breakdownSchema is the canonical wire contract for planner output.
// Anything a planner emits is validated here, at the adapter boundary;
// the engine itself never parses free text.
const breakdownSchema = `{
  "type": "object",
  "required": ["subtasks"],
  "properties": {
    "subtasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["role", "description"],
        "properties": {
          "role": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "description": {"type": "string", "minLength": 1}
        }
      }
    },
    "order": {
      "type": "array",
      "items": {"type": "string", "pattern": "^.+:[0-9]+$"}
    }
  }
}`

var compiledBreakdownSchema = jsonschema.MustCompileString("breakdown.json", breakdownSchema)

type wireBreakdown struct {
	Subtasks []Subtask `json:"subtasks"`
	Order    []string  `json:"order"`
}

// DecodeBreakdownJSON parses and validates planner output. The canonical
// shape is {"subtasks":[...],"order":["role:0",...]}; the legacy shape
// keyed by role ({"coder":[...],"execution_order":[...]}) is accepted too.
func DecodeBreakdownJSON(b []byte) (Breakdown, error) {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return Breakdown{}, fmt.Errorf("breakdown json: %w", err)
	}

	// A document with a "subtasks" key is the canonical shape and must
	// satisfy the schema; only role-keyed documents fall through to the
	// legacy decoder.
	if doc, ok := raw.(map[string]any); ok {
		if _, canonical := doc["subtasks"]; !canonical {
			return decodeLegacyBreakdown(raw)
		}
	}
	if err := compiledBreakdownSchema.Validate(raw); err != nil {
		return Breakdown{}, fmt.Errorf("breakdown json: %w", err)
	}
	var wire wireBreakdown
	if err := json.Unmarshal(b, &wire); err != nil {
		return Breakdown{}, fmt.Errorf("breakdown json: %w", err)
	}
	out := Breakdown{Subtasks: wire.Subtasks}
	for _, s := range wire.Order {
		ref, err := ParseOrderRef(s)
		if err != nil {
			return Breakdown{}, err
		}
		out.Order = append(out.Order, ref)
	}
	return out, nil
}

// decodeLegacyBreakdown handles the role-keyed map emitted by older
// planners: every key except execution_order is a role whose value is a
// list of subtasks ({"title":...,"description":...} or a bare string).
func decodeLegacyBreakdown(raw any) (Breakdown, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return Breakdown{}, fmt.Errorf("breakdown json: expected an object")
	}

	roles := make([]string, 0, len(doc))
	for k := range doc {
		if k == "execution_order" || k == "order" {
			continue
		}
		roles = append(roles, k)
	}
	sort.Strings(roles)

	var out Breakdown
	for _, role := range roles {
		list, ok := doc[role].([]any)
		if !ok {
			return Breakdown{}, fmt.Errorf("breakdown json: role %q is not a list", role)
		}
		for i, item := range list {
			st, err := legacySubtask(role, item)
			if err != nil {
				return Breakdown{}, fmt.Errorf("breakdown json: role %q item %d: %w", role, i, err)
			}
			out.Subtasks = append(out.Subtasks, st)
		}
	}

	rawOrder, ok := doc["execution_order"].([]any)
	if !ok {
		rawOrder, _ = doc["order"].([]any)
	}
	for _, entry := range rawOrder {
		s, ok := entry.(string)
		if !ok {
			return Breakdown{}, fmt.Errorf("breakdown json: order entry %v is not a string", entry)
		}
		ref, err := ParseOrderRef(s)
		if err != nil {
			return Breakdown{}, err
		}
		out.Order = append(out.Order, ref)
	}
	return out, nil
}

func legacySubtask(role string, item any) (Subtask, error) {
	switch v := item.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return Subtask{}, fmt.Errorf("empty description")
		}
		return Subtask{Role: role, Description: v}, nil
	case map[string]any:
		st := Subtask{Role: role}
		if s, ok := v["title"].(string); ok {
			st.Title = s
		}
		if s, ok := v["description"].(string); ok {
			st.Description = s
		} else if s, ok := v["task"].(string); ok {
			st.Description = s
		}
		if strings.TrimSpace(st.Description) == "" {
			return Subtask{}, fmt.Errorf("missing description")
		}
		return st, nil
	default:
		return Subtask{}, fmt.Errorf("unsupported subtask shape %T", item)
	}
}
