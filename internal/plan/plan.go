// Package plan defines the structured contract between the workflow
// engine and its planner collaborator: an ordered breakdown of role-tagged
// subtasks plus an explicit execution order.
package plan

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Subtask is one unit of work derived from a goal, tagged with the worker
// role expected to execute it.
type Subtask struct {
	Role        string `json:"role"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
}

// OrderRef addresses a subtask as role:index, where index counts that
// role's subtasks in declaration order.
type OrderRef struct {
	Role  string `json:"role"`
	Index int    `json:"index"`
}

func (r OrderRef) String() string {
	return fmt.Sprintf("%s:%d", r.Role, r.Index)
}

func ParseOrderRef(s string) (OrderRef, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return OrderRef{}, fmt.Errorf("invalid order ref %q: want role:index", s)
	}
	role := strings.TrimSpace(s[:idx])
	n, err := strconv.Atoi(strings.TrimSpace(s[idx+1:]))
	if err != nil || n < 0 {
		return OrderRef{}, fmt.Errorf("invalid order ref %q: index must be a non-negative integer", s)
	}
	return OrderRef{Role: role, Index: n}, nil
}

// Breakdown is the planner's output. Order entries declare execution
// order; later subtasks may depend on artifacts produced by earlier ones,
// so the engine follows Order, not list position.
type Breakdown struct {
	Subtasks []Subtask  `json:"subtasks"`
	Order    []OrderRef `json:"order,omitempty"`
}

// Planner turns a goal description into a breakdown, given the catalogue
// of worker roles available to the engine.
type Planner interface {
	Plan(ctx context.Context, goal string, roles []string) (Breakdown, error)
}

// Empty reports whether the breakdown carries no work at all.
func (b Breakdown) Empty() bool {
	return len(b.Subtasks) == 0
}

// Normalized validates the breakdown and fills a missing order with
// declaration order. Unresolvable and duplicate order refs are errors;
// a malformed breakdown is the engine's cue to fail closed.
func (b Breakdown) Normalized() (Breakdown, error) {
	out := Breakdown{Subtasks: make([]Subtask, len(b.Subtasks))}
	copy(out.Subtasks, b.Subtasks)
	for i, st := range out.Subtasks {
		if strings.TrimSpace(st.Role) == "" {
			return Breakdown{}, fmt.Errorf("breakdown: subtask %d has no role", i)
		}
		if strings.TrimSpace(st.Description) == "" {
			return Breakdown{}, fmt.Errorf("breakdown: subtask %d (%s) has no description", i, st.Role)
		}
	}

	if len(b.Order) == 0 {
		// Planners may omit the order list; declaration order applies.
		counts := map[string]int{}
		for _, st := range out.Subtasks {
			out.Order = append(out.Order, OrderRef{Role: st.Role, Index: counts[st.Role]})
			counts[st.Role]++
		}
		return out, nil
	}

	out.Order = make([]OrderRef, len(b.Order))
	copy(out.Order, b.Order)
	seen := map[OrderRef]bool{}
	for _, ref := range out.Order {
		if _, err := b.Resolve(ref); err != nil {
			return Breakdown{}, err
		}
		if seen[ref] {
			return Breakdown{}, fmt.Errorf("breakdown: duplicate order ref %s", ref)
		}
		seen[ref] = true
	}
	return out, nil
}

// Resolve returns the subtask an order ref addresses.
func (b Breakdown) Resolve(ref OrderRef) (Subtask, error) {
	n := 0
	for _, st := range b.Subtasks {
		if st.Role != ref.Role {
			continue
		}
		if n == ref.Index {
			return st, nil
		}
		n++
	}
	return Subtask{}, fmt.Errorf("breakdown: order ref %s does not resolve (%d %s subtasks)", ref, n, ref.Role)
}
