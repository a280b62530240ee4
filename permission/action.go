package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the closed verb set. There is no way to register more at runtime;
// a grant with an unknown verb is discarded, never interpreted.
type Action uint8

const (
	// ActionCreate allows creating entities of a resource.
	ActionCreate Action = iota
	// ActionRead allows reading entities of a resource.
	ActionRead
	// ActionUpdate allows modifying entities of a resource.
	ActionUpdate
	// ActionDelete allows deleting entities of a resource.
	ActionDelete
	// ActionManage implies the full CRUD set on a resource plus itself.
	ActionManage
	// ActionApprove allows workflow approval. Deliberately NOT part of the
	// MANAGE expansion; approval rights are always granted explicitly.
	ActionApprove

	actionCount
)

var actionNames = [actionCount]string{
	ActionCreate:  "CREATE",
	ActionRead:    "READ",
	ActionUpdate:  "UPDATE",
	ActionDelete:  "DELETE",
	ActionManage:  "MANAGE",
	ActionApprove: "APPROVE",
}

// ErrRoleNotFound reports a role name the role store does not know.
var ErrRoleNotFound = errors.New("role not found")

func (a Action) valid() bool {
	return a < actionCount
}

// String returns the canonical uppercase name, or "UNKNOWN(n)" for values
// outside the vocabulary.
func (a Action) String() string {
	if !a.valid() {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(a))
	}
	return actionNames[a]
}

// ParseAction maps a canonical uppercase name back to its Action. The match
// is exact; lowercase or padded input is rejected.
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if s == name {
			return Action(a), nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Resource identifies a protected entity type, e.g. "TASK" or "EXPENSE".
type Resource string

// Permission is a single Resource:Action grant.
type Permission struct {
	Resource Resource
	Action   Action
}

// String renders the canonical "RESOURCE:ACTION" form.
func (p Permission) String() string {
	return string(p.Resource) + ":" + p.Action.String()
}

// Parse reads the canonical "RESOURCE:ACTION" form.
func Parse(s string) (Permission, error) {
	resource, action, found := strings.Cut(s, ":")
	if !found || resource == "" {
		return Permission{}, fmt.Errorf("malformed permission %q", s)
	}
	a, err := ParseAction(action)
	if err != nil {
		return Permission{}, fmt.Errorf("malformed permission %q: %v", s, err)
	}
	return Permission{Resource: Resource(resource), Action: a}, nil
}

// MustParse is Parse for static grant tables; it panics on malformed input.
func MustParse(s string) Permission {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}
