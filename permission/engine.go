package permission

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Definition is a role as the role store describes it: the raw grants plus
// the capabilities the authentication flow needs.
type Definition struct {
	Permissions []Permission

	// CanSelfServicePassword decides the expired-password split: roles with
	// it are sent into the forced-change flow, roles without it stay blocked
	// until an administrator intervenes.
	CanSelfServicePassword bool
}

// FetchFunc loads a role definition by name. It returns [ErrRoleNotFound]
// for unknown roles; any other error is treated as a store failure and the
// check is denied.
type FetchFunc func(ctx context.Context, role string) (Definition, error)

// EngineConfig wires an [Engine].
type EngineConfig struct {
	// Fetch is required.
	Fetch FetchFunc

	// Vocabulary, when set, discards grants on unregistered resources at
	// snapshot build. Nil accepts any resource.
	Vocabulary *Vocabulary

	// OnDiscard observes each grant discarded for an unknown resource or
	// verb. Used for audit; may be nil.
	OnDiscard func(role string, perm Permission)
}

// Engine answers permission checks from live role definitions.
//
// Every check fetches the definition from the store, so edits apply on the
// next check. The expensive part, MANAGE expansion into the full grant set,
// is cached in an immutable snapshot keyed by a fingerprint of the fetched
// definition; an unchanged definition reuses it, a changed one swaps in a
// fresh snapshot. Checks only ever hold a snapshot pointer, never the map
// entry, so a swap cannot expose partial state.
type Engine struct {
	fetch      FetchFunc
	vocabulary *Vocabulary
	onDiscard  func(role string, perm Permission)

	mu        sync.RWMutex
	snapshots map[string]*roleSnapshot
}

type roleSnapshot struct {
	fingerprint string
	allowed     map[Permission]struct{}
}

// NewEngine validates the configuration and returns a ready Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Fetch == nil {
		return nil, errors.New("permission engine requires a fetch function")
	}
	return &Engine{
		fetch:      cfg.Fetch,
		vocabulary: cfg.Vocabulary,
		onDiscard:  cfg.OnDiscard,
		snapshots:  make(map[string]*roleSnapshot),
	}, nil
}

// Check reports whether the role grants the action on the resource.
// The role definition is fetched on every call; token claims are never
// consulted.
func (e *Engine) Check(ctx context.Context, role string, resource Resource, action Action) (bool, error) {
	if role == "" {
		return false, ErrRoleNotFound
	}

	def, err := e.fetch(ctx, role)
	if err != nil {
		return false, err
	}

	snap := e.snapshot(role, def)
	_, ok := snap.allowed[Permission{Resource: resource, Action: action}]
	return ok, nil
}

// snapshot returns the cached expansion when the definition is unchanged,
// otherwise builds and swaps in a new one.
func (e *Engine) snapshot(role string, def Definition) *roleSnapshot {
	fp := fingerprint(def)

	e.mu.RLock()
	snap := e.snapshots[role]
	e.mu.RUnlock()
	if snap != nil && snap.fingerprint == fp {
		return snap
	}

	snap = e.build(role, def, fp)

	e.mu.Lock()
	e.snapshots[role] = snap
	e.mu.Unlock()
	return snap
}

func (e *Engine) build(role string, def Definition, fp string) *roleSnapshot {
	allowed := make(map[Permission]struct{}, len(def.Permissions))
	for _, perm := range def.Permissions {
		if !perm.Action.valid() || perm.Resource == "" ||
			(e.vocabulary != nil && !e.vocabulary.Contains(perm.Resource)) {
			if e.onDiscard != nil {
				e.onDiscard(role, perm)
			}
			continue
		}
		for _, expanded := range expand(perm) {
			allowed[expanded] = struct{}{}
		}
	}
	return &roleSnapshot{fingerprint: fp, allowed: allowed}
}

// expand applies the MANAGE implication. APPROVE is never implied.
func expand(p Permission) []Permission {
	if p.Action != ActionManage {
		return []Permission{p}
	}
	r := p.Resource
	return []Permission{
		{Resource: r, Action: ActionCreate},
		{Resource: r, Action: ActionRead},
		{Resource: r, Action: ActionUpdate},
		{Resource: r, Action: ActionDelete},
		{Resource: r, Action: ActionManage},
	}
}

// fingerprint is a canonical rendering of a definition: sorted grants plus
// the capability flags. Identical content yields an identical fingerprint
// regardless of grant order.
func fingerprint(def Definition) string {
	grants := make([]string, 0, len(def.Permissions))
	for _, p := range def.Permissions {
		grants = append(grants, string(p.Resource)+":"+strconv.Itoa(int(p.Action)))
	}
	sort.Strings(grants)

	var b strings.Builder
	for _, g := range grants {
		b.WriteString(g)
		b.WriteByte('\n')
	}
	if def.CanSelfServicePassword {
		b.WriteString("+self-service-password")
	}
	return b.String()
}
