package resource

import "github.com/bjaus/restroute"

// Action is one of the CRUD operations a resource exposes.
type Action string

// Resource actions.
const (
	ActionList   Action = "list"
	ActionGet    Action = "get"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// AnyAction keys a policy rule applying to every action without its own rule.
	AnyAction Action = "*"
)

// Actions lists every action in route order.
var Actions = []Action{ActionList, ActionGet, ActionCreate, ActionUpdate, ActionDelete}

// CapabilityChecker asks the host whether the current user holds a capability.
type CapabilityChecker interface {
	CurrentUserCan(req restroute.Request, capability string) bool
}

// CapabilityFunc adapts a function to CapabilityChecker.
type CapabilityFunc func(req restroute.Request, capability string) bool

// CurrentUserCan calls f.
func (f CapabilityFunc) CurrentUserCan(req restroute.Request, capability string) bool {
	return f(req, capability)
}

// Rule decides access to one action. Exactly one of its forms is used, in
// order: Func, Allowed, Capabilities (any of).
type Rule struct {
	Func         restroute.PermissionFunc
	Allowed      *bool
	Capabilities []string
}

// Allow returns a rule that always grants access.
func Allow() Rule {
	t := true
	return Rule{Allowed: &t}
}

// Deny returns a rule that never grants access.
func Deny() Rule {
	f := false
	return Rule{Allowed: &f}
}

// Capability returns a rule granting access to users holding any of caps.
func Capability(caps ...string) Rule {
	return Rule{Capabilities: caps}
}

// RuleFunc returns a rule delegating to fn.
func RuleFunc(fn restroute.PermissionFunc) Rule {
	return Rule{Func: fn}
}

func (r Rule) allows(req restroute.Request, checker CapabilityChecker) bool {
	switch {
	case r.Func != nil:
		return r.Func(req)
	case r.Allowed != nil:
		return *r.Allowed
	case len(r.Capabilities) > 0:
		if checker == nil {
			return false
		}
		for _, c := range r.Capabilities {
			if c != "" && checker.CurrentUserCan(req, c) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Policy controls access to a resource. Public short-circuits to allow;
// otherwise Permission decides; otherwise the rule for the action (or the
// AnyAction rule) decides. Without any rule, reads are allowed and writes
// are denied.
type Policy struct {
	Public     bool
	Permission restroute.PermissionFunc
	Rules      map[Action]Rule
	Checker    CapabilityChecker
	// Scopes are exported as the required scopes of every route.
	Scopes []string
}

// PermissionFor returns the permission check for action.
func (p Policy) PermissionFor(action Action) restroute.PermissionFunc {
	switch {
	case p.Public:
		return restroute.AllowAll
	case p.Permission != nil:
		return p.Permission
	}
	rule, ok := p.Rules[action]
	if !ok {
		rule, ok = p.Rules[AnyAction]
	}
	if !ok {
		if action == ActionList || action == ActionGet {
			return restroute.AllowAll
		}
		return func(restroute.Request) bool { return false }
	}
	checker := p.Checker
	return func(req restroute.Request) bool {
		return rule.allows(req, checker)
	}
}
