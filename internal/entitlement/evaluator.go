package entitlement

// Requirement declares what a page or tab demands before rendering.
type Requirement struct {
	kind   requirementKind
	module ModuleID
}

type requirementKind int

const (
	requireAuthenticated requirementKind = iota
	requireAdmin
	requireModule
)

// AnyAuthenticated allows every principal with a record.
func AnyAuthenticated() Requirement {
	return Requirement{kind: requireAuthenticated}
}

// AdminOnly allows only records with the admin flag set.
func AdminOnly() Requirement {
	return Requirement{kind: requireAdmin}
}

// HasModule allows records granted the named module.
func HasModule(id ModuleID) Requirement {
	return Requirement{kind: requireModule, module: id}
}

// DenyReason explains a negative decision. Denials are normal return
// values, not errors.
type DenyReason string

const (
	DenyUnauthenticated  DenyReason = "unauthenticated"
	DenyNotAdmin         DenyReason = "not_admin"
	DenyModuleNotGranted DenyReason = "module_not_granted"
)

// Decision is the evaluator's verdict.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Module  ModuleID
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenyReason, module ModuleID) Decision {
	return Decision{Allowed: false, Reason: reason, Module: module}
}

// Evaluate decides allow/deny for a record against a requirement. It is
// pure: no storage, network, or mutable state. A nil record means no
// session and denies every requirement.
func Evaluate(record *Record, req Requirement) Decision {
	if record == nil {
		return deny(DenyUnauthenticated, "")
	}

	switch req.kind {
	case requireAuthenticated:
		return allow()
	case requireAdmin:
		if record.IsAdmin {
			return allow()
		}
		return deny(DenyNotAdmin, "")
	case requireModule:
		if record.HasModule(req.module) {
			return allow()
		}
		return deny(DenyModuleNotGranted, req.module)
	default:
		return deny(DenyUnauthenticated, "")
	}
}
