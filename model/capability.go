package model

import "strings"

// Role is the viewer role that drives the dual-value rules of the matrix and
// option-form engines. Admins read and edit the published (customer-facing)
// side of a cell; brokers read and edit only their own submitted side.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleBroker Role = "broker"
)

// PublishCapability marks a capability set as administrative: holders see and
// curate the public values of matrix cells and option values.
const PublishCapability = "matrix:publish"

// RoleFor derives the viewer role from a capability set.
func RoleFor(caps CapabilitySet) Role {
	if caps.Has(PublishCapability) {
		return RoleAdmin
	}
	return RoleBroker
}

// CapabilitySet is a set of capabilities granted to a user. Each key is a
// capability string (e.g. "brokers:list:view") and may include wildcards
// (e.g. "brokers:*").
type CapabilitySet map[string]bool

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	// Check wildcard matches: "brokers:*" matches "brokers:list:view",
	// "*" matches everything.
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll returns true if the set matches all given capabilities (including
// via wildcards).
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// HasAny returns true if the set matches at least one of the given
// capabilities (including via wildcards).
func (cs CapabilitySet) HasAny(caps ...string) bool {
	for _, cap := range caps {
		if cs.Has(cap) {
			return true
		}
	}
	return false
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
// Examples:
//
//	"*"              matches anything
//	"brokers:*"      matches "brokers:list:view"
//	"brokers:list:*" matches "brokers:list:view"
//	"brokers:list"   does NOT match "brokers:list:view" (exact only, no wildcard)
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	prefix := pattern[:len(pattern)-1] // "brokers:*" → "brokers:"
	return strings.HasPrefix(cap, prefix)
}

// CapabilityResolver resolves the full capability set for a request context.
type CapabilityResolver interface {
	// Resolve returns all capabilities for the given subject.
	Resolve(rctx *RequestContext) (CapabilitySet, error)

	// Invalidate clears cached capabilities for the given subject.
	Invalidate(subjectID string)
}

// PolicyEvaluator is the backend implementation that resolves capabilities
// from roles and policy files.
type PolicyEvaluator interface {
	// ResolveCapabilities returns the full capability set for the given context.
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)

	// Evaluate checks a single capability.
	Evaluate(rctx *RequestContext, capability string) (bool, error)

	// Sync refreshes policy data from the external source.
	Sync() error
}
