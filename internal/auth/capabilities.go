// Package auth - capabilities.go defines the permission capabilities of the portal and the
// pure mapping from a profile's (role, department, subrole) to the capabilities it grants.
package auth

import "sort"

// Capability represents a single permission
type Capability string

const (
	// Team application capabilities
	CapApplicationsRead    Capability = "applications:read"
	CapApplicationsApprove Capability = "applications:approve"
	CapApplicationsReject  Capability = "applications:reject"

	// People
	CapUsersRead   Capability = "users:read"
	CapProfileRead Capability = "profile:read"

	// Program content
	CapPresentationsRead  Capability = "presentations:read"
	CapPresentationsWrite Capability = "presentations:write"
	CapChaptersWrite      Capability = "chapters:write"

	// Audit log
	CapAuditRead Capability = "audit:read"

	// Admin (wildcard - all permissions)
	CapAdmin Capability = "admin"
)

// Role names. These match the role column of the profiles table.
const (
	RoleAdmin       = "admin"
	RoleStaff       = "staff"
	RoleChapterLead = "chapter_lead"
	RoleVolunteer   = "volunteer"
	RoleTeacher     = "teacher"
)

// Departments and subroles that refine a role
const (
	DepartmentOutreach   = "outreach"
	DepartmentOperations = "operations"

	SubroleDirector = "director"
	SubroleTeamLead = "team_lead"
)

// AllCapabilities returns every defined capability
func AllCapabilities() []Capability {
	return []Capability{
		CapApplicationsRead,
		CapApplicationsApprove,
		CapApplicationsReject,
		CapUsersRead,
		CapProfileRead,
		CapPresentationsRead,
		CapPresentationsWrite,
		CapChaptersWrite,
		CapAuditRead,
		CapAdmin,
	}
}

// KnownRoles returns the role names understood by Capabilities
func KnownRoles() []string {
	return []string{RoleAdmin, RoleStaff, RoleChapterLead, RoleVolunteer, RoleTeacher}
}

// IsKnownRole reports whether role is one of KnownRoles
func IsKnownRole(role string) bool {
	for _, r := range KnownRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// CapabilitySet is an unordered set of capabilities
type CapabilitySet map[Capability]struct{}

func newSet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether the set grants c. CapAdmin grants everything.
func (s CapabilitySet) Has(c Capability) bool {
	if _, ok := s[CapAdmin]; ok {
		return true
	}
	if _, ok := s[c]; ok {
		return true
	}
	// write implies read
	if c == CapPresentationsRead {
		_, ok := s[CapPresentationsWrite]
		return ok
	}
	return false
}

// Strings returns the capabilities as a sorted string slice
func (s CapabilitySet) Strings() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

// Capabilities maps a profile's role, department and subrole to the capabilities it holds.
// Unknown roles get an empty set.
func Capabilities(role, department, subrole string) CapabilitySet {
	switch role {
	case RoleAdmin:
		return newSet(AllCapabilities()...)

	case RoleStaff:
		s := newSet(
			CapApplicationsRead,
			CapApplicationsApprove,
			CapApplicationsReject,
			CapAuditRead,
			CapUsersRead,
			CapProfileRead,
		)
		switch department {
		case DepartmentOutreach:
			s[CapPresentationsWrite] = struct{}{}
		case DepartmentOperations:
			s[CapChaptersWrite] = struct{}{}
		}
		return s

	case RoleChapterLead:
		s := newSet(CapApplicationsRead, CapChaptersWrite, CapProfileRead)
		if subrole == SubroleDirector {
			s[CapUsersRead] = struct{}{}
		}
		return s

	case RoleVolunteer:
		s := newSet(CapProfileRead)
		if subrole == SubroleTeamLead {
			s[CapPresentationsWrite] = struct{}{}
		}
		return s

	case RoleTeacher:
		return newSet(CapProfileRead, CapPresentationsRead)
	}

	return CapabilitySet{}
}

// HasCapability checks a list of capability strings (as stored in the request
// context) for the required capability, honouring the admin wildcard.
func HasCapability(granted []string, required Capability) bool {
	s := make(CapabilitySet, len(granted))
	for _, g := range granted {
		s[Capability(g)] = struct{}{}
	}
	return s.Has(required)
}
