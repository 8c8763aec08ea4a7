package auth

import "strings"

// Permission strings have the form resource:action, optionally followed by
// :category. A grant of "*" allows everything, "resource:action:*" allows the
// action on any category, and a bare "resource:action" grant also applies to
// every category.
const (
	PermTokensIssue    = "tokens:issue"
	PermReviewsCreate  = "reviews:create"
	PermAnalyticsRead  = "analytics:read"
	PermAll            = "*"
	categoryWildcard   = "*"
	categoryScopedRole = "staff_"
)

type PermissionSet []string

// Allows reports whether the set grants perm. An empty category checks the
// unscoped permission, which any category-scoped grant of the same action
// satisfies (used to gate routes before the category is known).
func (p PermissionSet) Allows(perm, category string) bool {
	for _, grant := range p {
		if grant == PermAll || grant == perm {
			return true
		}
		if !strings.HasPrefix(grant, perm+":") {
			continue
		}
		scope := strings.TrimPrefix(grant, perm+":")
		if category == "" || scope == categoryWildcard || scope == category {
			return true
		}
	}
	return false
}

// AllowsAll reports whether the set grants perm on every category: a "*"
// grant, the bare perm, or perm:*. Category-scoped grants do not count.
func (p PermissionSet) AllowsAll(perm string) bool {
	for _, grant := range p {
		if grant == PermAll || grant == perm || grant == perm+":"+categoryWildcard {
			return true
		}
	}
	return false
}

// DefaultPermissions returns the grants implied by a role when a user row
// carries no explicit permissions.
func DefaultPermissions(role string) PermissionSet {
	switch {
	case role == "admin":
		return PermissionSet{PermAll}
	case role == "viewer":
		return PermissionSet{PermAnalyticsRead}
	case role == "staff":
		return PermissionSet{PermTokensIssue + ":*", PermReviewsCreate + ":*"}
	case strings.HasPrefix(role, categoryScopedRole):
		cat := strings.TrimPrefix(role, categoryScopedRole)
		if cat == "" {
			return nil
		}
		return PermissionSet{PermTokensIssue + ":" + cat, PermReviewsCreate + ":" + cat}
	default:
		return nil
	}
}
