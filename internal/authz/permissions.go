package authz

import "strings"

// Permission is a fine-grained capability of the form "resource:action".
// The action "*" is a wildcard covering every action on the resource.
// Permissions are defined at build time and never user-editable.
type Permission string

const wildcardAction = "*"

const (
	PermUserCreate Permission = "user:create"
	PermUserRead   Permission = "user:read"
	PermUserUpdate Permission = "user:update"
	PermUserDelete Permission = "user:delete"
	PermUserManage Permission = "user:*"

	PermContentCreate Permission = "content:create"
	PermContentRead   Permission = "content:read"
	PermContentUpdate Permission = "content:update"
	PermContentDelete Permission = "content:delete"
	PermContentManage Permission = "content:*"

	PermBlogCreate Permission = "blogs:create"
	PermBlogRead   Permission = "blogs:read"
	PermBlogUpdate Permission = "blogs:update"
	PermBlogDelete Permission = "blogs:delete"
	PermBlogReview Permission = "blogs:review"
	PermBlogManage Permission = "blogs:*"

	PermPortfolioCreate Permission = "portfolio:create"
	PermPortfolioRead   Permission = "portfolio:read"
	PermPortfolioUpdate Permission = "portfolio:update"
	PermPortfolioDelete Permission = "portfolio:delete"
	PermPortfolioManage Permission = "portfolio:*"

	PermPricingCreate Permission = "pricings:create"
	PermPricingRead   Permission = "pricings:read"
	PermPricingUpdate Permission = "pricings:update"
	PermPricingDelete Permission = "pricings:delete"
	PermPricingManage Permission = "pricings:*"

	PermTeamCreate Permission = "teams:create"
	PermTeamRead   Permission = "teams:read"
	PermTeamUpdate Permission = "teams:update"
	PermTeamDelete Permission = "teams:delete"
	PermTeamManage Permission = "teams:*"

	PermFAQCreate Permission = "service-faq:create"
	PermFAQRead   Permission = "service-faq:read"
	PermFAQUpdate Permission = "service-faq:update"
	PermFAQDelete Permission = "service-faq:delete"
	PermFAQManage Permission = "service-faq:*"

	PermMediaUpload Permission = "media:upload"
	PermMediaRead   Permission = "media:read"
	PermMediaDelete Permission = "media:delete"
	PermMediaManage Permission = "media:*"

	PermLeadRead     Permission = "lead:read"
	PermLeadUpdate   Permission = "lead:update"
	PermLeadDelete   Permission = "lead:delete"
	PermEnquiryRead  Permission = "enquiry:read"
	PermEnquiryReply Permission = "enquiry:reply"

	PermProfileRead   Permission = "profile:read"
	PermProfileUpdate Permission = "profile:update"

	PermSettingsRead   Permission = "settings:read"
	PermSettingsUpdate Permission = "settings:update"
	PermAnalyticsRead  Permission = "analytics:read"

	PermSystemRead   Permission = "system:read"
	PermSystemUpdate Permission = "system:update"

	PermSubscriptionCreate Permission = "subscription:create"
	PermSubscriptionRead   Permission = "subscription:read"
	PermSubscriptionUpdate Permission = "subscription:update"
	PermSubscriptionDelete Permission = "subscription:delete"
)

// Resource returns the resource segment of the permission.
func (p Permission) Resource() string {
	if i := strings.IndexByte(string(p), ':'); i >= 0 {
		return string(p)[:i]
	}
	return string(p)
}

// Action returns the action segment of the permission.
func (p Permission) Action() string {
	if i := strings.IndexByte(string(p), ':'); i >= 0 {
		return string(p)[i+1:]
	}
	return ""
}

// IsWildcard reports whether the permission covers all actions on its resource.
func (p Permission) IsWildcard() bool {
	return p.Action() == wildcardAction
}

// Satisfies reports whether holding p grants the required permission.
// A wildcard grant covers every discrete action on the same resource, but a
// check for the wildcard itself is satisfied only by the literal wildcard.
func (p Permission) Satisfies(required Permission) bool {
	if p == required {
		return true
	}
	return p.IsWildcard() && !required.IsWildcard() && p.Resource() == required.Resource()
}

// PermissionSet is a lookup-optimized collection of grants.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from discrete permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Satisfies reports whether any grant in the set covers the required permission.
func (s PermissionSet) Satisfies(required Permission) bool {
	if _, ok := s[required]; ok {
		return true
	}
	if required.IsWildcard() {
		// The literal wildcard was not held; the union of discrete
		// actions never satisfies a wildcard check.
		return false
	}
	wildcard := Permission(required.Resource() + ":" + wildcardAction)
	_, ok := s[wildcard]
	return ok
}
