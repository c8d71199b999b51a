package authz

// Role identifies a position in the privilege hierarchy.
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleAdmin       Role = "ADMIN"
	RoleManager     Role = "MANAGER"
	RolePremiumUser Role = "PREMIUM_USER"
	RoleUser        Role = "USER"
)

// DefaultHierarchy maps each role to the roles it inherits from, parent-most
// first. SUPER_ADMIN > ADMIN > MANAGER > PREMIUM_USER > USER; a holder of a
// role implicitly holds every grant of every role beneath it in the chain.
var DefaultHierarchy = map[Role][]Role{
	RoleSuperAdmin:  {RoleAdmin},
	RoleAdmin:       {RoleManager},
	RoleManager:     {RolePremiumUser},
	RolePremiumUser: {RoleUser},
	RoleUser:        {},
}

// DefaultGrants maps each role to the permissions granted directly, not
// counting inherited ones. SUPER_ADMIN is intentionally empty: it is
// satisfied by hierarchy, not enumeration.
var DefaultGrants = map[Role][]Permission{
	RoleSuperAdmin: {},

	RoleAdmin: {
		PermUserManage,
		PermContentManage,
		PermMediaManage,

		PermBlogCreate, PermBlogRead, PermBlogUpdate, PermBlogDelete,
		PermBlogReview, PermBlogManage,

		PermPortfolioCreate, PermPortfolioRead, PermPortfolioUpdate,
		PermPortfolioDelete, PermPortfolioManage,

		PermPricingCreate, PermPricingRead, PermPricingUpdate,
		PermPricingDelete, PermPricingManage,

		PermTeamCreate, PermTeamRead, PermTeamUpdate, PermTeamDelete,
		PermTeamManage,

		PermFAQCreate, PermFAQRead, PermFAQUpdate, PermFAQDelete,
		PermFAQManage,

		PermLeadRead, PermLeadUpdate, PermLeadDelete,
		PermEnquiryRead, PermEnquiryReply,

		PermSettingsRead, PermSettingsUpdate,
		PermAnalyticsRead,
		PermSystemRead, PermSystemUpdate,

		PermSubscriptionRead, PermSubscriptionUpdate, PermSubscriptionDelete,
	},

	RoleManager: {
		PermContentRead,
		PermContentUpdate,
		PermLeadRead,
		PermLeadUpdate,
		PermEnquiryRead,
		PermEnquiryReply,
		PermAnalyticsRead,
	},

	RolePremiumUser: {
		PermContentRead,
		PermProfileRead,
		PermProfileUpdate,
	},

	RoleUser: {
		PermContentRead,
		PermProfileRead,
		PermProfileUpdate,
		PermSubscriptionCreate,
	},
}
