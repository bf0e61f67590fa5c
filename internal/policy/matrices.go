package policy

import (
	directorydomain "github.com/vhodhq/vhod/internal/directory/domain"
	"github.com/vhodhq/vhod/internal/identity"
)

// siteMatrix grants actions to site roles in every building. It is the
// single source of truth; the enforcer is reseeded from it on startup.
var siteMatrix = map[identity.SiteRole][]string{
	identity.SiteRoleSuperadmin: allActions(),
	identity.SiteRoleStaff: {
		ActionBuildingView,
		ActionBuildingManage,
		ActionUnitManage,
		ActionMembershipView,
		ActionMembershipManage,
		ActionExpenseView,
		ActionInvoiceView,
		ActionReadingView,
		ActionIntercomCallUnit,
		ActionIntercomManage,
		ActionPolicyView,
	},
	identity.SiteRoleAccountant: {
		ActionBuildingView,
		ActionExpenseView,
		ActionExpenseCreate,
		ActionExpenseUpdate,
		ActionAllocationRecompute,
		ActionInvoiceView,
		ActionInvoiceIssue,
		ActionInvoiceVoid,
		ActionPaymentRecord,
		ActionLateFeeApply,
		ActionReadingView,
	},
	identity.SiteRoleDeveloper: {
		ActionBuildingView,
		ActionMembershipView,
		ActionExpenseView,
		ActionInvoiceView,
		ActionReadingView,
		ActionPolicyView,
	},
	identity.SiteRoleResident: {},
}

// buildingWideRoles act for the whole building even though their
// membership row is anchored to one unit; unit narrowing skips them.
var buildingWideRoles = map[directorydomain.MembershipRole]bool{
	directorydomain.RoleManager:    true,
	directorydomain.RoleAccountant: true,
}

// membershipMatrix grants actions to membership roles, scoped to the
// building the membership belongs to.
var membershipMatrix = map[directorydomain.MembershipRole][]string{
	directorydomain.RoleManager: {
		ActionBuildingView,
		ActionUnitManage,
		ActionMembershipView,
		ActionMembershipManage,
		ActionExpenseView,
		ActionExpenseCreate,
		ActionExpenseUpdate,
		ActionAllocationRecompute,
		ActionInvoiceView,
		ActionInvoiceIssue,
		ActionPaymentRecord,
		ActionLateFeeApply,
		ActionReadingView,
		ActionReadingRecord,
		ActionIntercomCallUnit,
		ActionIntercomManage,
		ActionPolicyView,
	},
	directorydomain.RoleAccountant: {
		ActionBuildingView,
		ActionExpenseView,
		ActionExpenseCreate,
		ActionExpenseUpdate,
		ActionAllocationRecompute,
		ActionInvoiceView,
		ActionInvoiceIssue,
		ActionPaymentRecord,
		ActionLateFeeApply,
		ActionReadingView,
	},
	directorydomain.RoleOwner: {
		ActionBuildingView,
		ActionMembershipView,
		ActionExpenseView,
		ActionInvoiceView,
		ActionReadingView,
		ActionReadingRecord,
		ActionIntercomCallUnit,
	},
	directorydomain.RoleTenant: {
		ActionBuildingView,
		ActionExpenseView,
		ActionInvoiceView,
		ActionReadingView,
		ActionReadingRecord,
		ActionIntercomCallUnit,
	},
	directorydomain.RoleFamily: {
		ActionBuildingView,
		ActionIntercomCallUnit,
	},
	directorydomain.RoleGuest: {
		ActionIntercomCallUnit,
	},
}

func allActions() []string {
	out := make([]string, 0, len(actionObjects))
	for action := range actionObjects {
		out = append(out, action)
	}
	return out
}
