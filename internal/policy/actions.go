package policy

const (
	ObjectBuilding  = "building"
	ObjectDirectory = "directory"
	ObjectFinance   = "finance"
	ObjectMeter     = "meter"
	ObjectIntercom  = "intercom"
	ObjectPolicy    = "policy"
)

const (
	ActionBuildingView   = "building.view"
	ActionBuildingManage = "building.manage"
	ActionUnitManage     = "unit.manage"

	ActionMembershipView   = "membership.view"
	ActionMembershipManage = "membership.manage"

	ActionExpenseView   = "expense.view"
	ActionExpenseCreate = "expense.create"
	ActionExpenseUpdate = "expense.update"
	ActionExpenseDelete = "expense.delete"

	ActionAllocationRecompute = "allocation.recompute"

	ActionInvoiceView  = "invoice.view"
	ActionInvoiceIssue = "invoice.issue"
	ActionInvoiceVoid  = "invoice.void"

	ActionPaymentRecord = "payment.record"
	ActionLateFeeApply  = "latefee.apply"

	ActionReadingView   = "reading.view"
	ActionReadingRecord = "reading.record"

	ActionIntercomCallUnit = "intercom.call_unit"
	ActionIntercomManage   = "intercom.manage"

	ActionPolicyView     = "policy.view"
	ActionPolicyOverride = "policy.override"
)

// actionObjects is the closed catalog of actions and the object each
// action is enforced against. Anything outside this map is rejected.
var actionObjects = map[string]string{
	ActionBuildingView:   ObjectBuilding,
	ActionBuildingManage: ObjectBuilding,
	ActionUnitManage:     ObjectBuilding,

	ActionMembershipView:   ObjectDirectory,
	ActionMembershipManage: ObjectDirectory,

	ActionExpenseView:         ObjectFinance,
	ActionExpenseCreate:       ObjectFinance,
	ActionExpenseUpdate:       ObjectFinance,
	ActionExpenseDelete:       ObjectFinance,
	ActionAllocationRecompute: ObjectFinance,
	ActionInvoiceView:         ObjectFinance,
	ActionInvoiceIssue:        ObjectFinance,
	ActionInvoiceVoid:         ObjectFinance,
	ActionPaymentRecord:       ObjectFinance,
	ActionLateFeeApply:        ObjectFinance,

	ActionReadingView:   ObjectMeter,
	ActionReadingRecord: ObjectMeter,

	ActionIntercomCallUnit: ObjectIntercom,
	ActionIntercomManage:   ObjectIntercom,

	ActionPolicyView:     ObjectPolicy,
	ActionPolicyOverride: ObjectPolicy,
}

// unitScopedActions target a single unit. When the caller names the
// unit, resident membership grants only count in that unit. Calling an
// intercom endpoint is deliberately absent: any resident may ring
// within the building and the endpoint's own lists gate the target.
var unitScopedActions = map[string]bool{
	ActionUnitManage:    true,
	ActionInvoiceView:   true,
	ActionInvoiceVoid:   true,
	ActionPaymentRecord: true,
	ActionLateFeeApply:  true,
	ActionReadingView:   true,
	ActionReadingRecord: true,
}

// UnitScoped reports whether an action targets a single unit.
func UnitScoped(action string) bool {
	return unitScopedActions[action]
}

// destructiveActions may never be granted through a building override;
// they stay in the hands of the static matrices.
var destructiveActions = map[string]bool{
	ActionExpenseDelete:  true,
	ActionInvoiceVoid:    true,
	ActionPolicyOverride: true,
}

// KnownAction reports whether action is part of the catalog.
func KnownAction(action string) bool {
	_, ok := actionObjects[action]
	return ok
}

// ObjectFor returns the object an action is enforced against.
func ObjectFor(action string) (string, bool) {
	obj, ok := actionObjects[action]
	return obj, ok
}
