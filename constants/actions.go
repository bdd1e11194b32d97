package constants

// NextAction is the routing decision produced by stage 2. Stage 3 runs
// automatically only for NextActionInvoiceProcessing.
const (
	NextActionInvoiceProcessing = "invoice_processing"
	NextActionManualReview      = "manual_review"
	NextActionVendorApproval    = "vendor_approval"
	NextActionBudgetApproval    = "budget_approval"
)

// Action keys into the code-mapping reference table, first-match priority
// order as evaluated by the stage 2 simulator.
const (
	ActionVendorNotApproved = "vendor_not_approved"
	ActionAmountDiscrepancy = "amount_discrepancy_detected"
	ActionHazardousPresent  = "hazardous_materials_present"
	ActionPastDue           = "past_due_invoice"
	ActionAllChecksPass     = "valid_invoice_all_checks_pass"
)

// Flags attached by stage 2.
const (
	FlagUnapprovedVendor     = "UNAPPROVED_VENDOR"
	FlagAmountDiscrepancy    = "AMOUNT_DISCREPANCY"
	FlagManualReviewRequired = "MANUAL_REVIEW_REQUIRED"
	FlagHazardous            = "HAZARDOUS"
	FlagEHSReviewRequired    = "EHS_REVIEW_REQUIRED"
	FlagPastDue              = "PAST_DUE"
	FlagExpeditedPayment     = "EXPEDITED_PAYMENT"
)
