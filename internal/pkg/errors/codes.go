package errors

// Configuration error codes. Raised when a chain or rule is saved.
const (
	CodeRuleInvalid  = "RULE_INVALID"
	CodeChainInvalid = "CHAIN_INVALID"
)

// Approval engine error codes.
const (
	CodeMatchFailed  = "APPROVAL_MATCH_FAILED"
	CodeForbidden    = "FORBIDDEN"
	CodeInvalidState = "INVALID_STATE"
)

// Not found error codes.
const (
	CodeRequisitionNotFound = "REQUISITION_NOT_FOUND"
	CodeApprovalNotFound    = "APPROVAL_NOT_FOUND"
	CodeChainNotFound       = "CHAIN_NOT_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeGroupNotFound       = "GROUP_NOT_FOUND"
)

// Validation error codes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeInternal         = "INTERNAL_ERROR"
)
