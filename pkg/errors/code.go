package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges:
// 10000-10999: system & common errors
// 20000-20099: intake & catalog (assignments, submissions, roster)
// 20100-20199: workspace & version control
// 20200-20299: build & test
// 20300-20399: scoring & gradebook
// 20400-20499: change-request provider & job dispatch

const (
	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201
	LockFailed ErrorCode = 10203

	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10303

	TokenExpired ErrorCode = 10400
	TokenInvalid ErrorCode = 10401

	StorageError ErrorCode = 10500
	QueueError   ErrorCode = 10600

	// Intake & catalog
	AssignmentNotFound  ErrorCode = 20000
	SubmissionNotFound  ErrorCode = 20001
	SubmissionDuplicate ErrorCode = 20002
	AuthorNotFound      ErrorCode = 20003
	RosterImportFailed  ErrorCode = 20004
	WebhookRejected     ErrorCode = 20005

	// Workspace & version control
	VCSOperationFailed ErrorCode = 20100
	PatchApplyFailed   ErrorCode = 20101
	WorkspaceBusy      ErrorCode = 20102
	WorkspaceCleanup   ErrorCode = 20103

	// Build & test
	CompilationError ErrorCode = 20200
	ExecutionFailed  ErrorCode = 20201
	UnrecognizedFile ErrorCode = 20202
	PersonalFolder   ErrorCode = 20203

	// Scoring & gradebook
	GradebookError   ErrorCode = 20300
	FormulaInvalid   ErrorCode = 20301
	GradebookNoSheet ErrorCode = 20302

	// Provider & dispatch
	ProviderError   ErrorCode = 20400
	MergeRejected   ErrorCode = 20401
	ReviewQueueFull ErrorCode = 20402
)

var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	CacheError: "Cache operation failed",
	CacheMiss:  "Cache miss",
	LockFailed: "Failed to acquire lock",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	StorageError: "Object storage operation failed",
	QueueError:   "Message queue operation failed",

	AssignmentNotFound:  "Assignment not found",
	SubmissionNotFound:  "Submission not found",
	SubmissionDuplicate: "Submission already recorded",
	AuthorNotFound:      "Author is not on the roster",
	RosterImportFailed:  "Roster import failed",
	WebhookRejected:     "Webhook event rejected",

	VCSOperationFailed: "Version control operation failed",
	PatchApplyFailed:   "Patch does not apply",
	WorkspaceBusy:      "Workspace is in use by another review",
	WorkspaceCleanup:   "Workspace cleanup failed",

	CompilationError: "Compilation error",
	ExecutionFailed:  "Program execution failed",
	UnrecognizedFile: "Unrecognized file",
	PersonalFolder:   "File is outside the author's personal folder",

	GradebookError:   "Gradebook operation failed",
	FormulaInvalid:   "Gradebook formula is invalid",
	GradebookNoSheet: "Gradebook sheet not found",

	ProviderError:   "Change-request provider call failed",
	MergeRejected:   "Change-request could not be merged",
	ReviewQueueFull: "Review queue is full, please try again later",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden, c == WebhookRejected:
		return 403
	case c == NotFound, c == RecordNotFound, c == AssignmentNotFound, c == SubmissionNotFound, c == AuthorNotFound:
		return 404
	case c == SubmissionDuplicate, c == RecordAlreadyExists, c == WorkspaceBusy:
		return 409
	case c == TooManyRequests, c == ReviewQueueFull:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c == InvalidParams, c >= 10300 && c < 10400, c == FormulaInvalid:
		return 400
	default:
		return 500
	}
}
