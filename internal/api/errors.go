package api

const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeAuthRequired      = "AUTHENTICATION_REQUIRED"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeResourceNotFound  = "RESOURCE_NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeAlreadyProcessed  = "ALREADY_PROCESSED"
	CodePendingExists     = "PENDING_APPROVAL_EXISTS"
	CodeDuplicatePriority = "DUPLICATE_PRIORITY"
	CodeInternalError     = "INTERNAL_ERROR"
)

type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// additional error context
type ErrorContext map[string]interface{}

// builder pattern
type ErrorBuilder struct {
	Code    string
	Message string
	Details []ErrorDetail
	Context ErrorContext
}

func NewError(code, message string) *ErrorBuilder {
	return &ErrorBuilder{Code: code, Message: message}
}

func (e *ErrorBuilder) WithDetails(details []ErrorDetail) *ErrorBuilder {
	e.Details = details
	return e
}

func (e *ErrorBuilder) WithContext(context ErrorContext) *ErrorBuilder {
	e.Context = context
	return e
}

type errorBody struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Details []ErrorDetail           `json:"details,omitempty"`
	Context *map[string]interface{} `json:"context,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func (e *ErrorBuilder) Create() errorEnvelope {
	var context *map[string]interface{}
	if len(e.Context) > 0 {
		ctx := map[string]interface{}(e.Context)
		context = &ctx
	}

	return errorEnvelope{
		Error: errorBody{
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
			Context: context,
		},
	}
}

// builder pattern extensions

func Unauthorized(msg string) *ErrorBuilder {
	return NewError(CodeAuthRequired, msg)
}

func PermissionDenied(msg string) *ErrorBuilder {
	return NewError(CodePermissionDenied, msg)
}

func NotFound(resource string) *ErrorBuilder {
	return NewError(CodeResourceNotFound, resource+" not found")
}

func ValidationErr(msg string, details []ErrorDetail) *ErrorBuilder {
	return NewError(CodeValidationError, msg).WithDetails(details)
}

func InternalError(msg string) *ErrorBuilder {
	return NewError(CodeInternalError, msg)
}

func ConflictErr(msg string) *ErrorBuilder {
	return NewError(CodeConflict, msg)
}
