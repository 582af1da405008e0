package pipeline

// Terminal error codes. Everything repairable stays inside the loop;
// these are the reasons a request can still fail after it.
const (
	CodeClassificationFailed = "CLASSIFICATION_FAILED"
	CodeUnsupportedQuestion  = "UNSUPPORTED_QUESTION"
	CodeGenerationFailed     = "GENERATION_FAILED"
	CodeRepairExhausted      = "REPAIR_EXHAUSTED"
	CodeExecutionFailed      = "EXECUTION_FAILED"
)

// Error is the single terminal failure shape the API layer renders.
// Detail carries the precise reason that defeated the last attempt,
// verbatim, because callers and operators debug from it.
type Error struct {
	Code      string
	Detail    string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}
