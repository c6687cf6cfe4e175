package jobs

import (
	"errors"
	"fmt"
)

// ErrJobCancelled is raised by the epoch check when a running job's
// (status, started_at) pair no longer matches the claimed run.
var ErrJobCancelled = errors.New("job cancelled")

// CodedError carries a pipeline error code onto the job row.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *CodedError) Unwrap() error { return e.Err }

func Coded(code, format string, args ...any) *CodedError {
	return &CodedError{Code: code, Err: fmt.Errorf(format, args...)}
}

// classifyError maps a pipeline failure to the stored error code.
// Limiter timeouts collapse to E_CONCURRENCY_TIMEOUT; transcribe
// failures default to E_ASR_FAILED, everything else to E_JOB_FAILED.
func classifyError(jobType string, err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case "ASR_CONCURRENCY_TIMEOUT", "LLM_CONCURRENCY_TIMEOUT", "HEAVY_CONCURRENCY_TIMEOUT":
			return "E_CONCURRENCY_TIMEOUT"
		default:
			return coded.Code
		}
	}
	if jobType == "transcribe" {
		return "E_ASR_FAILED"
	}
	return "E_JOB_FAILED"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
