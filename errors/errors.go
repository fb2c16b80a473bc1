package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// As and Is forward to the standard library so callers matching an
// AppError do not need a second errors import.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Is reports whether err matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// AppError là custom error type cho application
type AppError struct {
	Raw       error
	HTTPCode  int
	Code      ErrorCode
	Message   string
	Details   map[string]string
	Timestamp time.Time
}

// Error implements error interface
func (e AppError) Error() string {
	if e.Raw != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code.String(), e.Message, e.Raw)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e AppError) Unwrap() error {
	return e.Raw
}

// WithDetail adds a detail to the error
func (e AppError) WithDetail(key, value string) AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// General Errors
func ErrInternal(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTERNAL,
		Message:  "Internal server error",
	}
}

func ErrInvalidArgument(message string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_ARGUMENT,
		Message:  message,
	}
}

func ErrNotFound(resource string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  fmt.Sprintf("%s not found", resource),
	}
}

// Session lifecycle errors

// ErrAlreadyRecording is returned when a start request hits a channel that
// already has an active session.
func ErrAlreadyRecording(channelID string) AppError {
	return AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_SESSION_ALREADY_RECORDING,
		Message:  "Channel is already being recorded",
	}.WithDetail("channel_id", channelID)
}

// ErrNotRecording is returned for stop requests against a channel with no
// active session. Double-stop lands here too.
func ErrNotRecording(channelID string) AppError {
	return AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_SESSION_NOT_RECORDING,
		Message:  "Channel is not being recorded",
	}.WithDetail("channel_id", channelID)
}

// Capture pipeline errors

func ErrCaptureFailed(speakerID string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_CAPTURE_FAILED,
		Message:  "Capture stream failed",
	}.WithDetail("speaker_id", speakerID)
}

func ErrValidationFailed(path string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_VALIDATION_FAILED,
		Message:  "Capture file failed validation",
	}.WithDetail("path", path)
}

func ErrConversionFailed(path string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_CONVERSION_FAILED,
		Message:  "Failed to normalize capture file",
	}.WithDetail("path", path)
}

// ErrMergeFailed marks a whole-segment failure: the merge/concat process for
// one segment did not produce an artifact. Intermediates are retained.
func ErrMergeFailed(segment string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_MERGE_FAILED,
		Message:  "Failed to merge segment",
	}.WithDetail("segment", segment)
}

// ErrFinalizationFailed marks a whole-meeting failure: per-segment artifacts
// are retained for manual recovery.
func ErrFinalizationFailed(meeting string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_FINALIZATION_FAILED,
		Message:  "Failed to finalize meeting recording",
	}.WithDetail("meeting", meeting)
}

// ErrNoUsableAudio reports the "recording ended with no usable audio"
// outcome: the session ran but no segment produced an artifact.
func ErrNoUsableAudio(meeting string) AppError {
	return AppError{
		HTTPCode: http.StatusOK,
		Code:     ErrorCode_NO_USABLE_AUDIO,
		Message:  "Recording ended with no usable audio",
	}.WithDetail("meeting", meeting)
}

// Collaborator errors

func ErrCodecUnavailable(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusServiceUnavailable,
		Code:     ErrorCode_CODEC_UNAVAILABLE,
		Message:  "Audio codec process unavailable",
	}
}

func ErrStorageFailed(operation string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_STORAGE_FAILED,
		Message:  fmt.Sprintf("Storage operation failed: %s", operation),
	}
}

func ErrTranscriptionFailed(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_TRANSCRIPTION_FAILED,
		Message:  "Audio transcription failed",
	}
}

func ErrSummaryFailed(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_SUMMARY_FAILED,
		Message:  "Failed to generate summary",
	}
}

func ErrDBQueryFailed(query string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_DB_QUERY_FAILED,
		Message:  "Database query failed",
	}.WithDetail("query", query)
}
