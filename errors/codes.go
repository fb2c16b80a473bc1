package errors

// ErrorCode identifies a failure class in the recording pipeline.
type ErrorCode int32

const (
	ErrorCode_UNSPECIFIED ErrorCode = iota
	ErrorCode_INTERNAL
	ErrorCode_INVALID_ARGUMENT
	ErrorCode_NOT_FOUND

	// Session lifecycle
	ErrorCode_SESSION_ALREADY_RECORDING
	ErrorCode_SESSION_NOT_RECORDING

	// Capture pipeline
	ErrorCode_CAPTURE_FAILED
	ErrorCode_VALIDATION_FAILED
	ErrorCode_CONVERSION_FAILED
	ErrorCode_MERGE_FAILED
	ErrorCode_FINALIZATION_FAILED
	ErrorCode_NO_USABLE_AUDIO

	// Collaborators
	ErrorCode_CODEC_UNAVAILABLE
	ErrorCode_STORAGE_FAILED
	ErrorCode_TRANSCRIPTION_FAILED
	ErrorCode_SUMMARY_FAILED
	ErrorCode_DB_QUERY_FAILED

	ErrorCode_HTTP_OK
)

var codeNames = map[ErrorCode]string{
	ErrorCode_UNSPECIFIED:               "UNSPECIFIED",
	ErrorCode_INTERNAL:                  "INTERNAL",
	ErrorCode_INVALID_ARGUMENT:          "INVALID_ARGUMENT",
	ErrorCode_NOT_FOUND:                 "NOT_FOUND",
	ErrorCode_SESSION_ALREADY_RECORDING: "SESSION_ALREADY_RECORDING",
	ErrorCode_SESSION_NOT_RECORDING:     "SESSION_NOT_RECORDING",
	ErrorCode_CAPTURE_FAILED:            "CAPTURE_FAILED",
	ErrorCode_VALIDATION_FAILED:         "VALIDATION_FAILED",
	ErrorCode_CONVERSION_FAILED:         "CONVERSION_FAILED",
	ErrorCode_MERGE_FAILED:              "MERGE_FAILED",
	ErrorCode_FINALIZATION_FAILED:       "FINALIZATION_FAILED",
	ErrorCode_NO_USABLE_AUDIO:           "NO_USABLE_AUDIO",
	ErrorCode_CODEC_UNAVAILABLE:         "CODEC_UNAVAILABLE",
	ErrorCode_STORAGE_FAILED:            "STORAGE_FAILED",
	ErrorCode_TRANSCRIPTION_FAILED:      "TRANSCRIPTION_FAILED",
	ErrorCode_SUMMARY_FAILED:            "SUMMARY_FAILED",
	ErrorCode_DB_QUERY_FAILED:           "DB_QUERY_FAILED",
	ErrorCode_HTTP_OK:                   "OK",
}

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
