package errors

// Messages written to a failed task's status record.
const (
	ErrParse    = "invalid job message"
	ErrDownload = "failed to fetch the uploaded photo"
	ErrGenerate = "failed to generate texture maps"
	ErrUpload   = "failed to store texture maps"
)
