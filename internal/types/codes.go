package types

// Provider result codes carried by initiation, query and transfer results.
const (
	CodeOK              = 0
	CodeInvalidArgument = 1
	CodeTaskNotFound    = 2
	CodeNetwork         = 3
	CodeStorage         = 4
	CodeQueue           = 5
	CodeProcessing      = 6
	CodeRejected        = 7
	CodeCancelled       = 8
	CodeInternal        = 9
)

var codeText = map[int]string{
	CodeOK:              "ok",
	CodeInvalidArgument: "invalid argument",
	CodeTaskNotFound:    "task not found",
	CodeNetwork:         "network error",
	CodeStorage:         "storage error",
	CodeQueue:           "queue error",
	CodeProcessing:      "processing error",
	CodeRejected:        "initiation rejected",
	CodeCancelled:       "cancelled",
	CodeInternal:        "internal error",
}

// CodeText returns a short description for a provider result code.
func CodeText(code int) string {
	if s, ok := codeText[code]; ok {
		return s
	}
	return "unknown error"
}
