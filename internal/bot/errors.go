package bot

import "errors"

// Errors returned by Client.Complete. Callers match them with errors.Is.
var (
	// ErrUnsupportedAPI means AI_API_TYPE is neither lmstudio nor ollama.
	ErrUnsupportedAPI = errors.New("unsupported completion api")
	// ErrBadStatus wraps a non-2xx response.
	ErrBadStatus = errors.New("completion api returned an error status")
	// ErrNoChoices means an LM Studio response had an empty choices array.
	ErrNoChoices = errors.New("no choices in response")
	// ErrEmptyReply means the model answered with blank text.
	ErrEmptyReply = errors.New("model returned an empty reply")
	// ErrModelLoading means the server is still loading the model; it is retried.
	ErrModelLoading = errors.New("model is still loading")
	// ErrNoUsableReply means the response had neither choices nor a response field.
	ErrNoUsableReply = errors.New("no usable reply in response")
	// ErrRetriesExhausted means every Ollama attempt failed.
	ErrRetriesExhausted = errors.New("no reply after retries")
)
