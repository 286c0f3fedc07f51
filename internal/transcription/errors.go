package transcription

import (
	"errors"
	"strings"
)

// Kind classifies a transcription failure
type Kind int

const (
	KindOther Kind = iota
	KindServiceOverloaded
	KindRateLimited
	KindUnauthorized
	KindEmptyResponse
)

func (k Kind) String() string {
	switch k {
	case KindServiceOverloaded:
		return "service_overloaded"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindEmptyResponse:
		return "empty_response"
	default:
		return "other"
	}
}

// Error is a classified transcription failure. Message is suitable for
// showing to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps a transport or service error to a Kind by its message text
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return te
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "503") && strings.Contains(msg, "overloaded"):
		return &Error{Kind: KindServiceOverloaded, Message: "The transcription service is overloaded. Please wait a while and try again.", Err: err}
	case strings.Contains(msg, "429"):
		return &Error{Kind: KindRateLimited, Message: "The API rate limit has been reached. Please wait a while and try again.", Err: err}
	case strings.Contains(msg, "401"):
		return &Error{Kind: KindUnauthorized, Message: "The API key is invalid. Please check the API key setting.", Err: err}
	default:
		return &Error{Kind: KindOther, Message: "An error occurred during transcription: " + err.Error(), Err: err}
	}
}

func emptyResponseError() *Error {
	return &Error{Kind: KindEmptyResponse, Message: "Transcription failed: the response was empty."}
}
