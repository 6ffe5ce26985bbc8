package errs

import sterrors "errors"

var (
	ErrServiceRequired      = sterrors.New("choreo: event service is required")
	ErrHandlerRequired      = sterrors.New("choreo: handler function is required")
	ErrConsumeQueueRequired = sterrors.New("choreo: consume routing key is required")
	ErrHandlerNameRequired  = sterrors.New("choreo: handler name is required")
	ErrEventTypePointer     = sterrors.New("choreo: consumed event type must be a pointer")
	ErrPublisherRequired    = sterrors.New("choreo: publisher is required")
	ErrRoutingKeyRequired   = sterrors.New("choreo: routing key is required")
	ErrEventPayloadRequired = sterrors.New("choreo: event payload is required")
	ErrBrokerUnreachable    = sterrors.New("choreo: broker unreachable after retries")
)

// UnprocessableEventError marks payloads that can never be processed, no
// matter how often they are redelivered. The poison queue middleware routes
// these to the dead letter queue instead of retrying them.
type UnprocessableEventError struct {
	eventMessage string
	err          error
}

// NewUnprocessableEvent wraps a payload that failed unmarshalling or
// structural validation.
func NewUnprocessableEvent(eventMessage string, err error) *UnprocessableEventError {
	return &UnprocessableEventError{eventMessage: eventMessage, err: err}
}

func (e *UnprocessableEventError) Error() string {
	return "unprocessable event: " + e.eventMessage + " error: " + e.err.Error()
}

func (e *UnprocessableEventError) Unwrap() error {
	return e.err
}
