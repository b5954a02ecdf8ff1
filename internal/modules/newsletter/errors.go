package newsletter

// FlowError is a subscription workflow failure carrying everything the HTTP
// layer needs: status, machine code, human message, and whether a confirmation
// email had already left before the failure happened.
type FlowError struct {
	Status    int
	Code      string
	Message   string
	EmailSent bool
	MessageID string
}

func (e *FlowError) Error() string { return e.Message }

func flowErr(status int, code, message string) *FlowError {
	return &FlowError{Status: status, Code: code, Message: message}
}
