package privacy

// SanitizedError carries an error whose message has been scrubbed of
// credentials. errors.Is and errors.As still see the original through Unwrap.
type SanitizedError struct {
	original error
	message  string
}

func (e *SanitizedError) Error() string { return e.message }

func (e *SanitizedError) Unwrap() error { return e.original }

// WrapError scrubs err's message, for errors from clients that echo their
// service URL back, such as shoutrrr senders:
//
//	if err := sender.Send(msg, nil); err != nil {
//	    return privacy.WrapError(err)
//	}
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{original: err, message: ScrubMessage(err.Error())}
}
