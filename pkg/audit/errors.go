package audit

import "errors"

// ErrEventValidation indicates event validation failed
var ErrEventValidation = errors.New("event validation failed")
