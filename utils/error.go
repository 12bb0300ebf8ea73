package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrMissingCredential marks a missing API credential: an empty destination
// token at startup or an account row without one.
var ErrMissingCredential = errors.New("missing api credential")
