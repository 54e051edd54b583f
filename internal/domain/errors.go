package domain

import "errors"

// ErrEmptyRequest is the only error class surfaced directly to callers; all
// other failures degrade the answer quality instead of aborting.
var ErrEmptyRequest = errors.New("request has no text or image")
