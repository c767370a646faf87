package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrIndexDisabled = errors.New("export index disabled")
)
