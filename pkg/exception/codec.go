package exception

import "errors"

// Codec errors
var (
	ErrMalformedPayload = errors.New("codec: malformed payload")
)
