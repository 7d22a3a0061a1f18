package reporter

import "errors"

// ErrMalformedReport indicates tool output that could not be parsed as the
// expected report format
var ErrMalformedReport = errors.New("malformed report")
