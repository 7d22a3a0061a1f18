package config

import "errors"

// ErrInvalidConfig indicates a project configuration document that cannot
// be turned into a stage plan
var ErrInvalidConfig = errors.New("invalid project configuration")
