package plugins

// Unlimited disables the warning threshold
const Unlimited = -1

// WithinThreshold reports whether count warnings are acceptable. An allowed
// value of Unlimited accepts any count.
func WithinThreshold(count, allowed int) bool {
	if allowed == Unlimited {
		return true
	}
	return count <= allowed
}

// AllowedWarnings reads the warning threshold from options: zero by
// default, unlimited for zero-config entries, and allowed_warnings when
// given explicitly.
func AllowedWarnings(plugin string, opts Options) (int, error) {
	allowed := 0

	zero, err := opts.Bool("zero_config", false)
	if err != nil {
		return 0, &ConfigurationError{Plugin: plugin, Err: err}
	}
	if zero {
		allowed = Unlimited
	}

	if opts.Has("allowed_warnings") {
		allowed, err = opts.Int("allowed_warnings", allowed)
		if err != nil {
			return 0, &ConfigurationError{Plugin: plugin, Err: err}
		}
	}
	return allowed, nil
}
