package transform

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfiguration is returned when a transform cannot be built from
// the given configuration. It is the only error that fails loudly; problems
// with individual links never do.
var ErrInvalidConfiguration = errors.New("invalid transform configuration")

const (
	defaultConcurrency = 8
	defaultTimeout     = 10 * time.Second
)

// Options controls the shape of the emitted embeds.
type Options struct {
	// SyncWidget renders rich and video embeds inline instead of as a
	// placeholder paired with the loader.
	SyncWidget bool
	// AsyncImg wraps photo embeds in a lazy-loading wrapper.
	AsyncImg bool
	// JSX emits component-style markup (className, self-closed void
	// elements, expression attributes).
	JSX bool

	// Concurrency bounds parallel resolutions. Zero means the default.
	Concurrency int
	// Timeout bounds each resolution. Zero means the default.
	Timeout time.Duration
	// Sanitize runs provider markup through Config.Sanitizer.
	Sanitize bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{Concurrency: defaultConcurrency, Timeout: defaultTimeout}
}

func (o Options) withDefaults() Options {
	if o.Concurrency == 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.Timeout == 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

func (o Options) validate() error {
	if o.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must be >= 0, got %d", ErrInvalidConfiguration, o.Concurrency)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0, got %s", ErrInvalidConfiguration, o.Timeout)
	}
	return nil
}

// ParseOptions reads options from a loosely typed mapping such as decoded
// JSON or YAML. Unknown keys are ignored. A recognized key holding a value
// of the wrong type yields ErrInvalidConfiguration.
func ParseOptions(m map[string]any) (Options, error) {
	o := DefaultOptions()

	for key, v := range m {
		var err error
		switch key {
		case "syncWidget":
			o.SyncWidget, err = boolOption(key, v)
		case "asyncImg":
			o.AsyncImg, err = boolOption(key, v)
		case "jsx":
			o.JSX, err = boolOption(key, v)
		case "sanitize":
			o.Sanitize, err = boolOption(key, v)
		case "concurrency":
			o.Concurrency, err = intOption(key, v)
		case "timeout":
			o.Timeout, err = durationOption(key, v)
		}
		if err != nil {
			return Options{}, err
		}
	}

	if err := o.validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

func boolOption(key string, v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	}
	return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidConfiguration, key, v)
}

func intOption(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidConfiguration, key, v)
}

// durationOption accepts a duration string ("5s") or a number of
// milliseconds.
func durationOption(key string, v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, key, err)
		}
		return parsed, nil
	case int:
		return time.Duration(d) * time.Millisecond, nil
	case float64:
		return time.Duration(d * float64(time.Millisecond)), nil
	}
	return 0, fmt.Errorf("%w: %s must be a duration, got %T", ErrInvalidConfiguration, key, v)
}
