package errorz

import "strings"

// InvalidInput signals that a provided input is invalid due to the wrapped errors.
type InvalidInput []error

// Add appends err under key.
func (e *InvalidInput) Add(key string, err error) {
	*e = append(*e, Keyed{Key: key, Err: err})
}

// OrNil returns e as an error, or nil if it holds no errors.
func (e InvalidInput) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// ByKey returns the messages of all keyed errors. Later errors for the
// same key win.
func (e InvalidInput) ByKey() map[string]string {
	out := make(map[string]string, len(e))
	for _, err := range e {
		if k, ok := err.(Keyed); ok {
			out[k.Key] = k.Err.Error()
		}
	}
	return out
}

func (e InvalidInput) Error() string {
	var b strings.Builder
	b.WriteString("invalid input:\n")
	for _, err := range e {
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

func (e InvalidInput) Unwrap() []error {
	return e
}
