// Package testerr helps tests simulate failing dependencies.
package testerr

import "errors"

// Err is the error returned by failing dependencies in tests.
var Err = errors.New("test error")

// Calltracker tracks calls to a dependency and decides which of them fail.
// The zero value is ready to use and will never fail.
type Calltracker struct {
	CallIndex         int
	ShouldFail        bool
	Err               error
	FailAllAfterIndex bool
	FailAtIndex       int
}

// NewFailingDeps creates calltrackers that fail at every point in a
// sequence of expectCalls calls, in two ways:
// - A single failure, after which all calls succeed.
// - All calls fail after a number of successful calls.
func NewFailingDeps(err error, expectCalls int) []Calltracker {
	trackers := make([]Calltracker, 0, expectCalls*2)
	for i := 0; i < expectCalls; i++ {
		for _, failAll := range []bool{true, false} {
			trackers = append(trackers, Calltracker{
				CallIndex:         -1,
				ShouldFail:        true,
				Err:               err,
				FailAllAfterIndex: failAll,
				FailAtIndex:       i,
			})
		}
	}

	return trackers
}

// next registers a call and returns the error it should fail with, if any.
func (ct *Calltracker) next() error {
	if !ct.ShouldFail {
		return nil
	}

	ct.CallIndex++

	if ct.CallIndex == ct.FailAtIndex || (ct.FailAllAfterIndex && ct.CallIndex > ct.FailAtIndex) {
		return ct.Err
	}

	return nil
}

// MaybeFailErrFunc calls f unless this call should fail.
func MaybeFailErrFunc(ct *Calltracker, f func() error) error {
	if err := ct.next(); err != nil {
		return err
	}

	return f()
}

// MaybeFail calls f unless this call should fail.
func MaybeFail[T any](ct *Calltracker, f func() (T, error)) (T, error) {
	if err := ct.next(); err != nil {
		var zero T
		return zero, err
	}

	return f()
}
