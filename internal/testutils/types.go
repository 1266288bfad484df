package testutils

import "testing"

// TestingT is the part of testing.TB the helpers of this package need.
type TestingT interface {
	Helper()
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

var _ TestingT = (testing.TB)(nil)
