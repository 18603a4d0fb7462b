package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("grid opened")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("grid opened")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestComponent(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})

	logf := Component("nadcon")
	logf("opened %s", "conus.las")

	// swapping the logger after Component was created still routes output
	var later string
	SetLogger(func(format string, v ...interface{}) {
		later = fmt.Sprintf(format, v...)
	})
	logf("fallback at %.1f", 10.5)

	if len(got) != 1 || got[0] != "[nadcon] opened conus.las" {
		t.Errorf("got %q", got)
	}
	if later != "[nadcon] fallback at 10.5" {
		t.Errorf("later = %q", later)
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}
