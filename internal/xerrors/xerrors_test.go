package xerrors

import (
	"errors"
	"io/fs"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

type stacker interface{ StackPCs() []uintptr }

func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			return false
		}
	}
}

func TestNew_MessageAndStack(t *testing.T) {
	err := New("something broke")
	if err.Error() != "something broke" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var hs stacker
	if !errors.As(err, &hs) {
		t.Fatal("New error should carry StackPCs")
	}
	if !stackContains(hs.StackPCs(), "TestNew_MessageAndStack") {
		t.Fatal("stack should contain the calling test")
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf("port %d in use", 80)
	if err.Error() != "port 80 in use" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
}

func TestWrap_MessageAndUnwrap(t *testing.T) {
	err := Wrapf(errSentinel, "listen on %s", ":80")
	if err.Error() != "listen on :80: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("wrapped error should match sentinel")
	}
	hp, ok := err.(interface{ PC() uintptr })
	if !ok || hp.PC() == 0 {
		t.Fatal("Wrapf should record a caller PC")
	}
}

func TestWrap_PreservesTypedCause(t *testing.T) {
	base := &fs.PathError{Op: "stat", Path: "/var/www", Err: fs.ErrNotExist}
	err := Wrap(Wrap(base, "inner"), "outer")

	var pe *fs.PathError
	if !errors.As(err, &pe) {
		t.Fatal("errors.As should find *fs.PathError")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("errors.Is should find fs.ErrNotExist")
	}
	if err.Error() != "outer: inner: stat /var/www: file does not exist" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestEnsureTrace_AddsOnce(t *testing.T) {
	plain := errors.New("plain")
	traced := EnsureTrace(plain)
	var hs stacker
	if !errors.As(traced, &hs) {
		t.Fatal("EnsureTrace should add a stack to a plain error")
	}
	if again := EnsureTrace(traced); again != traced {
		t.Fatal("EnsureTrace should not re-wrap an error that already has a stack")
	}
	if wrapped := EnsureTrace(Wrap(traced, "ctx")); errors.Unwrap(wrapped) != traced {
		t.Fatal("EnsureTrace should detect a stack deeper in the chain")
	}
}

func TestWithStack_AlwaysWraps(t *testing.T) {
	first := New("x")
	second := WithStack(first)
	if second == first {
		t.Fatal("WithStack should always wrap")
	}
	if errors.Unwrap(second) != first {
		t.Fatal("WithStack should unwrap to the original")
	}
}
