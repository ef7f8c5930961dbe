package xerrors

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

type stackPCs interface{ StackPCs() []uintptr }

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

func funcName(pc uintptr) string {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	return fn.Name()
}

// New / Newf

func TestNew_StackStartsAtCaller(t *testing.T) {
	err := New("boom")
	if err.Error() != "boom" {
		t.Fatalf("Error() = %q", err.Error())
	}

	var hs stackPCs
	if !errors.As(err, &hs) {
		t.Fatal("New error should expose StackPCs")
	}
	pcs := hs.StackPCs()
	if len(pcs) == 0 {
		t.Fatal("stack should be non-empty")
	}
	if got := funcName(pcs[0] - 1); !strings.Contains(got, "TestNew_StackStartsAtCaller") {
		t.Fatalf("top frame = %q, want the calling test", got)
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf("dependency %q has no probe", "db")
	if want := `dependency "db" has no probe`; err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

// Wrap / Wrapf

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("wrapping nil should return nil")
	}
}

func TestWrap_MessageAndUnwrap(t *testing.T) {
	err := Wrap(errSentinel, "check db")
	if err.Error() != "check db: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("errors.Is should find sentinel")
	}
}

func TestWrapf_RecordsCallerPC(t *testing.T) {
	err := Wrapf(errSentinel, "check %s", "foo")
	if err.Error() != "check foo: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}

	var hp interface{ PC() uintptr }
	if !errors.As(err, &hp) {
		t.Fatal("Wrapf error should expose PC")
	}
	if got := funcName(hp.PC() - 1); !strings.Contains(got, "TestWrapf_RecordsCallerPC") {
		t.Fatalf("PC func = %q, want the calling test", got)
	}
}

func TestWrap_Chain(t *testing.T) {
	err := Wrap(Wrapf(New("root"), "probe %s", "db"), "evaluate")
	if err.Error() != "evaluate: probe db: root" {
		t.Fatalf("Error() = %q", err.Error())
	}

	var hs stackPCs
	if !errors.As(err, &hs) {
		t.Fatal("root stack should be reachable through wraps")
	}
}

// WithStack / EnsureTrace

func TestWithStack(t *testing.T) {
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
	err := WithStack(errSentinel)
	if err.Error() != "sentinel" || !errors.Is(err, errSentinel) {
		t.Fatalf("WithStack changed the error: %v", err)
	}
	var hs stackPCs
	errors.As(err, &hs)
	if !stackContains(hs.StackPCs(), "TestWithStack") {
		t.Fatal("stack should contain caller")
	}
}

func TestEnsureTrace_AddsOnce(t *testing.T) {
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}

	first := EnsureTrace(errSentinel)
	if first == errSentinel {
		t.Fatal("plain error should get a stack")
	}
	if again := EnsureTrace(first); again != first {
		t.Fatal("EnsureTrace should not restack an error that has a stack")
	}

	wrappedNew := Wrap(New("inner"), "outer")
	if EnsureTrace(wrappedNew) != wrappedNew {
		t.Fatal("stack deeper in the chain should be reused")
	}
}

// Join

func TestJoin(t *testing.T) {
	if Join(nil, nil) != nil {
		t.Fatal("Join of nils should be nil")
	}

	other := errors.New("other")
	err := Join(errSentinel, nil, other)
	if !errors.Is(err, errSentinel) || !errors.Is(err, other) {
		t.Fatalf("Join lost an error: %v", err)
	}
	if err.Error() != "sentinel\nother" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var hs stackPCs
	if !errors.As(err, &hs) || len(hs.StackPCs()) == 0 {
		t.Fatal("Join should capture a stack")
	}
}
