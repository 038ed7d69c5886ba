package rela

import (
	"bytes"
	"testing"
)

func runSource(t *testing.T, src string) string {
	t.Helper()
	var out bytes.Buffer
	m := New(DefaultConfig(), &out, nil)
	ip, cerr := m.Compile("test", src)
	if cerr != nil {
		t.Fatalf("Compile: %v", cerr)
	}
	if rerr := m.Run(ip); rerr != nil {
		t.Fatalf("Run: %v", rerr)
	}
	return out.String()
}

// Regression: a call statement inside a loop body used to leave a phantom
// mark-stack entry behind it (compileCall opened its own MARK but never
// closed it), which tripped OP_UNLOOP's mark-balance check on the very
// first iteration.
func TestForLoopCallingFunctionDoesNotUnbalanceMarks(t *testing.T) {
	got := runSource(t, `for i in 3 do print(i) end`)
	want := "0\n1\n2\n"
	if got != want {
		t.Fatalf("output = %q; want %q", got, want)
	}
}

func TestWhileLoopCallingFunctionDoesNotUnbalanceMarks(t *testing.T) {
	got := runSource(t, `
x = 0
while x < 3 do
  x = x + 1
  print(x)
end
`)
	want := "1\n2\n3\n"
	if got != want {
		t.Fatalf("output = %q; want %q", got, want)
	}
}

func TestBareCallStatementBalancesMarks(t *testing.T) {
	got := runSource(t, `print("hello")`)
	if got != "hello\n" {
		t.Fatalf("output = %q; want %q", got, "hello\n")
	}
}

func TestNestedCallExpressionBalancesMarks(t *testing.T) {
	got := runSource(t, `
function add(a, b)
  return a + b
end
print(add(add(1, 2), 3))
`)
	if got != "6\n" {
		t.Fatalf("output = %q; want %q", got, "6\n")
	}
}
