package curve

import (
	"strings"
	"testing"
)

func TestCompile_Expression(t *testing.T) {
	c, err := Compile("max * brightness / input_max")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	defer c.Close()

	got, err := c.Apply(128, 1000, 255, 0)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != 501 {
		t.Errorf("Apply() = %d, want 501", got)
	}
}

func TestCompile_Chunk(t *testing.T) {
	src := `
local x = brightness / input_max
if x == 0 then return 0 end
return min_visible + (max - min_visible) * x * x
`
	c, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	defer c.Close()

	tests := []struct {
		brightness int
		want       int
	}{
		{0, 0},
		{255, 100},
		{128, 32},
	}
	for _, tt := range tests {
		got, err := c.Apply(tt.brightness, 100, 255, 10)
		if err != nil {
			t.Fatalf("Apply(%d) error = %v", tt.brightness, err)
		}
		if got != tt.want {
			t.Errorf("Apply(%d) = %d, want %d", tt.brightness, got, tt.want)
		}
	}
}

func TestCompile_MathLibrary(t *testing.T) {
	c, err := Compile("math.floor(max * math.sqrt(brightness / input_max))")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	defer c.Close()

	got, err := c.Apply(255, 64, 255, 0)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != 64 {
		t.Errorf("Apply() = %d, want 64", got)
	}
}

func TestCompile_SyntaxError(t *testing.T) {
	if _, err := Compile("return ((("); err == nil {
		t.Fatal("Compile() error = nil, want syntax error")
	}
}

func TestApply_NonNumber(t *testing.T) {
	c, err := Compile(`"bright"`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	defer c.Close()

	_, err = c.Apply(1, 1, 255, 0)
	if err == nil {
		t.Fatal("Apply() error = nil, want type error")
	}
	if !strings.Contains(err.Error(), "want number") {
		t.Errorf("Apply() error = %q, want contains %q", err.Error(), "want number")
	}
}

func TestApply_RuntimeError(t *testing.T) {
	c, err := Compile("nosuchfunc(brightness)")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Apply(1, 1, 255, 0); err == nil {
		t.Fatal("Apply() error = nil, want runtime error")
	}
}

func TestApply_RunawayScriptTimesOut(t *testing.T) {
	c, err := Compile("while true do end")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Apply(1, 1, 255, 0); err == nil {
		t.Fatal("Apply() error = nil, want timeout")
	}
}
