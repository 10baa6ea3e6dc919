package treesitter

import "testing"

func TestSliceLines(t *testing.T) {
	text := "a\nb  \nc\n\nd\n"
	tests := []struct {
		start, end int
		want       string
	}{
		{1, 1, "a"},
		{2, 2, "b"},
		{1, 3, "a\nb  \nc"},
		{3, 4, "c"},
		{5, 5, "d"},
		{5, 9, "d"},
		{0, 1, "a"},
		{3, 2, ""},
		{10, 12, ""},
	}
	for _, tt := range tests {
		if got := SliceLines(text, tt.start, tt.end); got != tt.want {
			t.Errorf("SliceLines(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestDedent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"top level", "def f():\n    pass", "def f():\n    pass"},
		{"method", "    def f(self):\n        pass", "def f(self):\n    pass"},
		{
			"string at column zero kept",
			"    def f(self):\n        return \"\"\"\ntext\n\"\"\"",
			"def f(self):\n    return \"\"\"\ntext\n\"\"\"",
		},
		{"tabs", "\tdef f(self):\n\t\tpass", "def f(self):\n\tpass"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dedent(tt.in); got != tt.want {
				t.Errorf("Dedent() = %q, want %q", got, tt.want)
			}
		})
	}
}
