package util

import (
	"strings"
	"testing"
)

func TestLineCol(t *testing.T) {
	src := "abc\ndef\nghi"
	tests := []struct {
		pos  int
		line int
		col  int
	}{
		{0, 1, 1},
		{2, 1, 3},
		{4, 2, 1},
		{6, 2, 3},
		{8, 3, 1},
	}
	for _, tt := range tests {
		line, col := LineCol(src, tt.pos)
		if line != tt.line || col != tt.col {
			t.Errorf("LineCol(%d) = %d:%d, want %d:%d", tt.pos, line, col, tt.line, tt.col)
		}
	}
}

func TestContextSnippet(t *testing.T) {
	src := "one\ntwo\nthree\nfour"
	out := ContextSnippet(src, 3, 2)
	if !strings.Contains(out, "  >    3 | three") {
		t.Errorf("missing marked line:\n%s", out)
	}
	if !strings.Contains(out, "       1 | one") || !strings.Contains(out, "       2 | two") {
		t.Errorf("missing context lines:\n%s", out)
	}
	if !strings.Contains(out, "^ unexpected here") {
		t.Errorf("missing column marker:\n%s", out)
	}
}

func TestContextSnippetFirstLine(t *testing.T) {
	out := ContextSnippet("only", 1, 1)
	if !strings.Contains(out, "  >    1 | only") || !strings.Contains(out, "^ unexpected here") {
		t.Errorf("got:\n%s", out)
	}
}
