package buildinfo

import (
	"strings"
	"testing"
)

func TestTemplate(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })

	Version, Commit, Date = "v1.2.3", "0123456789abcdef", "2026-01-02T03:04:05Z"

	if got, want := Template(), "{{.Name}} v1.2.3 (0123456, 2026-01-02T03:04:05Z)\n"; got != want {
		t.Errorf("Template() = %q, want %q", got, want)
	}
	if got := String(); !strings.Contains(got, "commit: 0123456789abcdef") {
		t.Errorf("String() = %q, want full commit", got)
	}
	if got := UserAgent(); got != "minpm/1.2.3" {
		t.Errorf("UserAgent() = %q, want minpm/1.2.3", got)
	}
}

func TestTemplateDev(t *testing.T) {
	if Version != "dev" {
		t.Skip("built with ldflags")
	}
	if got := Template(); !strings.Contains(got, "dev (none, unknown)") {
		t.Errorf("Template() = %q", got)
	}
}
