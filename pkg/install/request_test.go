package install

import (
	"testing"

	"github.com/minpm/minpm/pkg/errors"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		in          string
		wantName    string
		wantVersion string
	}{
		{"left-pad", "left-pad", "latest"},
		{"left-pad@1.3.0", "left-pad", "1.3.0"},
		{"left-pad@^1.3.0", "left-pad", "^1.3.0"},
		{"left-pad@", "left-pad", "latest"},
		{"@scope/name", "@scope/name", "latest"},
		{"@scope/name@2.0.0", "@scope/name", "2.0.0"},
		{"@scope/name@", "@scope/name", "latest"},
		{"@scope/name@next", "@scope/name", "next"},
		{"JSONStream@1.0.0", "JSONStream", "1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			req, err := ParseRequest(tt.in)
			if err != nil {
				t.Fatalf("ParseRequest(%q) error: %v", tt.in, err)
			}
			if req.Name != tt.wantName || req.Version != tt.wantVersion {
				t.Errorf("ParseRequest(%q) = %+v, want {%s %s}", tt.in, req, tt.wantName, tt.wantVersion)
			}
		})
	}
}

func TestParseRequestInvalid(t *testing.T) {
	for _, in := range []string{"", "@", "@1.0.0", "../evil", "a/../../b", "with space"} {
		t.Run(in, func(t *testing.T) {
			if _, err := ParseRequest(in); !errors.Is(err, errors.ErrCodeInvalidPackage) {
				t.Errorf("ParseRequest(%q) error = %v, want INVALID_PACKAGE", in, err)
			}
		})
	}
}

func TestParseRequests(t *testing.T) {
	reqs, err := ParseRequests([]string{"a", "@s/b@1.0.0"})
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 2 || reqs[1].String() != "@s/b@1.0.0" {
		t.Errorf("ParseRequests() = %v", reqs)
	}

	if _, err := ParseRequests([]string{"a", ".."}); err == nil {
		t.Error("expected error for invalid name")
	}
}

func TestStripRange(t *testing.T) {
	tests := map[string]string{
		"^1.2.3": "1.2.3",
		"~1.2.3": "1.2.3",
		"1.2.3":  "1.2.3",
		">=1.0":  ">=1.0",
		"^~1.0":  "~1.0",
		"":       "",
	}
	for in, want := range tests {
		if got := stripRange(in); got != want {
			t.Errorf("stripRange(%q) = %q, want %q", in, got, want)
		}
	}
}
