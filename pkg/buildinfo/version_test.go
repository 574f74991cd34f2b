package buildinfo

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	s := String()
	for _, prefix := range []string{"version: ", "commit: ", "built: "} {
		if !strings.Contains(s, prefix) {
			t.Errorf("String() = %q, missing %q", s, prefix)
		}
	}
	if !strings.Contains(s, Version) {
		t.Errorf("String() = %q, missing version %q", s, Version)
	}
}

func TestTemplate(t *testing.T) {
	tmpl := Template()
	if !strings.HasPrefix(tmpl, "{{.Name}} ") || !strings.HasSuffix(tmpl, "\n") {
		t.Errorf("Template() = %q", tmpl)
	}
}
