package version

import "testing"

func TestForTestingRestores(t *testing.T) {
	restore := ForTesting("1.2.3")
	if String() != "1.2.3" {
		t.Fatalf("override not applied: %s", String())
	}
	restore()
	if String() != "dev" {
		t.Fatalf("override not restored: %s", String())
	}
}

func TestFormatVersion(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"dev":   "dev",
		"0.1.0": "v0.1.0",
		"v2.0":  "v2.0",
	}
	for in, want := range cases {
		if got := FormatVersion(in); got != want {
			t.Errorf("FormatVersion(%q) = %q, want %q", in, got, want)
		}
	}
}
