package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Jane Doe\njane.doe@example.com | +1 (555) 123-9876 | linkedin.com/in/janedoe\nCard 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]", "[REDACTED_PROFILE]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if !strings.HasPrefix(out, "Jane Doe\n") {
		t.Fatalf("name line should survive: %q", out)
	}
}

func TestRedactPIIKeepsPlainResumeText(t *testing.T) {
	inputs := []string{
		"Senior engineer since 2019. Built Go services handling 10k rps.",
		"Acme Corp, 2015-2020: built distributed caching systems",
		"Globex (2018 - 2021) backend engineer",
		"Initech 2012-2015, Hooli 2015-2019, Pied Piper 2019-2024",
	}
	for _, input := range inputs {
		out, changed := RedactPII(input)
		if changed || out != input {
			t.Fatalf("RedactPII(%q) = %q, %v; want unchanged", input, out, changed)
		}
	}
}

func TestRedactPIIPhoneNeedsTenDigits(t *testing.T) {
	cases := map[string]bool{
		"call 555-123-9876":     true,
		"call (555) 123 9876":   true,
		"call +44 20 7946 0958": true,
		"call 123-4567":         false,
		"call 2015 - 2020":      false,
	}
	for input, want := range cases {
		out, _ := RedactPII(input)
		if got := strings.Contains(out, "[REDACTED_PHONE]"); got != want {
			t.Fatalf("RedactPII(%q) = %q, phone redacted = %v, want %v", input, out, got, want)
		}
	}
}
