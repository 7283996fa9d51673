package runtime

import "testing"

func TestMaskPhone(t *testing.T) {
	cases := map[string]string{
		"5491122334455": "*********4455",
		"123":           "****",
		"":              "****",
	}
	for in, want := range cases {
		if got := MaskPhone(in); got != want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}
