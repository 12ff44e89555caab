package visual

import "testing"

func TestPageIndexFromName(t *testing.T) {
	cases := map[string]int{
		"doc_3_Im0.png":  2,
		"doc_1_Im2.jpeg": 0,
		"no_match.png":   0,
	}
	for name, want := range cases {
		if got := pageIndexFromName(name); got != want {
			t.Errorf("pageIndexFromName(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestDecodedDimensions_InvalidData(t *testing.T) {
	w, h := decodedDimensions([]byte("not an image"))
	if w != 0 || h != 0 {
		t.Errorf("expected zero dimensions for invalid data, got %dx%d", w, h)
	}
}
