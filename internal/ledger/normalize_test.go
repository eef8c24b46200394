package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "singular", in: "Apple", want: "apple"},
		{name: "plain plural", in: "Apples", want: "apple"},
		{name: "es plural after x", in: "Boxes", want: "box"},
		{name: "es plural after ss", in: "Glasses", want: "glass"},
		{name: "es plural after ch", in: "Peaches", want: "peach"},
		{name: "es plural after sh", in: "Dishes", want: "dish"},
		{name: "double s kept", in: "Glass", want: "glass"},
		{name: "trim and lower", in: "  BOX  ", want: "box"},
		{name: "known limitation", in: "Gas", want: "ga"},
		{name: "empty", in: "", want: ""},
		{name: "blank", in: "   ", want: ""},
		{name: "lone s", in: "S", want: "s"},
		{name: "space before s", in: "size s", want: "size s"},
		{name: "decomposed accent", in: "Cafe\u0301", want: "caf\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"", " ", "s", "ss", "es", "ses", "Boxes", "box", "Apples", "Glasses", "glass",
		"classes", "buses", "Gas", "address", "x s", "Churches", "Bus es", "ÉCLAIRS",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "Normalize not idempotent for %q", in)
	}
}

func TestNormalizeUnifiesSpellings(t *testing.T) {
	assert.Equal(t, Normalize("Box"), Normalize("box"))
	assert.Equal(t, Normalize("Box"), Normalize("Boxes"))
	assert.Equal(t, Normalize("Apple"), Normalize("apples"))
}
