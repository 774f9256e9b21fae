package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbbreviateStreet(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5756 Westchester Farm Drive", "5756 Westchester Farm Dr"},
		{"12 Oak Avenue, Weldon Spring, MO", "12 Oak Ave"},
		{"100 Main Street", "100 Main St"},
		{"1 Sunset Boulevard", "1 Sunset Blvd"},
		{"7 Pine Way", "7 Pine Way"},
		{"9 Fox Run Court", "9 Fox Run Ct"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AbbreviateStreet(tt.in), "input %q", tt.in)
	}
}

func TestStreetName(t *testing.T) {
	assert.Equal(t, "Westchester Farm Drive", StreetName("5756 Westchester Farm Drive, Weldon Spring, MO 63304"))
	assert.Equal(t, "Main Street", StreetName("100 Main Street"))
	assert.Equal(t, "Main Street", StreetName("Main Street"))
	assert.Equal(t, "", StreetName(""))
}

func TestNormalize(t *testing.T) {
	a := Normalize("5756 westchester farm drive,  weldon spring, mo 63304")
	b := Normalize("5756 Westchester Farm Dr, Weldon Spring, MO 63304")
	assert.Equal(t, a, b)
	assert.Equal(t, "5756 Westchester Farm Dr, Weldon Spring, MO 63304", a)

	assert.Equal(t, "", Normalize("   "))
	assert.Equal(t, "100 Main St", Normalize("100   MAIN   STREET"))
}

func TestNormalizeDistinctAddressesStayDistinct(t *testing.T) {
	assert.NotEqual(t,
		Normalize("5756 Westchester Farm Dr, Weldon Spring, MO 63304"),
		Normalize("5758 Westchester Farm Dr, Weldon Spring, MO 63304"),
	)
}
