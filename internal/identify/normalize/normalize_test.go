package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		absent bool
	}{
		{name: "lowercases", in: "Marty@HillValley.EDU", want: "marty@hillvalley.edu"},
		{name: "trims surrounding whitespace", in: "  doc@x.com\t", want: "doc@x.com"},
		{name: "already canonical", in: "a@b.c", want: "a@b.c"},
		{name: "empty", in: "", absent: true},
		{name: "whitespace only", in: "   ", absent: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Email(tt.in)
			if tt.absent {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		absent bool
	}{
		{name: "strips formatting", in: "+44 20 7123 4567", want: "442071234567"},
		{name: "strips punctuation", in: "(555) 000-1234", want: "5550001234"},
		{name: "digits pass through", in: "123456", want: "123456"},
		{name: "no digits", in: "call me maybe", absent: true},
		{name: "empty", in: "", absent: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Phone(tt.in)
			if tt.absent {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestNormalizationIsIdempotent(t *testing.T) {
	email := Email(" Marty@HillValley.EDU ")
	require.NotNil(t, email)
	again := Email(*email)
	require.NotNil(t, again)
	assert.Equal(t, *email, *again)

	phone := Phone("+1 (555) 000-1234")
	require.NotNil(t, phone)
	againPhone := Phone(*phone)
	require.NotNil(t, againPhone)
	assert.Equal(t, *phone, *againPhone)
}
