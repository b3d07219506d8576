package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayOptionsNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   DisplayOptions
		want DisplayOptions
	}{
		{"valid", DisplayOptions{SortDescending, 3}, DisplayOptions{SortDescending, 3}},
		{"upper case order", DisplayOptions{"DESC", 5}, DisplayOptions{SortDescending, 5}},
		{"unknown order", DisplayOptions{"newest", 5}, DisplayOptions{SortAscending, 5}},
		{"zero max", DisplayOptions{SortAscending, 0}, DisplayOptions{SortAscending, DefaultMaxEvents}},
		{"negative max", DisplayOptions{"", -4}, DisplayOptions{SortAscending, DefaultMaxEvents}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestCredentialsEmpty(t *testing.T) {
	assert.True(t, Credentials{}.Empty())
	assert.True(t, Credentials{Email: "a@b.c"}.Empty())
	assert.False(t, Credentials{Email: "a@b.c", Password: "pw"}.Empty())
}
