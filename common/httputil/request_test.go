package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntParam(t *testing.T) {
	assert.Equal(t, 5, ParseIntParam("", 5))
	assert.Equal(t, 5, ParseIntParam("abc", 5))
	assert.Equal(t, 12, ParseIntParam("12", 5))
	assert.Equal(t, -3, ParseIntParam("-3", 5))
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=0", 50},
		{"?limit=-4", 50},
		{"?limit=5000", 1000},
		{"?limit=nope", 50},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/api/v1/logs"+tt.query, nil)
		assert.Equal(t, tt.want, ParseLimit(r, 50, 1000), tt.query)
	}
}
