package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int64
		wantOffset int64
	}{
		{"defaults", "", 50, 0},
		{"explicit", "?limit=20&offset=40", 20, 40},
		{"limit capped", "?limit=500", 100, 0},
		{"limit floor", "?limit=0", 1, 0},
		{"negative offset", "?offset=-5", 50, 0},
		{"garbage ignored", "?limit=abc&offset=xyz", 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/items"+tt.query, nil)
			limit, offset := parsePagination(r)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
