package httputil

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "unknown field", body: `{"name": "test", "extra": 1}`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest struct {
				Name string `json:"name"`
			}

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", dest.Name)
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(`nope`))
	w := httptest.NewRecorder()
	var dest map[string]string

	assert.False(t, ParseJSONOrError(w, req, &dest))
	assert.Equal(t, 400, w.Code)
	assert.Contains(t, w.Body.String(), "invalid JSON")
}

func TestParsePathString(t *testing.T) {
	req := httptest.NewRequest("GET", "/saved-searches/s-1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "s-1"})

	id, err := ParsePathString(req, "id")
	require.NoError(t, err)
	assert.Equal(t, "s-1", id)

	_, err = ParsePathString(req, "missing")
	assert.Error(t, err)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/search?q=+acme+&empty=", nil)
	assert.Equal(t, "acme", ParseQueryString(req, "q", ""))
	assert.Equal(t, "all", ParseQueryString(req, "empty", "all"))
	assert.Equal(t, "all", ParseQueryString(req, "type", "all"))
}

func TestParseQueryInt(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		expected    int
		expectError bool
	}{
		{name: "absent uses default", url: "/search", expected: 50},
		{name: "in range", url: "/search?limit=20", expected: 20},
		{name: "upper bound", url: "/search?limit=1000", expected: 1000},
		{name: "above max", url: "/search?limit=1001", expectError: true},
		{name: "below min", url: "/search?limit=0", expectError: true},
		{name: "not a number", url: "/search?limit=ten", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.url, nil)
			got, err := ParseQueryInt(req, "limit", 50, 1, 1000)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest("GET", "/search?log=false&bad=maybe", nil)

	v, err := ParseQueryBool(req, "log", true)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = ParseQueryBool(req, "absent", true)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = ParseQueryBool(req, "bad", true)
	assert.Error(t, err)
}

func TestParseQueryList(t *testing.T) {
	req := httptest.NewRequest("GET", "/search?tags=vip,+q3,&tags=finance", nil)
	assert.Equal(t, []string{"vip", "q3", "finance"}, ParseQueryList(req, "tags"))
	assert.Nil(t, ParseQueryList(req, "status"))
}

func TestParseQueryTime(t *testing.T) {
	req := httptest.NewRequest("GET", "/search?from=2024-05-01T09:30:00Z&to=yesterday", nil)

	from, err := ParseQueryTime(req, "from")
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.True(t, from.Equal(time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)))

	_, err = ParseQueryTime(req, "to")
	assert.Error(t, err)

	absent, err := ParseQueryTime(req, "until")
	require.NoError(t, err)
	assert.Nil(t, absent)
}
