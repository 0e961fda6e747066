package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPayload(t *testing.T) {
	base := HashPayload("POST", "/api/v1/schedules", []byte(`{"member":"m1"}`))

	assert.Len(t, base, 64)
	assert.Equal(t, base, HashPayload("post", "/api/v1/schedules", []byte(`{"member":"m1"}`)))

	tests := []struct {
		name   string
		method string
		url    string
		body   []byte
	}{
		{name: "different method", method: "PUT", url: "/api/v1/schedules", body: []byte(`{"member":"m1"}`)},
		{name: "different url", method: "POST", url: "/api/v1/schedules/x", body: []byte(`{"member":"m1"}`)},
		{name: "different body", method: "POST", url: "/api/v1/schedules", body: []byte(`{"member":"m2"}`)},
		{name: "empty body", method: "POST", url: "/api/v1/schedules", body: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, HashPayload(tt.method, tt.url, tt.body))
		})
	}
}

func TestHashPayload_PartBoundaries(t *testing.T) {
	assert.NotEqual(t,
		HashPayload("GET", "/a", []byte("bc")),
		HashPayload("GET", "/ab", []byte("c")),
	)
}

func TestHashAuthKey(t *testing.T) {
	h1, err := HashAuthKey([]byte("key"))
	require.NoError(t, err)
	h2, err := HashAuthKey([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	_, err = HashAuthKey(nil)
	assert.Error(t, err)
}
