package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func TestCodecs_RoundTrip(t *testing.T) {
	in := sample{Name: "docs/guide.md", Count: 3, Tags: []string{"a", "b"}}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(in)
			require.NoError(t, err)

			var out sample
			require.NoError(t, c.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestCodecs_Interchangeable(t *testing.T) {
	// A record written with one JSON codec must be readable with the other;
	// artifacts do not pin the codec they were built with.
	in := sample{Name: "x", Count: 42}

	data, err := (GoJSON{}).Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, (JSON{}).Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	c, ok = ByName("go-json")
	require.True(t, ok)
	assert.Equal(t, "go-json", c.Name())

	_, ok = ByName("msgpack")
	assert.False(t, ok)
}

func TestUnmarshal_Invalid(t *testing.T) {
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		var out sample
		assert.Error(t, c.Unmarshal([]byte("{truncated"), &out))
	}
}

func TestDefault(t *testing.T) {
	require.NotNil(t, Default)
	assert.Equal(t, "go-json", Default.Name())
}
