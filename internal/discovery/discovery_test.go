package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTXTSorted(t *testing.T) {
	txt := TXT(map[string]string{"node_id": "abc", "devices": "Relay,Sensor", "version": "1"})
	assert.Equal(t, []string{"devices=Relay,Sensor", "node_id=abc", "version=1"}, txt)
}

func TestTXTEmpty(t *testing.T) {
	assert.Empty(t, TXT(nil))
}

func TestPort(t *testing.T) {
	port, err := Port(":8080")
	require.NoError(t, err)
	assert.Equal(t, 8080, port)

	port, err = Port("127.0.0.1:80")
	require.NoError(t, err)
	assert.Equal(t, 80, port)

	for _, bad := range []string{"", "8080", ":0", ":http", ":70000"} {
		_, err := Port(bad)
		assert.Error(t, err, bad)
	}
}
