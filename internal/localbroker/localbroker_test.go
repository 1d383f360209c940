package localbroker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAcceptsConnections(t *testing.T) {
	log, _ := test.NewNullLogger()
	b, err := Start("127.0.0.1:0", log)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer b.Close(ctx)

	_, port, err := net.SplitHostPort(b.Addr())
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)

	conn, err := net.DialTimeout("tcp", b.Addr(), time.Second)
	require.NoError(t, err)
	conn.Close()
}

func TestStartAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	log, _ := test.NewNullLogger()
	_, err = Start(ln.Addr().String(), log)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "local broker listen")
}
