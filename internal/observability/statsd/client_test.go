package statsd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{"ragbox", "auth.login", "ragbox.auth.login"},
		{"", " gate/rejected ", "gate_rejected"},
		{"ragbox", "foo..bar", "ragbox.foo.bar"},
		{"ragbox", "  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metricName(tt.prefix, tt.name), "metricName(%q, %q)", tt.prefix, tt.name)
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " ragbox "}
	local := map[string]string{"result": " success ", "": "ignored", "env": "stage"}

	assert.Equal(t, "|#env:stage,result:success,service:ragbox", formatTags(global, local))
	assert.Empty(t, formatTags(nil, nil))
}

func TestNilAndDisabledClientsDrop(t *testing.T) {
	t.Parallel()

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	assert.NotPanics(t, func() { nilClient.Count("x", 1, nil) })
	require.NoError(t, nilClient.Close())

	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	c.Count("x", 1, nil)
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}

func TestClientSendsLines(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     ".ragbox.",
		GlobalTags: map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	require.True(t, c.Enabled())

	c.Count("auth.login", 1, map[string]string{"result": "success"})
	c.Timing("auth.exchange", 1500*time.Microsecond, nil)

	buf := make([]byte, 512)
	var got []string
	for range 2 {
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, readErr := pc.ReadFrom(buf)
		require.NoError(t, readErr)
		got = append(got, string(buf[:n]))
	}
	assert.Equal(t, "ragbox.auth.login:1|c|#env:test,result:success", got[0])
	assert.True(t, strings.HasPrefix(got[1], "ragbox.auth.exchange:1.5|ms"), got[1])

	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close())
}
