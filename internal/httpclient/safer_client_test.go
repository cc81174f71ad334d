package httpclient

import (
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	c := NewSaferClient(5 * time.Second)

	cases := []struct {
		name    string
		rawURL  string
		wantErr bool
	}{
		{"https allowed", "https://example.com/setup.sh", false},
		{"http allowed", "http://example.com/setup.sh", false},
		{"file scheme blocked", "file:///etc/passwd", true},
		{"ftp scheme blocked", "ftp://example.com/x", true},
		{"userinfo blocked", "https://evil.com@localhost/x", true},
		{"loopback literal blocked", "http://127.0.0.1/x", true},
		{"unspecified blocked", "http://0.0.0.0/x", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.rawURL)
			require.NoError(t, err)
			err = c.validateURL(u)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateURLPrivateIPAllowedWhenDisabled(t *testing.T) {
	off := false
	c := NewSaferClientWithOptions(5*time.Second, SaferClientOptions{BlockPrivateIP: &off})

	u, err := url.Parse("http://10.0.0.5:8080/v1/sandboxes")
	require.NoError(t, err)
	assert.NoError(t, c.validateURL(u))
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("127.0.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("10.1.2.3")))
	assert.True(t, isPrivateIP(net.ParseIP("192.168.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("169.254.1.1")))
	assert.False(t, isPrivateIP(net.ParseIP("8.8.8.8")))
}
