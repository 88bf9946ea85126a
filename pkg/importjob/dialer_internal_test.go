package importjob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicOnly(t *testing.T) {
	t.Parallel()

	refused := []string{
		"127.0.0.1:80",
		"127.8.8.8:443",
		"10.1.2.3:80",
		"172.16.0.1:80",
		"192.168.1.10:8080",
		"169.254.169.254:80",
		"100.64.0.1:80",
		"0.0.0.0:80",
		"224.0.0.1:80",
		"[::1]:80",
		"[::]:80",
		"[fe80::1]:80",
		"[fd00:ec2::254]:80",
		"[::ffff:127.0.0.1]:80",
		"[::ffff:169.254.169.254]:80",
		"not-an-address",
	}
	for _, addr := range refused {
		err := publicOnly("tcp", addr, nil)
		require.ErrorIs(t, err, ErrForbiddenAddress, addr)
	}

	allowed := []string{
		"93.184.216.34:443",
		"8.8.8.8:80",
		"[2606:4700::1111]:443",
	}
	for _, addr := range allowed {
		assert.NoError(t, publicOnly("tcp", addr, nil), addr)
	}
}
