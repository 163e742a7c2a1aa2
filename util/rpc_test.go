package util

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListenAddress(t *testing.T) {
	addr, err := ListenAddress("/ip4/0.0.0.0/tcp/8787")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8787", addr)

	addr, err = ListenAddress("/ip6/::1/tcp/9000")
	require.NoError(t, err)
	require.Equal(t, "[::1]:9000", addr)

	_, err = ListenAddress("0.0.0.0:8787")
	require.Error(t, err)
}

func TestTokenFromHeaders(t *testing.T) {
	h := http.Header{}
	require.Equal(t, "", TokenFromHeaders(h))

	h.Set("Authorization", "s3cret")
	require.Equal(t, "s3cret", TokenFromHeaders(h))

	h.Set("Authorization", "Bearer s3cret")
	require.Equal(t, "s3cret", TokenFromHeaders(h))
}
