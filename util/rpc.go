package util

import (
	"net/http"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// ListenAddress turns a multiaddr such as /ip4/0.0.0.0/tcp/8787 into the
// host:port form net/http listens on.
func ListenAddress(listenAddr string) (string, error) {
	parsedAddr, err := ma.NewMultiaddr(listenAddr)
	if err != nil {
		return "", err
	}

	_, addr, err := manet.DialArgs(parsedAddr)
	if err != nil {
		return "", err
	}
	return addr, nil
}

// TokenFromHeaders returns the Authorization value with an optional Bearer
// prefix removed.
func TokenFromHeaders(headers http.Header) string {
	token := strings.TrimSpace(headers.Get("Authorization"))
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
