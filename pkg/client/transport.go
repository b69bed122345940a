package client

import (
	"context"
	"net"
	"net/http"
	"time"
)

// TLSHandshakeTimeout specifies the maximum time of the TLS handshake.
const TLSHandshakeTimeout = 5 * time.Second

// NewOneShotTransport creates a transport for a single request/response cycle.
// Keep-alives are disabled, every request dials a fresh connection and the
// connection is closed when the body is drained. The connect timeout bounds
// dialing, the read timeout is armed as a deadline before every read from the
// connection, so it bounds each wait for data, not the whole transfer.
// HTTP/2 is not attempted, the protocol stays at HTTP/1.1.
func NewOneShotTransport(connectTimeout, readTimeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, readTimeout: readTimeout}, nil
		},
		DisableKeepAlives:   true,
		ForceAttemptHTTP2:   false,
		TLSHandshakeTimeout: TLSHandshakeTimeout,
	}
}

// deadlineConn postpones the read deadline on every read.
type deadlineConn struct {
	net.Conn
	readTimeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}
