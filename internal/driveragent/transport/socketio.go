// Package transport builds the event channel implementations the connection manager drives.
package transport

import (
	"net/url"
	"time"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/pkg/socketio"
)

// SocketIOConfig configures the Socket.IO channel.
type SocketIOConfig struct {
	URL            string
	Path           string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

var _ core.Transport = (*socketio.Client)(nil)

// NewSocketIOFactory returns a factory that opens one Socket.IO client per handshake.
// The driver identity travels in the query and the token in the CONNECT auth payload.
// A handshake ConnectTimeout overrides cfg.ConnectTimeout.
func NewSocketIOFactory(cfg SocketIOConfig) core.TransportFactory {
	return func(h core.Handshake, l core.Listener) (core.Transport, error) {
		timeout := cfg.ConnectTimeout
		if h.ConnectTimeout > 0 {
			timeout = h.ConnectTimeout
		}

		query := url.Values{}
		query.Set("type", h.Role)
		query.Set("id", h.DriverID)
		query.Set("platform", h.Platform)
		query.Set("version", h.Version)

		c, err := socketio.NewClient(&socketio.Config{
			URL:            cfg.URL,
			Path:           cfg.Path,
			Query:          query,
			Auth:           map[string]string{"token": h.Token},
			ConnectTimeout: timeout,
			WriteTimeout:   cfg.WriteTimeout,
		}, l)
		if err != nil {
			return nil, &core.ConfigurationError{Err: err}
		}
		return c, nil
	}
}
