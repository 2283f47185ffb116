package socketio

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Config holds the configuration for creating a new Client.
type Config struct {
	// URL is the server base URL; http(s) and ws(s) schemes are accepted.
	URL string

	// Path of the Engine.IO endpoint. Default is "/socket.io/".
	Path string

	// Query carries extra handshake parameters. EIO and transport are always set.
	Query url.Values

	// Auth is sent as the payload of the CONNECT packet.
	Auth any

	// Header is added to the WebSocket upgrade request.
	Header http.Header

	// ConnectTimeout bounds the dial plus the Engine.IO and Socket.IO handshakes. Default is 10s.
	ConnectTimeout time.Duration

	// WriteTimeout bounds a single frame write when the caller's context has no deadline. Default is 10s.
	WriteTimeout time.Duration
}

func setDefaultConfig(cfg *Config) {
	if cfg.Path == "" {
		cfg.Path = "/socket.io/"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("server url is required")
	}
	_, err := c.Endpoint()
	return err
}

// Endpoint returns the WebSocket URL including the handshake query.
func (c *Config) Endpoint() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", c.URL)
	}

	p := c.Path
	if p == "" {
		p = "/socket.io/"
	}
	u.Path = path.Join(u.Path, p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	q := url.Values{}
	for k, v := range c.Query {
		q[k] = v
	}
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
