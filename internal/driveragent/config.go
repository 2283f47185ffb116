package driveragent

import (
	"fmt"
	"net/url"

	"k8s.io/component-base/featuregate"

	"github.com/rideline-io/rideline/internal/driveragent/api"
	"github.com/rideline-io/rideline/internal/driveragent/command"
	"github.com/rideline-io/rideline/internal/driveragent/conn"
	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/driveragent/identity"
	"github.com/rideline-io/rideline/internal/driveragent/otp"
	"github.com/rideline-io/rideline/internal/driveragent/registry"
	httpserver "github.com/rideline-io/rideline/internal/driveragent/server/http"
	"github.com/rideline-io/rideline/internal/driveragent/transport"
	"github.com/rideline-io/rideline/internal/pkg/metrics"
	"github.com/rideline-io/rideline/pkg/options"
)

type Config struct {
	SocketOptions    *options.SocketOptions
	ReconnectOptions *options.ReconnectOptions
	AuthOptions      *options.AuthOptions
	APIOptions       *options.APIOptions
	HttpOptions      *options.HttpOptions
	MqttOptions      *options.MqttOptions
	FeatureGate      featuregate.FeatureGate
}

// Environment returns the configured build environment.
func (cfg *Config) Environment() core.Environment {
	if cfg.SocketOptions.Environment == string(core.EnvProduction) {
		return core.EnvProduction
	}
	return core.EnvDevelopment
}

// TokenProvider returns the token sources in precedence order: literal, file, environment.
func (cfg *Config) TokenProvider() identity.TokenProvider {
	var providers []identity.TokenProvider
	if cfg.AuthOptions.Token != "" {
		providers = append(providers, identity.StaticToken(cfg.AuthOptions.Token))
	}
	if cfg.AuthOptions.TokenFile != "" {
		providers = append(providers, identity.FileToken(cfg.AuthOptions.TokenFile))
	}
	if cfg.AuthOptions.TokenEnv != "" {
		providers = append(providers, identity.EnvToken(cfg.AuthOptions.TokenEnv))
	}
	return identity.FirstOf(providers...)
}

// NewAPIClient returns the REST client. The socket URL is reused when no API URL is set.
func (cfg *Config) NewAPIClient() (*api.Client, error) {
	base := cfg.APIOptions.BaseURL
	if base == "" {
		u, err := url.Parse(cfg.SocketOptions.URL)
		if err != nil {
			return nil, err
		}
		switch u.Scheme {
		case "ws":
			u.Scheme = "http"
		case "wss":
			u.Scheme = "https"
		}
		u.Path, u.RawQuery = "", ""
		base = u.String()
	}
	return api.NewClient(base, cfg.TokenProvider(), nil, cfg.APIOptions.Timeout)
}

func (cfg *Config) basePolicy() conn.Policy {
	return conn.Policy{
		MaxAttempts:          cfg.ReconnectOptions.MaxAttempts,
		BaseDelay:            cfg.ReconnectOptions.BaseDelay,
		ConnectTimeout:       cfg.ReconnectOptions.ConnectTimeout,
		ProductionMultiplier: cfg.ReconnectOptions.ProductionMultiplier,
	}
}

// Policy returns the reconnection policy tuned for the configured environment.
func (cfg *Config) Policy() conn.Policy {
	return cfg.basePolicy().For(cfg.Environment())
}

// transportFactory builds the configured channel. Every handshake also carries the
// policy's connect timeout, so the values here only apply to handshakes without one.
func (cfg *Config) transportFactory(policy conn.Policy) core.TransportFactory {
	if cfg.SocketOptions.Transport == options.TransportMQTT {
		cc := cfg.MqttOptions.ToClientConfig("", "")
		cc.ConnectTimeout = policy.ConnectTimeout
		return transport.NewMQTTFactory(transport.MQTTConfig{
			Client:    *cc,
			TopicRoot: cfg.MqttOptions.TopicRoot,
			QoS:       cfg.MqttOptions.QoS,
		})
	}
	return transport.NewSocketIOFactory(transport.SocketIOConfig{
		URL:            cfg.SocketOptions.URL,
		Path:           cfg.SocketOptions.Path,
		ConnectTimeout: policy.ConnectTimeout,
		WriteTimeout:   cfg.SocketOptions.WriteTimeout,
	})
}

func (cfg *Config) NewAgent() (*Agent, error) {
	gate := cfg.FeatureGate
	if gate == nil {
		gate = NewFeatureGate()
	}

	reg := registry.New()
	manager, err := conn.New(conn.Config{
		// The manager applies the environment tuning itself.
		Policy:         cfg.basePolicy(),
		Environment:    cfg.Environment(),
		Version:        cfg.SocketOptions.Version,
		SettleInterval: cfg.SocketOptions.SettleInterval,
		Factory:        cfg.transportFactory(cfg.Policy()),
		Fallback:       identity.StaticDriverID(cfg.AuthOptions.DriverID),
		Registry:       reg,
		Alerter:        logAlerter{},
		LegacyAliases:  gate.Enabled(LegacyEventAliases),
	})
	if err != nil {
		return nil, err
	}

	apiClient, err := cfg.NewAPIClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	var emitterOpts []command.Option
	var outbox *command.Outbox
	if gate.Enabled(CommandOutbox) {
		outbox = command.NewOutbox(nil, nil)
		manager.AddObserver(outbox.Observe)
		emitterOpts = append(emitterOpts, command.WithOutbox(outbox))
	}
	emitter := command.NewEmitter(manager, emitterOpts...)

	a := &Agent{
		manager: manager,
		emitter: emitter,
		outbox:  outbox,
		api:     apiClient,
		otp:     otp.NewCoordinator(apiClient, reg, emitter, nil, 0),
		tokens:  cfg.TokenProvider(),
	}
	if cfg.HttpOptions.Addr != "" {
		a.http = httpserver.NewServer(cfg.HttpOptions, metrics.Registry, a.ready)
	}
	return a, nil
}
