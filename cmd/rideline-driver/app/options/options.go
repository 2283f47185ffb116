package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/featuregate"

	"github.com/rideline-io/rideline/internal/driveragent"
	"github.com/rideline-io/rideline/pkg/app"
	"github.com/rideline-io/rideline/pkg/log"
	"github.com/rideline-io/rideline/pkg/options"
)

type DriverOptions struct {
	SocketOptions    *options.SocketOptions    `json:"socket" mapstructure:"socket"`
	ReconnectOptions *options.ReconnectOptions `json:"reconnect" mapstructure:"reconnect"`
	AuthOptions      *options.AuthOptions      `json:"auth" mapstructure:"auth"`
	APIOptions       *options.APIOptions       `json:"api" mapstructure:"api"`
	HttpOptions      *options.HttpOptions      `json:"http" mapstructure:"http"`
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	Log              *log.Options              `json:"log" mapstructure:"log"`

	// FeatureGates is set directly by --feature-gates.
	FeatureGates featuregate.MutableFeatureGate `json:"-" mapstructure:"-"`
}

var _ app.NamedFlagSetOptions = (*DriverOptions)(nil)

func NewDriverOptions() *DriverOptions {
	return &DriverOptions{
		SocketOptions:    options.NewSocketOptions(),
		ReconnectOptions: options.NewReconnectOptions(),
		AuthOptions:      options.NewAuthOptions(),
		APIOptions:       options.NewAPIOptions(),
		HttpOptions:      options.NewHttpOptions(),
		MqttOptions:      options.NewMqttOptions(),
		Log:              log.NewOptions(),
		FeatureGates:     driveragent.NewFeatureGate(),
	}
}

func (o *DriverOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.SocketOptions.AddFlags(fss.FlagSet("socket"))
	o.ReconnectOptions.AddFlags(fss.FlagSet("reconnect"))
	o.AuthOptions.AddFlags(fss.FlagSet("auth"))
	o.APIOptions.AddFlags(fss.FlagSet("api"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.FeatureGates.AddFlag(fss.FlagSet("features"))
	o.Log.AddFlags(fss.FlagSet("Log"))
	return fss
}

func (o *DriverOptions) Complete() error {
	return nil
}

func (o *DriverOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.SocketOptions.Validate()...)
	errs = append(errs, o.ReconnectOptions.Validate()...)
	errs = append(errs, o.AuthOptions.Validate()...)
	errs = append(errs, o.APIOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	if o.SocketOptions.Transport == options.TransportMQTT {
		errs = append(errs, o.MqttOptions.Validate()...)
	}
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *DriverOptions) Config() (*driveragent.Config, error) {
	return &driveragent.Config{
		SocketOptions:    o.SocketOptions,
		ReconnectOptions: o.ReconnectOptions,
		AuthOptions:      o.AuthOptions,
		APIOptions:       o.APIOptions,
		HttpOptions:      o.HttpOptions,
		MqttOptions:      o.MqttOptions,
		FeatureGate:      o.FeatureGates,
	}, nil
}
