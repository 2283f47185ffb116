package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"
	"k8s.io/klog/v2"

	"github.com/rideline-io/rideline/cmd/rideline-driver/app/options"
	"github.com/rideline-io/rideline/pkg/app"
	"github.com/rideline-io/rideline/pkg/log"
)

const (
	commandName = "rideline-driver"
	commandDesc = `The Rideline driver agent keeps a driver's real-time channel to the
dispatch server open, announces the driver's availability and reconnects
after network loss. Subcommands query and act on the driver's rides.`
)

func NewApp() *app.App {
	opts := options.NewDriverOptions()
	application := app.NewApp(
		commandName,
		"Launch a Rideline driver agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
		app.WithCommands(
			newRidesCommand(opts),
			newStartRideCommand(opts),
			newCompleteRideCommand(opts),
		),
	)
	return application
}

func run(opts *options.DriverOptions) app.RunFunc {
	return func() error {
		initLogs(opts)
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}

func initLogs(opts *options.DriverOptions) {
	log.Init(opts.Log)
	klog.SetLogger(log.Logr())
}
