package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/rideline-io/rideline/cmd/rideline-driver/app/options"
	"github.com/rideline-io/rideline/internal/driveragent/api"
	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/driveragent/otp"
)

func newRidesCommand(opts *options.DriverOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rides",
		Short: "List the driver's rides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initLogs(opts)
			client, err := apiClient(opts)
			if err != nil {
				return err
			}
			rides, err := client.MyRides(cmd.Context())
			if err != nil {
				return err
			}
			printRides(cmd.OutOrStdout(), rides)
			return nil
		},
	}
}

func printRides(w io.Writer, rides []api.Ride) {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("ID", "STATUS", "PICKUP", "DROPOFF", "FARE", "CREATED")
	for _, r := range rides {
		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Local().Format(time.DateTime)
		}
		table.AddRow(r.ID, r.Status, r.PickupAddress, r.DropoffAddress, fmt.Sprintf("%.2f", r.Fare), created)
	}
	fmt.Fprintln(w, table)
}

func newCompleteRideCommand(opts *options.DriverOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete-ride RIDE_ID",
		Short: "Mark a ride as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogs(opts)
			client, err := apiClient(opts)
			if err != nil {
				return err
			}
			if err := client.CompleteRide(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ride %s completed\n", args[0])
			return nil
		},
	}
}

func newStartRideCommand(opts *options.DriverOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "start-ride RIDE_ID OTP",
		Short: "Verify the rider's OTP and start the ride",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogs(opts)
			ctx, cancel := context.WithTimeout(genericapiserver.SetupSignalContext(), timeout)
			defer cancel()

			cfg, err := opts.Config()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			agent, err := cfg.NewAgent()
			if err != nil {
				return fmt.Errorf("failed to create agent: %w", err)
			}
			defer agent.Manager().Disconnect()

			st, err := agent.Manager().EnsureConnected(ctx, agent.Tokens())
			if err != nil {
				return err
			}
			if st != core.StateConnected {
				return errors.New("event channel is not connected, state " + string(st))
			}
			id, _ := agent.Manager().Identity()

			outcome, err := agent.OTP().Verify(ctx, otp.Request{RideID: args[0], DriverID: id.DriverID, OTP: args[1]})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ride %s started (%s)\n", args[0], outcome)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout for connecting and starting the ride.")
	return cmd
}

func apiClient(opts *options.DriverOptions) (*api.Client, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg.NewAPIClient()
}
