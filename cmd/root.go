package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppbridge/app"
	"github.com/kilianp07/ocppbridge/config"
	"github.com/kilianp07/ocppbridge/infra/logger"
)

// options holds the persistent flags shared by every command.
type options struct {
	cfgPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "ocppbridge",
		Short:         "Bridge between an EV charge point and the OCPP backend API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", "", "configuration file (yaml or json); environment only when empty")
	root.AddCommand(newSendCmd(opts), newFlowCmd(opts), newNormalizeCmd())
	return root
}

// Execute runs the CLI.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
