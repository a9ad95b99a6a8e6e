package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/NeonKnightOA/KMQuake2/internal/app"
	"github.com/NeonKnightOA/KMQuake2/internal/dump"
)

// run builds the app, starts the optional debug server and profile, calls
// body and tears everything down.
func run(cmd *cobra.Command, flags *globalFlags, body func(ctx context.Context, a *app.App) error) (err error) {
	logger := newLogger()
	cfg, err := flags.load(logger)
	if err != nil {
		return err
	}
	stopProfile, err := flags.startProfile()
	if err != nil {
		return err
	}
	defer stopProfile()

	a, err := app.New(app.Options{Config: cfg, Logger: logger, Stdout: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := a.Close(ctx); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	if cfg.DebugAddr != "" {
		if _, err := a.ServeDebug(cfg.DebugAddr); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return body(ctx, a)
}

func replayCmd(flags *globalFlags) *cobra.Command {
	var (
		realtime   bool
		dumpPath   string
		dumpFormat string
		hold       bool
	)
	cmd := &cobra.Command{
		Use:   "replay <demo.dm2|s3://bucket/key>",
		Short: "Decode a recorded demo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := dump.ParseFormat(dumpFormat)
			if err != nil {
				return err
			}
			return run(cmd, flags, func(ctx context.Context, a *app.App) error {
				opts := app.ReplayOptions{Realtime: realtime}
				if dumpPath != "" {
					f, err := os.Create(dumpPath)
					if err != nil {
						return fmt.Errorf("create dump: %w", err)
					}
					defer f.Close()
					opts.Dump = dump.NewWriter(f, format)
				}
				n, err := a.Replay(ctx, args[0], opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "replayed %d packets\n", n)
				if hold {
					<-ctx.Done()
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&realtime, "realtime", false, "pace packets at the server tick rate")
	cmd.Flags().StringVar(&dumpPath, "dump", "", "write a snapshot of every frame to this file")
	cmd.Flags().StringVar(&dumpFormat, "dump-format", "json", "snapshot encoding: json or msgpack")
	cmd.Flags().BoolVar(&hold, "hold", false, "keep the debug server up after the demo ends")
	return cmd
}

func connectCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <ws://relay/path>",
		Short: "Decode packets streamed by a websocket relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, a *app.App) error {
				return a.Connect(ctx, args[0])
			})
		},
	}
}
