package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/cfg"
	v "github.com/keithlinneman/linnemanlabs-healthprobe/internal/version"
)

// serveFunc is swapped in tests that only inspect the merged config.
var serveFunc = runServe

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd wires the cfg flag set into cobra. Every subcommand sees the
// same flags so `check` resolves the probe URL from the serving config.
func newRootCmd() *cobra.Command {
	conf := new(cfg.App)
	fs := flag.NewFlagSet(v.AppName, flag.ContinueOnError)
	cfg.Register(fs, conf)

	serve := func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd, fs, conf); err != nil {
			return err
		}
		return serveFunc(cmd.Context(), *conf, cmd.OutOrStdout())
	}

	root := &cobra.Command{
		Use:           v.AppName,
		Short:         "HTTP health probe endpoint backed by dependency checks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().AddGoFlagSet(fs)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the probe until SIGINT or SIGTERM (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	root.AddCommand(newCheckCmd(fs, conf))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), v.Get().String())
		},
	})
	return root
}

func newCheckCmd(fs *flag.FlagSet, conf *cfg.App) *cobra.Command {
	var (
		url      string
		timeout  time.Duration
		insecure bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe a running instance once; exits non-zero unless it answers 200",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd, fs, conf); err != nil {
				return err
			}
			if url == "" {
				url = probeURL(*conf)
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), url, timeout, insecure)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "probe URL (default derived from -probe-host, -probe-port and -probe-path)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip TLS verification (self-signed probe certificates)")
	return cmd
}

// loadConfig layers cli > env > file > default, then validates.
func loadConfig(cmd *cobra.Command, fs *flag.FlagSet, conf *cfg.App) error {
	// cobra writes through the shared flag.Value without marking the go
	// FlagSet, so replay changed flags for FillFromEnv and LoadFile
	fs.VisitAll(func(f *flag.Flag) {
		if cmd.Flags().Changed(f.Name) {
			_ = fs.Set(f.Name, f.Value.String())
		}
	})

	cfg.FillFromEnv(fs, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	})
	if conf.ConfigFile != "" {
		if err := cfg.LoadFile(conf.ConfigFile, fs); err != nil {
			return err
		}
	}
	if err := cfg.Validate(*conf); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}
