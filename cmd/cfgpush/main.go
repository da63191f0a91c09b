// Cfgpush - bulk configuration and verification of network devices
//
// Pushes one configuration file and/or runs one list of show commands on
// every device named in a devices file, one device at a time, over SSH:
//
//	cfgpush devices.txt -c ntp.cfg              # push, then save automatically
//	cfgpush devices.txt -s checks.txt           # show commands only, never save
//	cfgpush devices.txt -c ntp.cfg -s checks.txt
//	                                            # push, show, ask before saving
//
// Credentials are asked for once and reused for every device. Every command
// output and decision is appended to output.log in the working directory.
//
// Flags can also be given as CFGPUSH_<FLAG> environment variables or stored
// with "cfgpush settings set". CFGPUSH_PASSWORD and CFGPUSH_ENABLE_SECRET
// supply the password and enable secret without prompting.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/newtron-network/cfgpush/pkg/audit"
	"github.com/newtron-network/cfgpush/pkg/bulk"
	"github.com/newtron-network/cfgpush/pkg/cli"
	"github.com/newtron-network/cfgpush/pkg/device"
	"github.com/newtron-network/cfgpush/pkg/runlog"
	"github.com/newtron-network/cfgpush/pkg/settings"
	"github.com/newtron-network/cfgpush/pkg/util"
	"github.com/newtron-network/cfgpush/pkg/version"
)

var (
	// Global state, set up in PersistentPreRunE
	userSettings *settings.Settings
	config       *viper.Viper
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a run error to the process status: 2 when some devices
// failed, 130 when interrupted, 1 for anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, bulk.ErrDevicesFailed):
		return 2
	default:
		return 1
	}
}

var rootCmd = &cobra.Command{
	Use:               "cfgpush <devices_file> [-c configs] [-s show_commands]",
	Short:             "Push configuration and run show commands on many devices",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Cfgpush connects to every device in <devices_file>, one at a time, and

  -c only        pushes the configuration file, then saves it
  -s only        runs the show commands and prints their output
  -c and -s      pushes, runs the show commands, then asks before saving

One unreachable device never stops the others. Exit status is 2 when any
device failed.`,
	Args: cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		config = newConfig(cmd.Flags(), userSettings)

		// Quiet by default, verbose on -v
		if config.GetBool("verbose") {
			return util.SetLogLevel("debug")
		}
		return util.SetLogLevel("warn")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions(config)
		if err != nil {
			return err
		}
		opts.devicesFile = args[0]

		if opts.configs == "" && opts.showCommands == "" {
			cmd.Help()
			return util.NewUsageError("at least one of --configs or --show-commands is required")
		}
		return runPush(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug diagnostics on stderr")
	rootCmd.PersistentFlags().String("audit-redis", "", "Also send audit events to the Redis stream at this address")
	addRunFlags(rootCmd.Flags())

	rootCmd.AddGroup(
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)
	for _, cmd := range []*cobra.Command{settingsCmd, auditCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

// addRunFlags registers the flags of a push run. Values are read back
// through viper so settings and CFGPUSH_* variables can supply them.
func addRunFlags(fs *pflag.FlagSet) {
	fs.StringP("configs", "c", "", "Configuration file to push to every device")
	fs.StringP("show-commands", "s", "", "File of show commands to run on every device")
	fs.StringP("username", "u", "", "Login name (default: prompt, defaulting to the OS user)")

	fs.String("platform", device.DefaultPlatform, "Device platform profile")
	fs.String("platform-file", "", "YAML file with extra platform profiles")
	fs.IntP("port", "p", 22, "SSH port for devices listed without one")
	fs.Duration("dial-timeout", defaultDialTimeout, "TCP connect and SSH handshake timeout")
	fs.Duration("command-timeout", defaultCommandTimeout, "How long a device may stay silent before a command fails")
	fs.String("known-hosts", "", "known_hosts file for host key checking (default: accept any key)")
	fs.Bool("legacy-crypto", false, "Offer old ciphers and key exchanges for legacy switches")
	fs.Bool("agent", false, "Offer keys from the SSH agent before the password")

	fs.String("log-file", runlog.DefaultPath, "Run log, appended to")
	fs.String("report", "", "Write the run report to this YAML file")
	fs.Bool("dry-run", false, "Print what would be done and connect to nothing")
}

// newConfig layers, lowest first: flag defaults, stored settings,
// CFGPUSH_* environment, flags given on the command line.
func newConfig(fs *pflag.FlagSet, s *settings.Settings) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CFGPUSH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range s.Values() {
		v.SetDefault(key, value)
	}
	if err := v.BindPFlags(fs); err != nil {
		util.Warnf("binding flags: %v", err)
	}
	return v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd)
	},
}

func printVersion(cmd *cobra.Command) {
	if version.Version == "dev" {
		fmt.Fprintln(cmd.OutOrStdout(), "cfgpush dev build")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "cfgpush %s\n", version.Info())
	}
}

// notifyContext cancels on the first interrupt so the run stops before the
// next device. A second interrupt gets the default behavior and kills the
// process.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			signal.Stop(sigs)
			fmt.Fprintln(os.Stderr, cli.Yellow("\nInterrupted: stopping after the current device (Ctrl-C again to abort)"))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

// openAudit returns the configured audit backends. Backends that fail to
// open are skipped with a warning; auditing never blocks a run.
func openAudit(path, redisAddr string) audit.Logger {
	var loggers audit.MultiLogger

	fl, err := audit.NewFileLogger(path, audit.DefaultRotation)
	if err != nil {
		util.Warnf("Could not initialize audit logging: %v", err)
	} else {
		loggers = append(loggers, fl)
	}

	if redisAddr != "" {
		rl, err := audit.NewRedisLogger(audit.RedisConfig{Addr: redisAddr})
		if err != nil {
			util.Warnf("Could not connect audit stream: %v", err)
		} else {
			loggers = append(loggers, rl)
		}
	}

	if len(loggers) == 0 {
		return audit.Discard{}
	}
	return loggers
}
