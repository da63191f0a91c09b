package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/newtron-network/cfgpush/pkg/bulk"
	"github.com/newtron-network/cfgpush/pkg/cli"
	"github.com/newtron-network/cfgpush/pkg/credentials"
	"github.com/newtron-network/cfgpush/pkg/device"
	"github.com/newtron-network/cfgpush/pkg/inputs"
	"github.com/newtron-network/cfgpush/pkg/runlog"
	"github.com/newtron-network/cfgpush/pkg/util"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultCommandTimeout = 30 * time.Second
)

// options is one push run, resolved from flags, environment and settings.
type options struct {
	devicesFile  string
	configs      string
	showCommands string
	username     string

	platform       string
	platformFile   string
	port           int
	dialTimeout    time.Duration
	commandTimeout time.Duration
	knownHosts     string
	legacyCrypto   bool
	useAgent       bool

	logFile    string
	report     string
	dryRun     bool
	auditRedis string
}

func loadOptions(v *viper.Viper) (options, error) {
	opts := options{
		configs:        v.GetString("configs"),
		showCommands:   v.GetString("show-commands"),
		username:       v.GetString("username"),
		platform:       v.GetString("platform"),
		platformFile:   v.GetString("platform-file"),
		port:           v.GetInt("port"),
		dialTimeout:    v.GetDuration("dial-timeout"),
		commandTimeout: v.GetDuration("command-timeout"),
		knownHosts:     v.GetString("known-hosts"),
		legacyCrypto:   v.GetBool("legacy-crypto"),
		useAgent:       v.GetBool("agent"),
		logFile:        v.GetString("log-file"),
		report:         v.GetString("report"),
		dryRun:         v.GetBool("dry-run"),
		auditRedis:     v.GetString("audit-redis"),
	}

	vb := &util.ValidationBuilder{}
	vb.Add(opts.port > 0 && opts.port <= 65535, fmt.Sprintf("port %d out of range", opts.port))
	vb.Add(opts.dialTimeout > 0, "dial-timeout must be positive")
	vb.Add(opts.commandTimeout > 0, "command-timeout must be positive")
	if err := vb.Build(); err != nil {
		return options{}, util.NewUsageError("%v", err)
	}
	return opts, nil
}

// buildPlan turns loaded inputs into what each device gets.
func buildPlan(in *inputs.Inputs, platform *device.Platform) bulk.Plan {
	plan := bulk.Plan{SaveCommand: platform.SaveCommand}
	if in.HasConfig() {
		plan.Batch = &bulk.CommandBatch{Source: in.ConfigPath, Lines: in.ConfigLines}
	}
	if in.HasShowCommands() {
		plan.Verification = &bulk.Verification{Commands: in.ShowCommands}
	}
	return plan
}

func runPush(ctx context.Context, opts options) error {
	in, err := inputs.Load(opts.devicesFile, opts.configs, opts.showCommands)
	if err != nil {
		return util.NewUsageError("%v", err)
	}

	platforms, err := device.LoadPlatformFile(opts.platformFile)
	if err != nil {
		return err
	}
	platform, err := platforms.Lookup(opts.platform)
	if err != nil {
		return err
	}
	util.Debugf("platform %s, %d devices", platform.Name, len(in.Devices))

	plan := buildPlan(in, platform)
	if opts.dryRun {
		plan.Describe(os.Stdout, in.Devices)
		fmt.Println("\n" + cli.Yellow("DRY-RUN: nothing was sent."))
		return nil
	}

	transport, err := device.NewSSHTransport(device.SSHConfig{
		Platform:       platform,
		Port:           opts.port,
		DialTimeout:    opts.dialTimeout,
		CommandTimeout: opts.commandTimeout,
		KnownHostsFile: opts.knownHosts,
		LegacyCrypto:   opts.legacyCrypto,
		UseAgent:       opts.useAgent,
	})
	if err != nil {
		return err
	}

	// One reader owns stdin for both the credential prompts and the save
	// confirmations.
	prompter := cli.NewPrompter(os.Stdin, os.Stdout)
	creds, err := (&credentials.Provider{Input: prompter, Username: opts.username}).Get()
	if err != nil {
		return err
	}

	runLog := runlog.Open(opts.logFile)
	defer runLog.Close()

	auditLog := openAudit(userSettings.GetAuditLog(), opts.auditRedis)
	defer auditLog.Close()

	ctx, stop := notifyContext(ctx)
	defer stop()

	orch := &bulk.Orchestrator{
		Transport: transport,
		Confirmer: prompter,
		Recorder:  runLog,
		Audit:     auditLog,
		Out:       os.Stdout,
		User:      creds.Username,
	}
	report, runErr := orch.Run(ctx, in.Devices, plan, creds)
	if report == nil {
		return runErr
	}

	printSummary(os.Stdout, report)
	if opts.report != "" {
		if err := report.WriteYAML(opts.report); err != nil {
			util.Warnf("%v", err)
		} else {
			fmt.Printf("Report written to %s\n", opts.report)
		}
	}
	return runErr
}

// printSummary writes one line per device after the run.
func printSummary(w io.Writer, report *bulk.Report) {
	fmt.Fprintln(w, bulk.Separator)
	fmt.Fprintln(w)

	t := cli.NewTable(w, "HOST", "OUTCOME", "SAVE", "DURATION", "ERROR")
	for _, res := range report.Results {
		t.Row(
			res.Host,
			cli.Status(res.Outcome.String()),
			cli.Status(res.Save.String()),
			res.Duration.Round(time.Millisecond).String(),
			res.Error,
		)
	}
	t.Flush()

	fmt.Fprintf(w, "\n%d devices: %d succeeded, %d failed, %d saved\n",
		len(report.Results), report.Count(bulk.Succeeded), report.Failed(), report.SavedCount())
}
