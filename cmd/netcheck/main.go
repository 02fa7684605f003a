// netcheck captures diagnostic command output from network devices before and
// after a change, then reports per host and per command what changed.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/andrej220/netcheck/internal/capture"
	"github.com/andrej220/netcheck/internal/diffengine"
	"github.com/andrej220/netcheck/internal/publish"
	"github.com/andrej220/netcheck/internal/runner"
	"github.com/andrej220/netcheck/internal/transport"
	"github.com/andrej220/netcheck/pkg/config"
	"github.com/andrej220/netcheck/pkg/inventory"
	"github.com/andrej220/netcheck/pkg/lg"
)

const serviceName = "netcheck"

// passwordEnv avoids putting the secret on the command line.
const passwordEnv = "NETCHECK_PASSWORD"

type cliFlags struct {
	configPath  string
	hostFile    string
	host        string
	commandFile string
	class       string
	phase       string
	outputDir   string
	ticket      string
	user        string
	keyPath     string
	maxHosts    int
	port        int
	settleSec   int
	cmdTimeout  int
	hostDeadl   int
	diffOnly    bool
	requirePre  bool
}

func main() {
	fs := flag.NewFlagSet(serviceName, flag.ExitOnError)
	logCfg := &lg.Config{ServiceName: serviceName, Format: "console"}
	logCfg.RegisterFlags(fs)

	var cf cliFlags
	fs.StringVar(&cf.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&cf.hostFile, "hosts", "", "host list file, one name or address per line")
	fs.StringVar(&cf.host, "host", "", "single host, overrides -hosts")
	fs.StringVar(&cf.commandFile, "commands", "", "command list file, one command per line")
	fs.StringVar(&cf.class, "class", "", "device class selecting a command list from the config")
	fs.StringVar(&cf.phase, "phase", "", "capture phase: pre or post")
	fs.StringVar(&cf.outputDir, "output", "", "directory for capture artifacts and reports")
	fs.StringVar(&cf.ticket, "ticket", "", "change ticket, becomes a subdirectory of the output")
	fs.StringVar(&cf.user, "u", "", "SSH username")
	fs.StringVar(&cf.keyPath, "key", "", "SSH private key file (optional)")
	fs.IntVar(&cf.maxHosts, "max-hosts", 0, "hosts processed concurrently (default 1)")
	fs.IntVar(&cf.port, "port", 0, "SSH port")
	fs.IntVar(&cf.settleSec, "settle", 0, "seconds of output silence treated as command completion")
	fs.IntVar(&cf.cmdTimeout, "cmd-timeout", 0, "hard per-command timeout in seconds")
	fs.IntVar(&cf.hostDeadl, "host-deadline", 0, "per-host deadline in seconds, 0 disables")
	fs.BoolVar(&cf.diffOnly, "diff-only", false, "diff existing pre/post captures, no sessions")
	fs.BoolVar(&cf.requirePre, "require-pre", false, "reject a post run for hosts without a pre capture")
	fs.Parse(os.Args[1:])

	logger := lg.New(logCfg)
	defer logger.Sync()

	if err := run(&cf, fs, logger); err != nil {
		logger.Error("run failed", lg.Err(err))
		os.Exit(1)
	}
}

func run(cf *cliFlags, fs *flag.FlagSet, logger lg.Logger) error {
	cfg := config.Default()
	if cf.configPath != "" {
		store := config.NewFileStore(cf.configPath)
		if err := store.Load(cfg); err != nil {
			return err
		}
		// settings are bound at startup; tell the operator a rewrite won't
		// affect the run in flight
		if err := store.Watch(func() {
			logger.Warn("config file changed on disk, changes apply on the next run",
				lg.String("path", cf.configPath))
		}); err != nil {
			logger.Warn("config watch unavailable", lg.Err(err))
		}
	}
	applyFlagOverrides(cfg, cf, fs)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = lg.Attach(ctx, logger)

	runDir := cfg.OutputDir
	if cfg.Ticket != "" {
		runDir = filepath.Join(cfg.OutputDir, cfg.Ticket)
	}

	backend, cleanup, err := newBackend(cfg, runDir)
	if err != nil {
		return err
	}
	defer cleanup(ctx)

	store := capture.NewStore(backend)
	recorder := capture.NewRecorder(backend, logger)
	engine := diffengine.NewEngine(store, logger)
	sink := &runner.FileSink{Dir: runDir}

	publisher := publish.Discard
	if len(cfg.Kafka.Brokers) > 0 {
		kp := publish.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kp.Close()
		publisher = kp
	}

	sshTransport, err := transport.NewSSH(transport.Options{
		Port:        cfg.Transport.Port,
		DialTimeout: cfg.Transport.DialTimeout(),
		Settle:      cfg.Transport.Settle(),
		CmdTimeout:  cfg.Transport.CmdTimeout(),
		Prompt:      cfg.Transport.PromptPattern,
	}, logger)
	if err != nil {
		return err
	}

	batch := runner.New(sshTransport, recorder, store, engine, sink, publisher, logger, runner.Options{
		MaxConcurrentHosts: cfg.MaxConcurrentHosts,
		CmdTimeout:         cfg.Transport.CmdTimeout(),
		HostDeadline:       cfg.Transport.HostDeadline(),
		RequirePre:         cfg.RequirePre,
	})
	logger.Info("starting run", lg.String("run", batch.RunID()), lg.String("dir", runDir))

	hosts, err := loadHosts(cfg, cf)
	if err != nil {
		return err
	}

	if cf.diffOnly {
		results, err := batch.RunDiffAll(ctx, hosts)
		if err != nil {
			return err
		}
		summarize(logger, results)
		return nil
	}

	phase, err := capture.ParsePhase(cf.phase)
	if err != nil {
		return err
	}
	commands, err := loadCommands(cfg, cf)
	if err != nil {
		return err
	}
	creds, err := credentials(cf)
	if err != nil {
		return err
	}

	results, err := batch.RunPhase(ctx, hosts, commands, phase, creds)
	if err != nil {
		return err
	}
	summarize(logger, results)
	return nil
}

// applyFlagOverrides lets explicitly-set flags win over the config file.
func applyFlagOverrides(cfg *config.Config, cf *cliFlags, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.OutputDir = cf.outputDir
		case "ticket":
			cfg.Ticket = cf.ticket
		case "hosts":
			cfg.Inventory.HostFile = cf.hostFile
		case "commands":
			cfg.Inventory.CommandFile = cf.commandFile
		case "max-hosts":
			cfg.MaxConcurrentHosts = cf.maxHosts
		case "port":
			cfg.Transport.Port = cf.port
		case "settle":
			cfg.Transport.SettleSec = cf.settleSec
		case "cmd-timeout":
			cfg.Transport.CmdTimeoutSec = cf.cmdTimeout
		case "host-deadline":
			cfg.Transport.HostDeadlineSec = cf.hostDeadl
		case "require-pre":
			cfg.RequirePre = cf.requirePre
		}
	})
}

func newBackend(cfg *config.Config, runDir string) (capture.ArtifactBackend, func(context.Context), error) {
	if cfg.Mongo.URI != "" {
		mb, err := capture.NewMongoBackend(cfg.Mongo.URI, cfg.Mongo.DBName, cfg.Mongo.CollName)
		if err != nil {
			return nil, nil, err
		}
		return mb, func(ctx context.Context) { mb.Close(ctx) }, nil
	}
	return capture.NewFSBackend(runDir), func(context.Context) {}, nil
}

func loadHosts(cfg *config.Config, cf *cliFlags) ([]string, error) {
	if cf.host != "" {
		return []string{cf.host}, nil
	}
	if cfg.Inventory.HostFile == "" {
		return nil, fmt.Errorf("no hosts: pass -host or -hosts")
	}
	return inventory.LoadHosts(cfg.Inventory.HostFile)
}

func loadCommands(cfg *config.Config, cf *cliFlags) ([]string, error) {
	if cfg.Inventory.CommandFile == "" {
		return nil, fmt.Errorf("no command list: pass -commands or set inventory.commandFile")
	}
	cs, err := inventory.LoadCommandSet(cfg.Inventory.CommandFile, cfg.Inventory.ClassFiles)
	if err != nil {
		return nil, err
	}
	return cs.CommandsFor(cf.class), nil
}

// credentials builds the opaque auth bundle: username from flags, secret from
// the environment or an interactive prompt.
func credentials(cf *cliFlags) (transport.Credentials, error) {
	creds := transport.Credentials{Username: cf.user, KeyPath: cf.keyPath}
	if creds.Username == "" {
		return creds, fmt.Errorf("SSH username required (-u)")
	}

	creds.Password = os.Getenv(passwordEnv)
	if creds.Password == "" && cf.keyPath == "" {
		fmt.Fprintf(os.Stderr, "SSH password for %s: ", creds.Username)
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return creds, fmt.Errorf("read password: %w", err)
		}
		creds.Password = strings.TrimRight(line, "\r\n")
	}
	return creds, nil
}

func summarize(logger lg.Logger, results []runner.HostResult) {
	for _, res := range results {
		fields := []lg.Field{
			lg.String("host", res.Host),
			lg.String("state", res.State.String()),
			lg.Int("captured", res.Captured),
			lg.Int("warnings", len(res.Warnings)),
		}
		if res.Report != nil {
			fields = append(fields,
				lg.Int("compared", len(res.Report.Entries)),
				lg.Int("changed", res.Report.Changed()))
		}
		if res.Err != nil {
			fields = append(fields, lg.Err(res.Err))
			logger.Error("host summary", fields...)
			continue
		}
		logger.Info("host summary", fields...)
	}
}
