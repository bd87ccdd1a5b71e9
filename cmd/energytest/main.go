// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/Wessel201/thesis2025/internal/config"
	"github.com/Wessel201/thesis2025/internal/device"
	"github.com/Wessel201/thesis2025/internal/experiment"
	"github.com/Wessel201/thesis2025/internal/logger"
	"github.com/Wessel201/thesis2025/internal/profile"
	"github.com/Wessel201/thesis2025/internal/results"
	"github.com/Wessel201/thesis2025/internal/sensor"
	"github.com/Wessel201/thesis2025/internal/service"
	"github.com/Wessel201/thesis2025/internal/version"
	"github.com/Wessel201/thesis2025/internal/workload"
)

const sysfsPath = "/sys"
const procfsPath = "/proc"

type cli struct {
	app          *kingpin.Application
	configFile   *string
	updateConfig config.ConfigUpdaterFn

	webclient struct {
		clause      *kingpin.CmdClause
		url         *string
		requests    *int
		concurrency *int
	}
	waitstrategy struct {
		clause   *kingpin.CmdClause
		strategy *string
		items    *int
		interval *time.Duration
	}
	cpuconcurrency struct {
		clause  *kingpin.CmdClause
		kernel  *string
		workers *int
	}
	diskwrite struct {
		clause    *kingpin.CmdClause
		totalSize *int
		chunkSize *int
		buffered  *bool
	}
	granularity struct {
		clause *kingpin.CmdClause
		mode   *string
		items  *int
	}
	serve struct {
		clause *kingpin.CmdClause
		addr   *string
		delay  *time.Duration
	}
	worker struct {
		clause *kingpin.CmdClause
		kernel *string
		start  *int
		end    *int
		size   *int
	}
}

func newCLI() *cli {
	c := &cli{}
	c.app = kingpin.New("energytest", "Energy and performance measurement harness for concurrency experiments.")
	c.configFile = c.app.Flag("config.file", "Path to YAML configuration file").String()
	c.updateConfig = config.RegisterFlags(c.app)

	c.webclient.clause = c.app.Command("webclient", "Fire concurrent HTTP requests at the delay server")
	c.webclient.url = c.webclient.clause.Flag("url", "Target URL").Default("http://127.0.0.1:8080").String()
	c.webclient.requests = c.webclient.clause.Flag("requests", "Total number of requests").Default("100000").Int()
	c.webclient.concurrency = c.webclient.clause.Flag("concurrency", "Number of concurrent client goroutines").Default("100").Int()

	c.waitstrategy.clause = c.app.Command("waitstrategy", "Compare busy-waiting and blocking waits in a producer and consumer pair")
	c.waitstrategy.strategy = c.waitstrategy.clause.Flag("strategy", "Wait strategy: spin, cond, channel").Default("channel").Enum("spin", "cond", "channel")
	c.waitstrategy.items = c.waitstrategy.clause.Flag("items", "Items to produce").Default("100").Int()
	c.waitstrategy.interval = c.waitstrategy.clause.Flag("interval", "Production interval").Default("100ms").Duration()

	c.cpuconcurrency.clause = c.app.Command("cpuconcurrency", "Partition a CPU kernel across worker processes")
	c.cpuconcurrency.kernel = c.cpuconcurrency.clause.Flag("kernel", "Kernel: sieve or matmul").Default("sieve").Enum("sieve", "matmul")
	c.cpuconcurrency.workers = c.cpuconcurrency.clause.Flag("workers", "Number of worker processes").Default("4").Int()

	c.diskwrite.clause = c.app.Command("diskwrite", "Write a file in chunks, buffered or fsync per chunk")
	c.diskwrite.totalSize = c.diskwrite.clause.Flag("total-size", "Total bytes to write").Default("104857600").Int()
	c.diskwrite.chunkSize = c.diskwrite.clause.Flag("chunk-size", "Chunk size in bytes").Default("65536").Int()
	c.diskwrite.buffered = c.diskwrite.clause.Flag("buffered", "Buffer writes instead of fsyncing per chunk").Default("true").Bool()

	c.granularity.clause = c.app.Command("granularity", "Run a fixed amount of compute as differently sized tasks")
	c.granularity.mode = c.granularity.clause.Flag("mode", "Task split: sequential, coarse, fine").Default("coarse").Enum("sequential", "coarse", "fine")
	c.granularity.items = c.granularity.clause.Flag("items", "Total items to compute").Default("10000000").Int()

	c.serve.clause = c.app.Command("serve", "Run the delay server the web client experiment targets")
	c.serve.addr = c.serve.clause.Flag("web.listen-address", "Address to listen on").Default("127.0.0.1:8080").String()
	c.serve.delay = c.serve.clause.Flag("delay", "Artificial per-request delay").Default("50ms").Duration()

	c.worker.clause = c.app.Command("worker", "internal").Hidden()
	c.worker.kernel = c.worker.clause.Flag("kernel", "").Required().String()
	c.worker.start = c.worker.clause.Flag("start", "").Required().Int()
	c.worker.end = c.worker.clause.Flag("end", "").Required().Int()
	c.worker.size = c.worker.clause.Flag("size", "").Required().Int()

	return c
}

func main() {
	c := newCLI()
	cmd := kingpin.MustParse(c.app.Parse(os.Args[1:]))

	cfg, err := parseConfig(c)
	if err != nil {
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	if err := dispatch(c, cmd, cfg, log); err != nil {
		log.Error("energytest terminated with an error", "error", err)
		os.Exit(1)
	}
}

func dispatch(c *cli, cmd string, cfg *config.Config, log *slog.Logger) error {
	switch cmd {
	case c.serve.clause.FullCommand():
		logVersionInfo(log)
		return runServe(*c.serve.addr, *c.serve.delay, log)

	case c.worker.clause.FullCommand():
		return runWorker(c, cfg, log)
	}

	logVersionInfo(log)
	printConfigInfo(log, cfg)

	exp, err := buildExperiment(c, cmd, cfg)
	if err != nil {
		return err
	}
	return runExperiment(cfg, log, exp)
}

func parseConfig(c *cli) (*config.Config, error) {
	log := logger.New("info", "text", os.Stderr)

	cfg := config.DefaultConfig()
	if *c.configFile != "" {
		log.Info("Loading configuration file", "path", *c.configFile)
		loadedCfg, err := config.FromFile(*c.configFile)
		if err != nil {
			log.Error("Error loading config file", "error", err.Error())
			return nil, err
		}
		cfg = loadedCfg
	}

	// command line flags override config file settings
	if err := c.updateConfig(cfg); err != nil {
		log.Error("Error applying command line flags", "error", err.Error())
		return nil, err
	}

	return cfg, nil
}

func logVersionInfo(log *slog.Logger) {
	v := version.Info()
	log.Info("energytest version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func printConfigInfo(log *slog.Logger, cfg *config.Config) {
	if !log.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}

	fmt.Printf(`
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

// meterArgs translates the meter config back into worker command line
// arguments so spawned workers measure the same way the parent does
func meterArgs(cfg *config.Config) []string {
	var args []string
	if cfg.Rapl.Fake {
		args = append(args, "--"+config.RaplFakeFlag)
	}
	for _, z := range cfg.Rapl.Zones {
		args = append(args, "--"+config.RaplZoneFlag, z)
	}
	return args
}

func newMeter(cfg *config.Config, log *slog.Logger) device.EnergyMeter {
	if cfg.Rapl.Fake {
		return device.NewFakeEnergyMeter(device.WithFakeLogger(log))
	}
	return device.NewRaplMeter(sysfsPath,
		device.WithRaplLogger(log),
		device.WithZoneFilter(cfg.Rapl.Zones),
	)
}

func buildExperiment(c *cli, cmd string, cfg *config.Config) (experiment.Experiment, error) {
	switch cmd {
	case c.webclient.clause.FullCommand():
		return &workload.WebClient{
			URL:           *c.webclient.url,
			TotalRequests: *c.webclient.requests,
			Concurrency:   *c.webclient.concurrency,
		}, nil

	case c.waitstrategy.clause.FullCommand():
		return &workload.WaitPattern{
			Strategy:   workload.WaitStrategy(*c.waitstrategy.strategy),
			TotalItems: *c.waitstrategy.items,
			Interval:   *c.waitstrategy.interval,
		}, nil

	case c.cpuconcurrency.clause.FullCommand():
		return &workload.CPUConcurrency{
			Kernel:     workload.Kernel(*c.cpuconcurrency.kernel),
			Workers:    *c.cpuconcurrency.workers,
			WorkDir:    cfg.Experiment.WorkDir,
			WorkerArgs: meterArgs(cfg),
		}, nil

	case c.diskwrite.clause.FullCommand():
		return &workload.DiskWrite{
			TotalSize: *c.diskwrite.totalSize,
			ChunkSize: *c.diskwrite.chunkSize,
			Buffered:  *c.diskwrite.buffered,
			WorkDir:   cfg.Experiment.WorkDir,
		}, nil

	case c.granularity.clause.FullCommand():
		return &workload.Granularity{
			Mode:       workload.GranularityMode(*c.granularity.mode),
			TotalItems: *c.granularity.items,
			WorkDir:    cfg.Experiment.WorkDir,
		}, nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func runExperiment(cfg *config.Config, log *slog.Logger, exp experiment.Experiment) error {
	meter := newMeter(cfg, log)
	if err := meter.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s meter: %w", meter.Name(), err)
	}
	defer meter.Close()

	recordDir := cfg.Experiment.RecordDir
	if _, ok := exp.(*workload.CPUConcurrency); ok && recordDir == "" {
		// worker processes need a shared sink
		dir, err := os.MkdirTemp("", "energytest-records-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		recordDir = dir
	}

	opts := []experiment.DriverOptFn{
		experiment.WithDriverLogger(log),
		experiment.WithMeasureTotalRun(cfg.Experiment.MeasureTotalRun),
		experiment.WithRecordDir(recordDir),
		experiment.WithBatteryReader(sensor.NewBatteryReader(sensor.DefaultBatteryChargePath)),
		experiment.WithDeviceReaders(
			sensor.NewPowercapReader(meter, log),
			sensor.NewHwmonReader(sysfsPath, log),
			sensor.NewNVMeReader(sysfsPath, log),
		),
	}
	if proc, err := sensor.NewProcessReader(procfsPath, sensor.WithProcessLogger(log)); err != nil {
		log.Warn("process counters unavailable", "error", err)
	} else {
		opts = append(opts, experiment.WithProcessReader(proc))
	}

	driver, err := experiment.NewDriver(meter, opts...)
	if err != nil {
		return err
	}

	if cc, ok := exp.(*workload.CPUConcurrency); ok {
		cc.RecordCfg = driver.RecordConfig()
	}

	writer := results.NewWriter(cfg.Experiment.Output, results.WithWriterLogger(log))
	runner := results.NewRunner(driver, writer,
		results.WithRunnerLogger(log),
		results.WithVerbose(cfg.Experiment.Verbose),
	)
	return runner.Run(exp, cfg.Experiment.Runs)
}

// runWorker is the hidden subcommand body for cpuconcurrency worker
// processes. The record sink location arrives through the environment set
// by the parent at the spawn point.
func runWorker(c *cli, cfg *config.Config, log *slog.Logger) error {
	meter := newMeter(cfg, log)
	if err := meter.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s meter: %w", meter.Name(), err)
	}
	defer meter.Close()

	store, err := profile.ConfigFromEnv().NewStore()
	if err != nil {
		return err
	}
	p := profile.NewProfiler(meter, store, profile.WithProfilerLogger(log))

	return workload.RunWorkerTask(p,
		workload.Kernel(*c.worker.kernel),
		*c.worker.start, *c.worker.end, *c.worker.size,
	)
}

func runServe(addr string, delay time.Duration, log *slog.Logger) error {
	server := workload.NewDelayServer(addr,
		workload.WithServerLogger(log),
		workload.WithDelay(delay),
	)

	services := []service.Service{
		server,
		service.NewSignalHandler(os.Interrupt),
	}
	if err := service.Init(log, services); err != nil {
		return err
	}
	if err := service.Run(context.Background(), log, services); err != nil {
		return err
	}
	log.Info("Graceful shutdown completed")
	return nil
}
