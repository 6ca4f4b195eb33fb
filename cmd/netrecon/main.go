// Command netrecon drives the reconnaissance engine's four phases —
// host discovery, port scanning, service detection and OS fingerprint
// matching — from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netrecon/netrecon/internal/cli"
	"github.com/netrecon/netrecon/internal/config"
	"github.com/netrecon/netrecon/internal/discovery"
	"github.com/netrecon/netrecon/internal/fingerprint"
	"github.com/netrecon/netrecon/internal/models"
	"github.com/netrecon/netrecon/internal/orchestrator"
	"github.com/netrecon/netrecon/internal/portscan"
	"github.com/netrecon/netrecon/internal/profiles"
	"github.com/netrecon/netrecon/internal/scanerrors"
	"github.com/netrecon/netrecon/internal/servicedetect"
	"github.com/netrecon/netrecon/internal/sigdb"
	"github.com/netrecon/netrecon/internal/throttle"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "--version", "-v":
		fmt.Printf("netrecon version %s\n", version)
	case "--help", "-h", "help":
		printHelp()
	case "scan":
		runScan(os.Args[2:])
	case "sigdb":
		runSigDB(os.Args[2:])
	default:
		cli.PrintError("unknown command: %s", os.Args[1])
		printHelp()
		os.Exit(cli.ExitUsageError)
	}
}

func printHelp() {
	help := `netrecon - network reconnaissance engine

USAGE:
    netrecon [COMMAND] [OPTIONS]

COMMANDS:
    scan      Discover hosts, scan ports, detect services and fingerprint OSes
    sigdb     Validate or merge OS signature database files

OPTIONS:
    --version, -v    Show version information
    --help, -h       Show this help message

EXAMPLES:
    netrecon scan 192.168.1.0/24 --common --services --os
    netrecon scan 10.0.0.1 --ports 1-1024 --technique syn --profile aggressive
    netrecon sigdb validate signatures.yaml
    netrecon sigdb merge base.json extra.yaml -o combined.json
`
	fmt.Print(help)
}

func runScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	portsFlag := fs.String("ports", "", "Comma-separated ports/ranges (80,443,8000-9000) or a preset: top100, web, all")
	commonFlag := fs.Bool("common", false, "Scan common ports")
	techniqueFlag := fs.String("technique", "connect", "Port scan technique: connect, syn, udp")
	profileFlag := fs.String("profile", "normal", "Timing profile: paranoid, sneaky, polite, normal, aggressive, insane")
	configFlag := fs.String("config", "", "Path to a TOML config file for throttling, detection and OS fingerprint settings (its [scanner] rates, timeouts and retries are not used; --profile sets those)")
	servicesFlag := fs.Bool("services", false, "Run service detection on open ports")
	osFlag := fs.Bool("os", false, "Run OS fingerprint collection and matching")
	sigdbFlag := fs.String("sigdb", "", "Path to an additional signature file (JSON or YAML), merged over the built-in set")
	concurrencyFlag := fs.Int("concurrency", 128, "Per-host port scan concurrency")
	workersFlag := fs.Int("workers", 32, "Number of targets scanned in parallel")
	verboseFlag := fs.Bool("verbose", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Println(`Usage: netrecon scan [TARGET] [OPTIONS]

TARGET is a single host, hostname or CIDR range (e.g. 192.168.1.0/24).

OPTIONS:
  --ports          Comma-separated ports/ranges, or a preset: top100, web, all
  --common         Scan a built-in common-ports shortlist instead of --ports
  --technique      connect, syn or udp (default: connect)
  --profile        paranoid, sneaky, polite, normal, aggressive or insane
  --config         TOML config file for throttling, detection and OS
                   fingerprint settings; its [scanner] rates, timeouts
                   and retries are not used (--profile sets those)
  --services       Run service detection on open ports
  --os             Run OS fingerprint collection and signature matching
  --sigdb          Extra signature file merged over the built-in OS database
  --concurrency    Per-host port scan concurrency (default: 128)
  --workers        Targets scanned in parallel (default: 32)
  --verbose        Enable debug logging
  --help           Show this help message`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(cli.ExitUsageError)
	}
	if fs.NArg() < 1 {
		cli.PrintError("target required")
		fs.Usage()
		os.Exit(cli.ExitUsageError)
	}
	targetArg := fs.Arg(0)
	// Flags given after TARGET are parsed as well.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		os.Exit(cli.ExitUsageError)
	}

	logger := logrus.New()
	if *verboseFlag {
		logger.SetLevel(logrus.DebugLevel)
	}
	cli.SetLogger(logger)

	technique, err := parseTechnique(*techniqueFlag)
	if err != nil {
		cli.PrintError("%v", err)
		os.Exit(cli.ExitUsageError)
	}

	var ports []uint16
	switch {
	case *commonFlag:
		ports = portscan.CommonPorts()
	case *portsFlag != "":
		ports, err = portscan.ParsePortSpec(*portsFlag)
		if err != nil {
			cli.PrintError("parsing ports: %v", err)
			os.Exit(cli.ExitUsageError)
		}
	default:
		cli.PrintError("must specify --ports or --common")
		fs.Usage()
		os.Exit(cli.ExitUsageError)
	}

	hosts, err := portscan.ParseCIDR(targetArg)
	if err != nil {
		cli.PrintError("parsing target: %v", err)
		os.Exit(cli.ExitUsageError)
	}
	targets := make([]models.Target, 0, len(hosts))
	for _, h := range hosts {
		targets = append(targets, models.Target{Host: h})
	}

	cfg, prof := resolveConfig(*configFlag, *profileFlag, logger)

	tc := throttle.New(throttle.Options{
		InitialPPS:       prof.InitialPPS,
		MaxPPS:           prof.MaxPPS,
		MinPPS:           prof.MinPPS,
		SuccessThreshold: float64(cfg.Throttling.SuccessThreshold),
		FailureThreshold: float64(cfg.Throttling.FailureThreshold),
		RateIncrease:     float64(cfg.Throttling.RateIncreaseFactor),
		RateDecrease:     float64(cfg.Throttling.RateDecreaseFactor),
		Logger:           logger,
	})

	disc := discovery.New(discovery.Options{
		Timeout: prof.ConnectTimeout,
		Retries: prof.ProbeRetries,
		Logger:  logger,
	}, tc)

	scanner := portscan.New(portscan.Options{
		Timeout:       prof.ConnectTimeout,
		Retries:       prof.ProbeRetries,
		RetryDelay:    prof.RetryDelay,
		MaxBannerSize: int(cfg.Detection.MaxBannerSize),
		Concurrency:   *concurrencyFlag,
		Logger:        logger,
	}, tc)
	defer scanner.Close()

	detector := servicedetect.New(servicedetect.Options{
		BannerTimeout:       time.Duration(cfg.Detection.BannerTimeoutMs) * time.Millisecond,
		MaxBannerSize:       int(cfg.Detection.MaxBannerSize),
		ConfidenceThreshold: float64(cfg.OSFingerprint.ConfidenceThreshold),
	}, servicedetect.DefaultSignatures())

	var collector *fingerprint.Collector
	var db *sigdb.Database
	if *osFlag {
		collector = fingerprint.New(fingerprint.Options{
			EnableTCP:          cfg.OSFingerprint.EnableTCP,
			EnableICMP:         cfg.OSFingerprint.EnableICMP,
			EnableUDP:          cfg.OSFingerprint.EnableUDP,
			EnableProtocol:     cfg.OSFingerprint.EnableProtocol,
			EnableClockSkew:    cfg.OSFingerprint.EnableClockSkew,
			EnablePassive:      cfg.OSFingerprint.EnablePassive,
			EnableActiveProbes: cfg.OSFingerprint.EnableActiveProbes,
			ProbeTimeout:       prof.ConnectTimeout,
			ActiveProbeTimeout: time.Duration(cfg.OSFingerprint.ActiveProbesTimeoutMs) * time.Millisecond,
			ClockSkewSamples:   cfg.OSFingerprint.ClockSkewSamples,
			SeqProbesCount:     cfg.OSFingerprint.SeqProbesCount,
			Logger:             logger,
		}, tc)

		db = sigdb.Builtin()
		if *sigdbFlag != "" {
			extra, err := sigdb.Load(*sigdbFlag)
			if err != nil {
				cli.PrintError("loading signature file: %v", err)
				os.Exit(cli.ExitUsageError)
			}
			db = sigdb.Merge(db, extra)
		}
	}

	o := orchestrator.New(tc, disc, scanner, detector, collector, db, logger)

	results, err := o.Run(context.Background(), orchestrator.ScanConfig{
		Targets:                targets,
		Ports:                  ports,
		Technique:              technique,
		EnableServiceDetection: *servicesFlag,
		EnableOSFingerprint:    *osFlag,
		HostConcurrency:        *concurrencyFlag,
		TargetWorkers:          *workersFlag,
		MatchThreshold:         float64(cfg.OSFingerprint.FuzzyMatchThreshold),
	})
	printScanResults(results)
	if err != nil {
		cli.PrintError("%v", err)
		os.Exit(scanExitCode(err))
	}
}

// scanExitCode maps a scan's terminal error to the exit code spec.md §6
// defines: insufficient privilege and cancellation get their own codes,
// every other *orchestrator.ScanError kind is a generic runtime error.
func scanExitCode(err error) int {
	var scanErr *orchestrator.ScanError
	if !errors.As(err, &scanErr) {
		return cli.ExitRuntimeError
	}
	switch scanErr.Kind {
	case scanerrors.KindPermissionDenied:
		return cli.ExitInsufficientPrivilege
	case scanerrors.KindCancelled:
		return cli.ExitCancelled
	default:
		return cli.ExitRuntimeError
	}
}

func parseTechnique(s string) (portscan.Technique, error) {
	switch strings.ToLower(s) {
	case "connect", "":
		return portscan.TechniqueConnect, nil
	case "syn":
		return portscan.TechniqueSYN, nil
	case "udp":
		return portscan.TechniqueUDP, nil
	default:
		return "", fmt.Errorf("unknown technique %q (want connect, syn or udp)", s)
	}
}

func resolveConfig(configPath, profileName string, logger logrus.FieldLogger) (config.Config, profiles.Profile) {
	cfg := config.Default()
	if configPath != "" {
		loaded, warnings, err := config.Load(configPath)
		if err != nil {
			cli.PrintError("loading config: %v", err)
			os.Exit(cli.ExitUsageError)
		}
		for _, w := range warnings {
			cli.PrintWarning("%s: %s", w.Key, w.Message)
		}
		cfg = loaded
	}

	prof, ok := profiles.Lookup(profiles.Name(profileName))
	if !ok {
		logger.Warnf("unknown timing profile %q, using normal", profileName)
		prof = profiles.Default()
	}
	return cfg, prof
}

func printScanResults(results []models.HostResult) {
	for _, host := range results {
		fmt.Printf("\n%s (%s)\n", host.Target.Host, host.Status)
		if host.Status != models.HostUp {
			continue
		}

		rows := make([][]string, 0, len(host.PortResults))
		for _, pr := range host.PortResults {
			if pr.Status != models.StatusOpen {
				continue
			}
			name := "-"
			if svc, ok := host.Services[pr.Port]; ok {
				name = fmt.Sprintf("%s %s (%.2f)", svc.Name, svc.Version, svc.Confidence)
			}
			rows = append(rows, []string{fmt.Sprintf("%d/%s", pr.Port, pr.Protocol), string(pr.Status), name})
		}
		if len(rows) > 0 {
			fmt.Print(cli.FormatTable([]string{"PORT", "STATE", "SERVICE"}, rows))
		} else {
			fmt.Println("No open ports found")
		}

		for _, match := range host.OSMatches {
			if match.BestMatch == nil {
				continue
			}
			fmt.Printf("OS guess: %s (%.2f, %s)\n", match.BestMatch.OSName, match.BestMatch.Total, match.BestMatch.Confidence)
		}
	}
}

func runSigDB(args []string) {
	if len(args) < 1 {
		cli.PrintError("sigdb requires a subcommand: validate or merge")
		os.Exit(cli.ExitUsageError)
	}

	switch args[0] {
	case "validate":
		runSigDBValidate(args[1:])
	case "merge":
		runSigDBMerge(args[1:])
	default:
		cli.PrintError("unknown sigdb subcommand: %s", args[0])
		os.Exit(cli.ExitUsageError)
	}
}

func runSigDBValidate(args []string) {
	fs := flag.NewFlagSet("sigdb validate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(cli.ExitUsageError)
	}
	if fs.NArg() < 1 {
		cli.PrintError("usage: netrecon sigdb validate [FILE]")
		os.Exit(cli.ExitUsageError)
	}

	db, err := sigdb.Load(fs.Arg(0))
	if err != nil {
		cli.PrintError("loading %s: %v", fs.Arg(0), err)
		os.Exit(cli.ExitUsageError)
	}
	report := sigdb.Validate(db)
	fmt.Printf("%d valid, %d invalid\n", report.Valid, report.Invalid)
	for _, issue := range report.Issues {
		fmt.Printf("  [%d] %s: %s\n", issue.Index, issue.OSName, issue.Message)
	}
	if report.Invalid > 0 {
		os.Exit(cli.ExitUsageError)
	}
}

func runSigDBMerge(args []string) {
	fs := flag.NewFlagSet("sigdb merge", flag.ExitOnError)
	outFlag := fs.String("o", "", "Output file path (required)")
	var files []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			os.Exit(cli.ExitUsageError)
		}
		if fs.NArg() == 0 {
			break
		}
		files = append(files, fs.Arg(0))
		rest = fs.Args()[1:]
	}
	if len(files) < 1 || *outFlag == "" {
		cli.PrintError("usage: netrecon sigdb merge [FILES...] -o OUTPUT")
		os.Exit(cli.ExitUsageError)
	}

	dbs := make([]*sigdb.Database, 0, len(files))
	for _, path := range files {
		db, err := sigdb.Load(path)
		if err != nil {
			cli.PrintError("loading %s: %v", path, err)
			os.Exit(cli.ExitUsageError)
		}
		dbs = append(dbs, db)
	}

	merged := sigdb.Merge(dbs...)
	if err := merged.Store(*outFlag); err != nil {
		cli.PrintError("writing %s: %v", *outFlag, err)
		os.Exit(cli.ExitUsageError)
	}
	fmt.Printf("wrote %d signatures to %s\n", len(merged.Signatures), *outFlag)
}
