// Command aptest runs end-to-end tests for an Aptos Move project against
// a throwaway local node.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deixis/aptest"
	"github.com/deixis/aptest/internal/config"
	"github.com/deixis/aptest/internal/console"
	"github.com/deixis/aptest/internal/logging"
	aptmcp "github.com/deixis/aptest/internal/mcp"
	"github.com/deixis/aptest/internal/report"
	"github.com/deixis/aptest/internal/runner"
	"github.com/deixis/aptest/internal/workflow"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("aptest: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(workflow.ExitUsage)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		os.Exit(runMain(args))
	case "mcp":
		if err := mcpMain(args); err != nil {
			log.Fatal(err)
		}
	case "version":
		fmt.Println(aptest.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "aptest: unknown command %q\n", cmd)
		usage()
		os.Exit(workflow.ExitUsage)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: aptest <command> [flags]

Commands:
  run         Start a local node, build and publish, then run the e2e tests
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "aptest <command> -h" for command-specific flags.`)
}

// --- run ---

type runFlags struct {
	noCompile   bool
	noPublish   bool
	noFaucet    bool
	interactive bool
	logToFile   bool
	startDelay  uint
	delaySet    bool
	json        bool
	verbose     bool
}

func parseRunFlags(args []string, stderr io.Writer) (runFlags, error) {
	var f runFlags
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVarP(&f.noCompile, "no-compile", "c", false, "skip compiling the Move package")
	fs.BoolVarP(&f.noPublish, "no-publish", "p", false, "skip publishing the Move package")
	fs.BoolVarP(&f.noFaucet, "no-faucet", "f", false, "do not start the faucet")
	fs.BoolVarP(&f.interactive, "interactive", "i", false, "keep the node running instead of running tests")
	fs.BoolVarP(&f.logToFile, "log", "l", false, "write node output to the log file instead of the terminal")
	fs.UintVarP(&f.startDelay, "start-delay", "d", uint(config.DefaultStartDelay/time.Second), "seconds to wait for the node before building")
	fs.BoolVar(&f.json, "json", false, "print the run result as JSON")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "verbose logging")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	f.delaySet = fs.Changed("start-delay")
	return f, nil
}

// runConfig merges the flags with the project configuration. An explicit
// --start-delay wins over the configured one.
func (f runFlags) runConfig(cfg *config.Config) config.RunConfig {
	rc := config.RunConfig{
		SkipCompile: f.noCompile,
		SkipPublish: f.noPublish,
		SkipFaucet:  f.noFaucet,
		LogToFile:   f.logToFile,
		StartDelay:  cfg.StartDelay(),
		Phase:       config.RunTests{},
	}
	if f.delaySet {
		rc.StartDelay = time.Duration(f.startDelay) * time.Second
	}
	if f.interactive {
		rc.Phase = config.Interactive{}
	}
	return rc
}

func runMain(args []string) int {
	flags, err := parseRunFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return workflow.ExitOK
		}
		fmt.Fprintf(os.Stderr, "aptest: %v\n", err)
		return workflow.ExitUsage
	}

	profile := logging.ProfileRuntime
	if flags.verbose {
		profile = logging.ProfileVerbose
	}
	logger := logging.New(os.Stderr, "aptest", profile)

	workspace, err := os.Getwd()
	if err != nil {
		logger.Error().Err(err).Msg("determining workspace")
		return workflow.ExitConfig
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		logger.Error().Err(err).Msg("loading config")
		return workflow.ExitConfig
	}
	cfg := loaded.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &runner.Runner{
		Workspace:   loaded.ProjectRoot,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		GracePeriod: cfg.GracePeriod(),
		Timeout:     cfg.StepTimeout(),
	}

	out := io.Writer(os.Stdout)
	if flags.json {
		// Keep stdout clean for the JSON document.
		out = os.Stderr
	}

	eng := &workflow.Engine{
		Config:      cfg,
		Starter:     r,
		Steps:       r,
		ProjectRoot: loaded.ProjectRoot,
		Project:     loaded.Package,
		Account:     loaded.Account,
		Console:     console.New(out),
		Log:         logger,
	}
	if dir := cfg.ResultsPath(loaded.ProjectRoot); dir != "" {
		// Lets `aptest mcp` inspect runs started from the terminal.
		eng.Store = report.NewDiskStore(dir)
	}

	rr := eng.Execute(ctx, flags.runConfig(cfg))

	if flags.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rr); err != nil {
			logger.Error().Err(err).Msg("encoding result")
		}
	} else if rr.Failed() || flags.verbose {
		fmt.Fprint(os.Stderr, rr.Summary())
	}
	return rr.ExitCode
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := pflag.NewFlagSet("mcp", pflag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(aptmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, *httpAddr)
}

func serve(ctx context.Context, httpAddr string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(os.Stderr, "aptest-mcp", logging.ProfileRuntime)
	store := report.NewLRUStore(5, report.NewDiskStore(loaded.Config.ResultsPath(loaded.ProjectRoot)))

	// The stdio transport owns stdout; tool output goes to stderr.
	r := &runner.Runner{
		Workspace:   loaded.ProjectRoot,
		Stdout:      os.Stderr,
		Stderr:      os.Stderr,
		GracePeriod: loaded.Config.GracePeriod(),
		Timeout:     loaded.Config.StepTimeout(),
	}

	server := aptmcp.NewServer(loaded, r, store, logger)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
