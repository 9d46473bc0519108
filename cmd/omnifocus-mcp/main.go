// omnifocus-mcp serves the OmniFocus GTD tools to an MCP client over stdio.
// Protocol messages use stdout; all logging goes to stderr.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaharia-lab/omnifocus-gtd/config"
	"github.com/shaharia-lab/omnifocus-gtd/mcp"
	"github.com/shaharia-lab/omnifocus-gtd/observability"
	"github.com/shaharia-lab/omnifocus-gtd/omnifocus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const binaryName = "omnifocus-mcp"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run returns the process exit code: 0 after shutdown, end of input or a
// signal, 1 on configuration or I/O errors.
func run(parent context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		configPath  string
		envFile     string
		logLevel    string
		logFormat   string
		timeout     time.Duration
		osascript   string
		showVersion bool
		traceSpans  bool
	)

	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file")
	flagSet.StringVar(&envFile, "env-file", "", "load OMNIFOCUS_MCP_* variables from this .env file")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&logFormat, "log-format", "", "log format: text, json, zap")
	flagSet.DurationVar(&timeout, "timeout", 0, "timeout for a single OmniFocus command")
	flagSet.StringVar(&osascript, "osascript", "", "path to the osascript binary")
	flagSet.BoolVar(&traceSpans, "trace", false, "write OpenTelemetry spans to stderr")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}

	if envFile != "" {
		if err := config.LoadEnvFile(envFile); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	if showVersion {
		fmt.Fprintf(stdout, "%s %s (protocol %s)\n", binaryName, cfg.Server.Version, cfg.Server.ProtocolVersion)
		return 0
	}

	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flagSet.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flagSet.Changed("timeout") {
		cfg.Executor.Timeout = timeout
	}
	if flagSet.Changed("osascript") {
		cfg.Executor.Binary = osascript
	}
	if flagSet.Changed("trace") {
		cfg.Trace.Enabled = traceSpans
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: invalid configuration: %v\n", err)
		return 1
	}

	logOpts := cfg.LoggerOptions()
	logOpts.Output = stderr
	logger, err := observability.NewLogger(logOpts)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	if err := serve(parent, cfg, logger, stdin, stdout, stderr); err != nil {
		logger.WithErr(err).Error("Server stopped with an error")
		return 1
	}
	return 0
}

func serve(parent context.Context, cfg *config.Config, logger observability.Logger, stdin io.Reader, stdout, stderr io.Writer) error {
	if cfg.Trace.Enabled {
		tp, err := observability.NewTracerProvider(stderr, cfg.Server.Name, cfg.Server.Version)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.WithErr(err).Warn("Failed to flush spans")
			}
		}()

		ctx, root := tp.Tracer(binaryName).Start(parent, "omnifocus-mcp.serve")
		defer root.End()
		parent = ctx
	}

	executor := omnifocus.NewOSAScriptExecutor(cfg.ExecutorOptions(), logger)

	tools, err := omnifocus.NewToolManager(executor, logger)
	if err != nil {
		return fmt.Errorf("failed to build tool catalog: %w", err)
	}

	baseServer, err := mcp.NewBaseServer(
		mcp.UseLogger(logger),
		mcp.UseServerInfo(cfg.Server.Name, cfg.Server.Version),
		mcp.UseProtocolVersion(cfg.Server.ProtocolVersion),
		mcp.UseTools(tools),
	)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(stdout)
	server := mcp.NewStdIOServer(baseServer, stdin, out)

	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	logger.WithFields(map[string]interface{}{
		"executor": cfg.Executor.Binary,
		"timeout":  cfg.Executor.Timeout.String(),
	}).Info("OmniFocus MCP server starting")

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if sigCtx.Err() != nil && parent.Err() == nil {
			logger.Info("Received signal, shutting down")
		}
		return nil
	})

	err = g.Wait()
	if flushErr := out.Flush(); flushErr != nil && err == nil {
		err = fmt.Errorf("failed to flush output: %w", flushErr)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil {
		logger.Info("OmniFocus MCP server stopped")
	}
	return err
}
