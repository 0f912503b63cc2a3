// Command slugrun launches the actor runtime against a bootstrap script.
// Grounded on the teacher's commented-out cmd/app/main.go flag launcher
// (working-directory chdir, module-search-path injection, -root/-log-*
// flags), translated from the standard flag package to cobra.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"actorkit/internal/actor"
	"actorkit/internal/config"
	"actorkit/internal/logging"
	"actorkit/internal/runtimectx"
	"actorkit/internal/sandbox"
)

var (
	rootFlag  string
	logLevel  string
	logFile   string
	logColor  bool
	memLimit  int64
	debugHTTP string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slugrun <script> [args...]",
		Short: "Run a script on the actor runtime",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run,
	}
	cmd.Flags().StringVar(&rootFlag, "root", ".", "directory searched for slug.toml")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error, none")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log file path (stdout only if unset)")
	cmd.Flags().BoolVar(&logColor, "log-color", true, "colorize log output on a terminal")
	cmd.Flags().Int64Var(&memLimit, "mem-limit", 0, "per-actor memory limit in bytes (0 = unlimited)")
	cmd.Flags().StringVar(&debugHTTP, "debug-http", "", "address to serve the debug control plane on (e.g. :8080), empty disables it")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	scriptPath := args[0]
	scriptArgs := args[1:]

	root, script, err := resolveScript(rootFlag, scriptPath)
	if err != nil {
		return err
	}
	if err := os.Chdir(filepath.Dir(script)); err != nil {
		return fmt.Errorf("slugrun: chdir %s: %w", filepath.Dir(script), err)
	}

	cfg := config.Load(root, os.Getenv("SLUG_HOME"), flagOverrides(cmd))

	logger := logging.New(cfg.GetString("log.level", logLevel), cfg.GetString("log.file", logFile), cfg.GetBool("log.color", logColor))
	defer logger.Close()
	slog.SetDefault(slog.New(logging.NewHandler(logger)))

	rt, err := runtimectx.New(cfg, defaultScriptLoader)
	if err != nil {
		return fmt.Errorf("slugrun: init runtime: %w", err)
	}
	rt.Start()
	defer rt.Stop()

	if err := injectSearchPath(rt); err != nil {
		slog.Warn("could not watch lualib search path", slog.Any("err", err))
	}

	if debugHTTP != "" {
		go serveDebug(rt, debugHTTP)
	}

	params := actor.Params{
		Name:      "bootstrap",
		Unique:    true,
		MemLimit:  cfg.GetInt64("mem_limit", memLimit),
		Allocator: sandbox.DefaultAllocator,
		Script:    script,
		Args:      argsToParams(scriptArgs),
	}
	if _, err := actor.Spawn(rt.Registry, rt.Monitor, rt.Shutdown, rt.Cache, params); err != nil {
		return fmt.Errorf("slugrun: bootstrap failed: %w", err)
	}

	rt.Shutdown.WaitForDrain()
	code, _ := rt.Shutdown.Requested()
	if code != 0 {
		os.Exit(int(code))
	}
	return nil
}

// flagOverrides builds the highest-precedence config.Load layer from only
// the flags the caller actually set, so an unset flag lets the file/env
// layers beneath it take effect instead of always losing to the flag's
// zero value.
func flagOverrides(cmd *cobra.Command) map[string]any {
	overrides := make(map[string]any)
	flags := cmd.Flags()
	if flags.Changed("mem-limit") {
		overrides["mem_limit"] = memLimit
	}
	if flags.Changed("log-level") {
		overrides["log.level"] = logLevel
	}
	if flags.Changed("log-file") {
		overrides["log.file"] = logFile
	}
	if flags.Changed("log-color") {
		overrides["log.color"] = logColor
	}
	return overrides
}

// resolveScript normalizes scriptPath to an absolute path and returns the
// absolute root directory, which run passes to config.Load as the place to
// look for slug.toml.
func resolveScript(root, scriptPath string) (string, string, error) {
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return "", "", fmt.Errorf("slugrun: resolve %s: %w", scriptPath, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", "", fmt.Errorf("slugrun: script not found: %s", scriptPath)
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		rootAbs = filepath.Dir(abs)
	}
	return rootAbs, abs, nil
}

// injectSearchPath prepends <cwd>/lualib/?.slug to the module search path
// (spec §6), falling back to the directory adjacent to the executable, and
// starts the fsnotify watch so the script cache invalidates on edits.
func injectSearchPath(rt *runtimectx.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	lualib := filepath.Join(cwd, "lualib")
	if _, err := os.Stat(lualib); err != nil {
		if exe, exeErr := os.Executable(); exeErr == nil {
			lualib = filepath.Join(filepath.Dir(exe), "lualib")
		}
	}
	rt.SetEnv("PATH", lualib+string(filepath.Separator)+"?.slug")
	return rt.Cache.WatchDir(lualib)
}

func argsToParams(args []string) map[string]string {
	out := make(map[string]string, len(args))
	for i, a := range args {
		out[fmt.Sprintf("arg%d", i)] = a
	}
	return out
}

// defaultScriptLoader is the reference sandbox's stand-in for a real
// bytecode loader: it just validates the script exists and hands back a
// no-op entry point, since the embedded scripting language itself is out
// of this core's scope.
func defaultScriptLoader(path string) (sandbox.EntryPoint, error) {
	if !strings.HasSuffix(path, ".slug") {
		return nil, fmt.Errorf("slugrun: expected a .slug script, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return func(params map[string]string) error {
		return nil
	}, nil
}

func serveDebug(rt *runtimectx.Context, addr string) {
	mux := rt.DebugMux()
	slog.Info("debug control plane listening", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("debug control plane stopped", slog.Any("err", err))
	}
}
