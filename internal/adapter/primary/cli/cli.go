package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"alarm-manager/internal/adapter/primary/web"
	"alarm-manager/internal/adapter/secondary/repository"
	"alarm-manager/internal/config"
	"alarm-manager/internal/logging"
)

var (
	cfgPath    string
	verbosity  int
	storeFlag  string
	addrFlag   string
	serverAddr string

	// cfg is loaded once per command invocation.
	cfg config.Config
)

// NewRootCmd creates the root CLI command.
// This is the primary adapter that translates CLI inputs to use case calls.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "alarm-manager",
		Short:         "Alarm clock scheduler with CLI, HTTP API and MQTT notifications",
		Long:          "Schedules alarms that ring at a wall-clock time, can be snoozed, toggled and deleted,\nand survive restarts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "more logging (-v, -vv, ... up to 4)")
	cmd.PersistentFlags().StringVar(&storeFlag, "store", "", "store backend override (file|redis|sqlite)")
	cmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "HTTP listen address override")
	cmd.PersistentFlags().StringVar(&serverAddr, "server", "", "send commands to a running server at this address")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.SetVerbosity(verbosity)
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		return logging.Init(cfg.Log.Format)
	}

	cmd.AddCommand(
		newDaemonCmd(),
		newServeCmd(),
		newListCmd(),
		newAddCmd(),
		newRescheduleCmd(),
		newRingtoneCmd(),
		newToggleCmd(),
		newDeleteCmd(),
		newSnoozeCmd(),
		newStopCmd(),
		newWatchCmd(),
		newExportCmd(),
		newImportCmd(),
		newAutostartCmd(),
		newConfigCmd(),
		newShellCmd(),
	)

	return cmd
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (config.Config, error) {
	store, err := config.NewFileStore(cfgPath)
	if err != nil {
		return config.Config{}, err
	}
	c, err := store.Load()
	if err != nil {
		return config.Config{}, err
	}
	if storeFlag != "" {
		c.Store.Backend = storeFlag
	}
	if addrFlag != "" {
		c.HTTP.Addr = addrFlag
	}
	return config.Normalize(c)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler and its control API (what autostart launches)",
		Long: "Run the scheduler. The daemon owns the alarm store and serves the HTTP API on\n" +
			"http.addr; other alarm-manager commands find it there while it runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(cmd, "Alarm manager daemon started (API at http://%s)\n")
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler with the HTTP API and web page",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(cmd, "Alarm manager running at http://%s\n")
		},
	}
}

// runResident runs a resident engine behind the HTTP API until a signal arrives.
func runResident(cmd *cobra.Command, banner string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := buildEngine(ctx, cfg, true)
	if errors.Is(err, repository.ErrLocked) {
		return fmt.Errorf("%w (is a daemon already running?)", err)
	}
	if err != nil {
		return err
	}
	defer e.Close()

	go keepArmed(ctx, e, cfg.TimerResync(), e.clock.Pending)

	srv := web.NewServer(e, cfg.HTTP.Addr, logging.L().Named("http"))
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, banner, cfg.HTTP.Addr)
	logging.Infof("Scheduler started (store: %s)", e.store.Source)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.L().Warn("http shutdown", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	fmt.Fprintln(out, "Shutting down...")
	return nil
}

func newShellCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell for running subcommands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractiveShell(prompt, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "alarm> ", "shell prompt")
	return cmd
}

// shellSession carries persistent flags from one shell command to the next.
type shellSession struct {
	cfgPath   string
	verbosity int
	store     string
	server    string
}

func runInteractiveShell(prompt string, out io.Writer) error {
	historyFile := filepath.Join(os.TempDir(), "alarm-manager-shell.history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	session := &shellSession{cfgPath: cfgPath, verbosity: verbosity, store: storeFlag, server: serverAddr}
	fmt.Fprintln(out, "Interactive shell. Type 'help' for examples, 'exit' to quit.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Fprintln(out)
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		if quit := session.run(strings.TrimSpace(line), out); quit {
			return nil
		}
	}
}

// run executes one shell line and reports whether the shell should exit.
func (s *shellSession) run(line string, out io.Writer) bool {
	if line == "" {
		return false
	}
	switch line {
	case "exit", "quit":
		fmt.Fprintln(out, "Bye!")
		return true
	case "help":
		printShellHelp(out)
		return false
	}
	tokens, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(out, "Parse error: %v\n", err)
		return false
	}
	if len(tokens) == 0 {
		return false
	}
	switch tokens[0] {
	case "log":
		if err := s.handleLog(tokens[1:], out); err != nil {
			fmt.Fprintf(out, "log: %v\n", err)
		}
		return false
	case "shell":
		fmt.Fprintln(out, "Already in the shell. Enter another command or 'exit'.")
		return false
	}

	if err := s.execute(tokens, out); err != nil {
		fmt.Fprintf(out, "command error: %v\n", err)
	}
	return false
}

// execute runs args on a fresh root command seeded with the session's flags.
func (s *shellSession) execute(args []string, out io.Writer) error {
	root := NewRootCmd()
	flags := root.PersistentFlags()
	_ = flags.Set("config", s.cfgPath)
	_ = flags.Set("verbose", strconv.Itoa(s.verbosity))
	if s.store != "" {
		_ = flags.Set("store", s.store)
	}
	if s.server != "" {
		_ = flags.Set("server", s.server)
	}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	return root.Execute()
}

func (s *shellSession) handleLog(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var vcount int
	var level string
	var show bool
	fs.CountVarP(&vcount, "verbose", "v", "Increase verbosity (-v... up to 4)")
	fs.StringVar(&level, "level", "", "level (error|warn|info|debug|trace)")
	fs.BoolVarP(&show, "show", "s", false, "show the current level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case show && vcount == 0 && level == "":
		fmt.Fprintf(out, "log level: %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
		return nil
	case level != "":
		_, count, err := logging.ParseLevel(level)
		if err != nil {
			return err
		}
		s.verbosity = count
	case vcount > 0:
		s.verbosity = vcount
	default:
		fmt.Fprintf(out, "log level: %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
		return nil
	}

	logging.SetVerbosity(s.verbosity)
	fmt.Fprintf(out, "log level set to %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
	return nil
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, `Examples:
  list                        # show alarms
  add 07:30                   # ring at the next 07:30
  add +25m --ringtone bell.wav
  reschedule 3f2a 08:15       # ids may be abbreviated
  toggle 3f2a                 # enable / disable
  snooze 3f2a --for 10m
  stop 3f2a
  delete 3f2a
  export --out alarms.ics
  import old-alarms.json       # merge a saved payload into the store
  config get
  log -vv                     # more logging
  log --show                  # current log level
  exit / quit`)
}
