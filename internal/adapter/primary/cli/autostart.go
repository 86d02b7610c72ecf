package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/emersion/go-autostart"
	"github.com/spf13/cobra"

	"alarm-manager/internal/logging"
)

// launcher registers a command to run at login.
type launcher interface {
	IsEnabled() bool
	Enable() error
	Disable() error
}

// newLauncher is replaced in tests so they never touch the user's session.
var newLauncher = func(exec []string) launcher {
	return &autostart.App{
		Name:        "alarm-manager",
		DisplayName: "Alarm Manager",
		Exec:        exec,
	}
}

// daemonExec is the command line registered for login: this binary running
// the daemon with the current config file.
func daemonExec() ([]string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}
	cfgAbs, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, err
	}
	return []string{execPath, "daemon", "--config", cfgAbs}, nil
}

func newAutostartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Start the daemon at login so alarms survive reboots",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Register the daemon to start at login",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return setAutostart(cmd, true)
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Remove the login registration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return setAutostart(cmd, false)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the daemon starts at login",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				exec, err := daemonExec()
				if err != nil {
					return err
				}
				state := "disabled"
				if newLauncher(exec).IsEnabled() {
					state = "enabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "autostart: %s\n", state)
				return nil
			},
		},
	)
	return cmd
}

func setAutostart(cmd *cobra.Command, enable bool) error {
	exec, err := daemonExec()
	if err != nil {
		return err
	}
	app := newLauncher(exec)
	out := cmd.OutOrStdout()

	if enable {
		if app.IsEnabled() {
			fmt.Fprintln(out, "autostart already enabled")
			return nil
		}
		if err := app.Enable(); err != nil {
			logging.Errorf("Failed to enable autostart: %v", err)
			return err
		}
		fmt.Fprintln(out, "autostart enabled")
		return nil
	}

	if !app.IsEnabled() {
		fmt.Fprintln(out, "autostart already disabled")
		return nil
	}
	if err := app.Disable(); err != nil {
		logging.Errorf("Failed to disable autostart: %v", err)
		return err
	}
	fmt.Fprintln(out, "autostart disabled")
	return nil
}
