package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"alarm-manager/internal/adapter/primary/remote"
	"alarm-manager/internal/adapter/primary/web"
	"alarm-manager/internal/adapter/secondary/calendar"
	"alarm-manager/internal/adapter/secondary/repository"
	"alarm-manager/internal/domain"
)

// withBackend opens the backend for the duration of fn.
func withBackend(cmd *cobra.Command, fn func(b alarmBackend) error) error {
	b, addr, release, err := openBackend(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer release()

	err = fn(b)
	if err == nil || addr == "" || !remote.IsUnreachable(err) {
		return err
	}
	if serverAddr != "" {
		return fmt.Errorf("%w (is the server at %s running?)", err, addr)
	}
	return fmt.Errorf("%w (a daemon holds the alarm store but its API at %s is unreachable)", err, addr)
}

// withAlarm resolves args[0] to an alarm ID before calling fn.
func withAlarm(cmd *cobra.Command, args []string, fn func(b alarmBackend, id string) error) error {
	return withBackend(cmd, func(b alarmBackend) error {
		id, err := resolveID(b, args[0])
		if err != nil {
			return err
		}
		return fn(b, id)
	})
}

func printAlarm(w io.Writer, verb string, a domain.Alarm) {
	state := "off"
	if a.Enabled {
		state = "on"
	}
	fmt.Fprintf(w, "%s %s: %s %s (%s, ringtone %s)\n",
		verb, shortID(a.ID), a.Clock(), a.ScheduledTime.Format("Mon Jan 2"), state, a.RingtoneRef)
}

// reportTimer prints a stored alarm whose timer could not be armed and
// returns the error so the exit code reflects it.
func reportTimer(w io.Writer, verb string, a domain.Alarm, err error) error {
	var unavailable *domain.TimerUnavailableError
	if errors.As(err, &unavailable) && a.ID != "" {
		printAlarm(w, verb, a)
	}
	return err
}

func newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List alarms",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(b alarmBackend) error {
				alarms, err := b.List()
				if err != nil {
					return err
				}
				domain.SortForDisplay(alarms)

				views := make([]web.AlarmView, 0, len(alarms))
				for _, a := range alarms {
					state, err := b.State(a.ID)
					if err != nil {
						return err
					}
					views = append(views, web.NewAlarmView(a, state))
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(views)
				}
				if len(views) == 0 {
					fmt.Fprintln(out, "No alarms.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTIME\tDATE\tENABLED\tSTATE\tRINGTONE")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
						shortID(v.ID), v.Clock, v.Time.Format("Mon Jan 2"), v.Enabled, v.State, v.Ringtone)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newAddCmd() *cobra.Command {
	var ringtone string
	cmd := &cobra.Command{
		Use:   "add TIME",
		Short: "Create an alarm (TIME: 07:30, 7:30pm, +25m, RFC 3339)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseAlarmTime(args[0], time.Now())
			if err != nil {
				return err
			}
			return withBackend(cmd, func(b alarmBackend) error {
				alarm, err := b.Create(at, ringtone)
				if err != nil {
					return reportTimer(cmd.OutOrStdout(), "Created", alarm, err)
				}
				printAlarm(cmd.OutOrStdout(), "Created", alarm)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ringtone, "ringtone", "", "ringtone file path or file:// URL")
	return cmd
}

func newRescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule ID TIME",
		Short: "Move an alarm to a new time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseAlarmTime(args[1], time.Now())
			if err != nil {
				return err
			}
			return withAlarm(cmd, args, func(b alarmBackend, id string) error {
				alarm, err := b.Reschedule(id, at)
				if err != nil {
					return reportTimer(cmd.OutOrStdout(), "Rescheduled", alarm, err)
				}
				printAlarm(cmd.OutOrStdout(), "Rescheduled", alarm)
				return nil
			})
		},
	}
}

func newRingtoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ringtone ID [REF]",
		Short: "Change an alarm's ringtone (no REF restores the default)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 2 {
				ref = args[1]
			}
			return withAlarm(cmd, args, func(b alarmBackend, id string) error {
				alarm, err := b.SetRingtone(id, ref)
				if err != nil {
					return reportTimer(cmd.OutOrStdout(), "Updated", alarm, err)
				}
				printAlarm(cmd.OutOrStdout(), "Updated", alarm)
				return nil
			})
		},
	}
}

func newToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle ID",
		Short: "Enable or disable an alarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAlarm(cmd, args, func(b alarmBackend, id string) error {
				alarm, err := b.Toggle(id)
				if err != nil {
					return reportTimer(cmd.OutOrStdout(), "Toggled", alarm, err)
				}
				printAlarm(cmd.OutOrStdout(), "Toggled", alarm)
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete an alarm",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAlarm(cmd, args, func(b alarmBackend, id string) error {
				if err := b.Delete(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", shortID(id))
				return nil
			})
		},
	}
}

func newSnoozeCmd() *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "snooze ID",
		Short: "Snooze an alarm (silences it if ringing)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if delay < 0 {
				return domain.ErrInvalidDelay
			}
			return withAlarm(cmd, args, func(b alarmBackend, id string) error {
				alarm, err := b.Snooze(id, delay)
				if err != nil {
					return reportTimer(cmd.OutOrStdout(), "Snoozed", alarm, err)
				}
				printAlarm(cmd.OutOrStdout(), "Snoozed", alarm)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&delay, "for", 0, "snooze length, e.g. 10m (default from config)")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Silence a ringing alarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAlarm(cmd, args, func(b alarmBackend, id string) error {
				if err := b.CancelFiring(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", shortID(id))
				return nil
			})
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream alarm changes from the running daemon (or --server)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := serverAddr
			if addr == "" {
				addr = cfg.HTTP.Addr
			}
			ctx, stop := signalContext()
			defer stop()

			client := remote.NewClient(addr, 10*time.Second, nil)
			out := cmd.OutOrStdout()
			return client.Watch(ctx, func(c domain.Change) {
				fmt.Fprintf(out, "%s  %-8s %s %s %s\n",
					c.At.Local().Format("15:04:05"), c.Type, shortID(c.Alarm.ID), c.Alarm.Clock(), c.State)
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write enabled alarms as an iCalendar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(b alarmBackend) error {
				alarms, err := b.List()
				if err != nil {
					return err
				}
				if outPath == "" || outPath == "-" {
					return calendar.Export(cmd.OutOrStdout(), alarms, time.Now())
				}

				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				if err := calendar.Export(f, alarms, time.Now()); err != nil {
					f.Close()
					os.Remove(outPath)
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Merge alarms from a payload file (current or legacy array format) into the store",
		Long: "Merge alarms from a payload file into the configured store. Alarms with a known ID\n" +
			"replace the stored one. It refuses to run while a daemon holds the store; the daemon\n" +
			"arms imported alarms when it starts.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverAddr != "" {
				return errors.New("import writes the store directly and cannot use --server")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			alarms, err := repository.Decode(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			lock, err := repository.Lock(cmd.Context(), storeOptions(cfg), 0)
			if errors.Is(err, repository.ErrLocked) {
				return fmt.Errorf("%w; stop the daemon before importing", err)
			}
			if err != nil {
				return err
			}
			defer lock.Unlock()

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, a := range alarms {
				if a.RingtoneRef == "" {
					a.RingtoneRef = cfg.DefaultRingtone
				}
				if err := repository.Upsert(store, a); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d alarm(s) into %s\n", len(alarms), store.Source)
			return nil
		},
	}
}
