package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/farmacia-suite/citas-client/internal/appointment"
	"github.com/farmacia-suite/citas-client/internal/board"
	"github.com/farmacia-suite/citas-client/internal/config"
	"github.com/farmacia-suite/citas-client/internal/detail"
	"github.com/farmacia-suite/citas-client/internal/farmacia"
	"github.com/farmacia-suite/citas-client/internal/observability/metrics"
	"github.com/farmacia-suite/citas-client/internal/schedule"
	"github.com/farmacia-suite/citas-client/internal/session"
	"github.com/farmacia-suite/citas-client/internal/slots"
	"github.com/farmacia-suite/citas-client/pkg/logging"
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "citasctl",
		Short:         "Pharmacy appointment scheduling client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(bookCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(attendCmd())
	rootCmd.AddCommand(reactivateCmd())
	rootCmd.AddCommand(boardCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app wires the client stack once per command invocation.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	sess     *session.Session
	client   *farmacia.Client
	resolver *slots.Resolver
	registry *prometheus.Registry
}

func newApp() *app {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	loc := cfg.Location()

	sess := session.New(cfg.Token).WithRole(cfg.Role)

	registry := prometheus.NewRegistry()
	m := metrics.NewClientMetrics(registry)

	client := farmacia.NewClient(cfg.APIBaseURL, sess, logger).
		WithLocation(loc).
		WithMetrics(m)

	resolver := slots.NewResolver(client, loc, logger).WithMetrics(m)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		resolver = resolver.WithCache(slots.NewRedisCache(rdb, loc, cfg.SlotCacheTTL))
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		sess:     sess,
		client:   client,
		resolver: resolver,
		registry: registry,
	}
}

func (a *app) board(confirm func(string) bool) *board.Board {
	return board.New(a.client, a.sess, confirm, a.logger)
}

// confirmFromStdin prompts on stderr and accepts "s"/"si"/"y"/"yes".
func confirmFromStdin(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [s/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s", "si", "sí", "y", "yes":
		return true
	}
	return false
}

func confirmYes(string) bool { return true }

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show the slot grid for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			dayFlag, _ := cmd.Flags().GetString("day")

			a := newApp()
			day, err := parseDayFlag(a.resolver, dayFlag)
			if err != nil {
				return err
			}

			resolved, err := a.resolver.Resolve(cmd.Context(), day)
			if err != nil {
				return err
			}
			if len(resolved) == 0 {
				fmt.Printf("No hay horarios para %s.\n", day.Format("2006-01-02"))
				return nil
			}

			fmt.Printf("Horarios %s\n", day.Format("2006-01-02"))
			for _, s := range resolved {
				state := "disponible"
				if !s.Available {
					state = "ocupado"
				}
				fmt.Printf("  %s  %s\n", s.Start.Format("15:04"), state)
			}
			return nil
		},
	}
	cmd.Flags().String("day", "", "Date (YYYY-MM-DD, default today)")
	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			statusFlag, _ := cmd.Flags().GetString("status")
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")

			a := newApp()
			filter, err := buildFilter(a.resolver, statusFlag, fromFlag, toFlag)
			if err != nil {
				return err
			}

			appts, err := a.client.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printAppointments(appts)
			return nil
		},
	}
	cmd.Flags().String("status", "", "Status filter (Todos, Activa, Cancelada, Terminada)")
	cmd.Flags().String("from", "", "Range start (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Range end (YYYY-MM-DD)")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApp()
			ed := detail.NewEditor(a.client, args[0], a.logger)
			switch ed.Load(cmd.Context()) {
			case detail.PhaseNotFound:
				return fmt.Errorf("appointment %s not found", args[0])
			case detail.PhaseLoadError:
				return fmt.Errorf("could not load appointment %s: %w", args[0], ed.LoadError())
			}
			appt, _ := ed.Appointment()
			printDetail(appt, ed.Editable())
			return nil
		},
	}
}

func bookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dayFlag, _ := cmd.Flags().GetString("day")
			timeFlag, _ := cmd.Flags().GetString("time")
			typeFlag, _ := cmd.Flags().GetString("type")
			notes, _ := cmd.Flags().GetString("notes")

			a := newApp()
			day, err := parseDayFlag(a.resolver, dayFlag)
			if err != nil {
				return err
			}

			ctrl := schedule.NewController(a.client, a.resolver, true, a.logger)
			defer ctrl.Close()

			updates := make(chan slots.Update, 1)
			ctrl.OnSlots(func(u slots.Update) {
				select {
				case updates <- u:
				default:
				}
			})
			if err := ctrl.SelectDate(cmd.Context(), day); err != nil {
				return err
			}
			select {
			case u := <-updates:
				if u.Err != nil {
					return fmt.Errorf("could not load slots: %w", u.Err)
				}
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			appt, err := ctrl.Submit(cmd.Context(), schedule.Form{
				PatientName:      name,
				Day:              day,
				Time:             timeFlag,
				ConsultationType: appointment.ConsultationType(typeFlag),
				Notes:            notes,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Cita agendada: %s %s %s\n",
				appt.ID, appt.ScheduledAt.Format("2006-01-02 15:04"), appt.PatientName)
			return nil
		},
	}
	cmd.Flags().String("name", "", "Patient name")
	cmd.Flags().String("day", "", "Date (YYYY-MM-DD, default today)")
	cmd.Flags().String("time", "", "Time (HH:MM)")
	cmd.Flags().String("type", string(appointment.ConsultationGeneral), "Consultation type")
	cmd.Flags().String("notes", "", "Notes")
	return cmd
}

func cancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			a := newApp()
			confirm := confirmFromStdin
			if yes {
				confirm = confirmYes
			}
			b := a.board(confirm)
			if err := b.Load(cmd.Context(), board.FilterActive, time.Time{}, time.Time{}); err != nil {
				return err
			}
			if err := b.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Cita %s cancelada.\n", args[0])
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	return cmd
}

func attendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attend <id>",
		Short: "Record the clinical outcome and complete an appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			obs, _ := cmd.Flags().GetString("observations")
			dx, _ := cmd.Flags().GetString("diagnosis")
			meds, _ := cmd.Flags().GetString("medications")

			a := newApp()
			ed := detail.NewEditor(a.client, args[0], a.logger)
			switch ed.Load(cmd.Context()) {
			case detail.PhaseNotFound:
				return fmt.Errorf("appointment %s not found", args[0])
			case detail.PhaseLoadError:
				return fmt.Errorf("could not load appointment %s: %w", args[0], ed.LoadError())
			}
			if !ed.Editable() {
				appt, _ := ed.Appointment()
				return fmt.Errorf("appointment %s is %s and cannot be attended", args[0], appt.Status)
			}
			if err := ed.Complete(cmd.Context(), obs, dx, meds); err != nil {
				return err
			}
			fmt.Printf("Cita %s atendida.\n", args[0])
			return nil
		},
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().String("observations", "", "Clinical observations")
	cmd.Flags().String("diagnosis", "", "Diagnosis")
	cmd.Flags().String("medications", "", "Prescribed medications")
	return cmd
}

func reactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <id>",
		Short: "Reactivate a cancelled appointment (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApp()
			b := a.board(confirmYes)
			if err := b.Load(cmd.Context(), board.FilterCancelled, time.Time{}, time.Time{}); err != nil {
				return err
			}
			if err := b.Reactivate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Cita %s reactivada.\n", args[0])
			return nil
		},
	}
}

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the appointment board",
		RunE: func(cmd *cobra.Command, args []string) error {
			statusFlag, _ := cmd.Flags().GetString("status")
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")
			watch, _ := cmd.Flags().GetBool("watch")

			a := newApp()
			filter := board.FilterAll
			if statusFlag != "" {
				var err error
				filter, err = board.ParseFilter(statusFlag)
				if err != nil {
					return err
				}
			}
			from, to, err := parseRange(a.resolver, fromFlag, toFlag)
			if err != nil {
				return err
			}

			b := a.board(confirmFromStdin)
			if watch {
				return runWatch(cmd.Context(), a, b, filter, from, to)
			}
			if err := b.Load(cmd.Context(), filter, from, to); err != nil {
				return err
			}
			printBoard(b.Rows())
			return nil
		},
	}
	cmd.Flags().String("status", "", "Status filter (Todos, Activa, Cancelada, Terminada)")
	cmd.Flags().String("from", "", "Range start (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Range end (YYYY-MM-DD)")
	cmd.Flags().Bool("watch", false, "Keep refreshing and expose health/metrics endpoints")
	return cmd
}

func parseDayFlag(r *slots.Resolver, v string) (time.Time, error) {
	if v == "" {
		return r.NormalizeDay(time.Now().In(r.Location()))
	}
	return r.ParseDay(v)
}

func parseRange(r *slots.Resolver, fromFlag, toFlag string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromFlag != "" {
		if from, err = r.ParseDay(fromFlag); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if toFlag != "" {
		if to, err = r.ParseDay(toFlag); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}

func buildFilter(r *slots.Resolver, statusFlag, fromFlag, toFlag string) (appointment.Filter, error) {
	var f appointment.Filter
	if statusFlag != "" {
		status, err := appointment.ParseStatus(statusFlag)
		if err != nil {
			// Accept board filter labels too.
			bf, ferr := board.ParseFilter(statusFlag)
			if ferr != nil {
				return f, err
			}
			f.Status = bf.Status()
		} else {
			f.Status = status
		}
	}
	from, to, err := parseRange(r, fromFlag, toFlag)
	if err != nil {
		return f, err
	}
	f.From, f.To = from, to
	return f, nil
}

func printAppointments(appts []appointment.Appointment) {
	if len(appts) == 0 {
		fmt.Println("No hay citas.")
		return
	}
	fmt.Printf("%-8s %-18s %-22s %-16s %s\n", "ID", "FECHA", "PACIENTE", "TIPO", "ESTATUS")
	for _, a := range appts {
		fmt.Printf("%-8s %-18s %-22s %-16s %s\n",
			a.ID,
			a.ScheduledAt.Format("2006-01-02 15:04"),
			a.PatientName,
			a.ConsultationType,
			a.Status)
	}
}

func printBoard(rows []board.Row) {
	if len(rows) == 0 {
		fmt.Println("No hay citas.")
		return
	}
	fmt.Printf("%-8s %-18s %-22s %-12s %s\n", "ID", "FECHA", "PACIENTE", "ESTATUS", "ACCIONES")
	for _, r := range rows {
		actions := make([]string, 0, len(r.Actions))
		for _, act := range r.Actions {
			actions = append(actions, string(act))
		}
		fmt.Printf("%-8s %-18s %-22s %-12s %s\n",
			r.Appointment.ID,
			r.Appointment.ScheduledAt.Format("2006-01-02 15:04"),
			r.Appointment.PatientName,
			r.Appointment.Status,
			strings.Join(actions, ","))
	}
}

func printDetail(a appointment.Appointment, editable bool) {
	fmt.Printf("ID:            %s\n", a.ID)
	fmt.Printf("Paciente:      %s\n", a.PatientName)
	fmt.Printf("Fecha:         %s\n", a.ScheduledAt.Format("2006-01-02 15:04"))
	fmt.Printf("Tipo:          %s\n", a.ConsultationType)
	fmt.Printf("Estatus:       %s\n", a.Status)
	if a.Notes != "" {
		fmt.Printf("Notas:         %s\n", a.Notes)
	}
	if a.Observations != "" {
		fmt.Printf("Observaciones: %s\n", a.Observations)
	}
	if a.Diagnosis != "" {
		fmt.Printf("Diagnóstico:   %s\n", a.Diagnosis)
	}
	if a.Medications != "" {
		fmt.Printf("Medicamentos:  %s\n", a.Medications)
	}
	if editable {
		fmt.Println("La nota clínica es editable.")
	} else {
		fmt.Println("La nota clínica es de solo lectura.")
	}
}
