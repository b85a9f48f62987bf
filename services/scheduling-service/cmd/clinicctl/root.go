package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clinicdash/clinicsched/libs/auth"
	"github.com/clinicdash/clinicsched/libs/runtime"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clinicapi"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// app is the state shared by every subcommand once flags and config are read.
type app struct {
	v      *viper.Viper
	out    io.Writer
	now    func() time.Time
	zone   *clock.Zone
	client *clinicapi.Client
	logger *slog.Logger
}

func newRootCmd(out io.Writer, now func() time.Time) *cobra.Command {
	a := &app{v: viper.New(), out: out, now: now}

	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Manage clinic schedules and appointments",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default $HOME/.clinicctl.yaml)")
	pf.String("api-url", "http://localhost:8080/api", "clinic API base url")
	pf.String("token", "", "bearer token for the clinic API")
	pf.String("clinic", "", "clinic id")
	pf.String("doctor", "", "doctor id")
	pf.String("timezone", clock.DefaultTimezone, "clinic timezone")
	pf.Duration("timeout", 10*time.Second, "clinic API call timeout")
	pf.Bool("offline", false, "derive slots from working hours instead of the availability endpoint")
	pf.String("log-level", "warn", "log level for diagnostics on stderr")
	_ = a.v.BindPFlags(pf)
	a.v.SetEnvPrefix("CLINICCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.slotsCmd(),
		a.calendarCmd(),
		a.appointmentsCmd(),
		a.bookCmd(),
		a.rescheduleCmd(),
		a.cancelCmd(),
		a.hoursCmd(),
		a.exceptionsCmd(),
		a.holidaysCmd(),
	)
	return root
}

func (a *app) init() error {
	if err := a.readConfig(); err != nil {
		return err
	}
	loc, err := clock.LoadZone(a.v.GetString("timezone"))
	if err != nil {
		return err
	}
	a.zone = clock.NewZoneWithNow(loc.Location(), a.now)
	a.logger = runtime.NewLoggerTo(os.Stderr, "clinicctl", a.v.GetString("log-level"))
	a.client = clinicapi.New(a.v.GetString("api-url"), clinicapi.Options{
		Timeout: a.v.GetDuration("timeout"),
		Tokens:  auth.StaticToken(a.v.GetString("token")),
		Zone:    a.zone,
		Logger:  a.logger,
	})
	return nil
}

func (a *app) readConfig() error {
	if file := a.v.GetString("config"); file != "" {
		a.v.SetConfigFile(file)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	a.v.SetConfigName(".clinicctl")
	a.v.SetConfigType("yaml")
	a.v.AddConfigPath(home)
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func (a *app) clinicID() (string, error) {
	if id := a.v.GetString("clinic"); id != "" {
		return id, nil
	}
	return "", model.Validationf("--clinic is required")
}

func (a *app) doctorID() (string, error) {
	if id := a.v.GetString("doctor"); id != "" {
		return id, nil
	}
	return "", model.Validationf("--doctor is required")
}

func (a *app) computer() *availability.Computer {
	var src availability.Source = a.client
	if a.v.GetBool("offline") {
		src = availability.LocalSource{Dir: a.client}
	}
	return availability.NewComputer(a.client, src, a.zone, availability.WithLogger(a.logger))
}

func (a *app) workflow(agenda *booking.Agenda) *booking.Workflow {
	svc := booking.NewService(a.client, booking.NewLocks(), a.zone, booking.WithServiceLogger(a.logger))
	return booking.NewWorkflow(a.computer(), svc, agenda, a.zone, booking.WithWorkflowLogger(a.logger))
}

// dateFlag parses a YYYY-MM-DD flag value, defaulting to today.
func (a *app) dateFlag(cmd *cobra.Command, name string) (clock.Date, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return a.zone.Today(), nil
	}
	d, err := clock.ParseDate(raw)
	if err != nil {
		return clock.Date{}, model.Validationf("--%s: %v", name, err)
	}
	return d, nil
}
