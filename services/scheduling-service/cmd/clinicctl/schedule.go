package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/holidays"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/hours"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

func (a *app) hoursCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hours",
		Short: "Show or change the clinic's weekly working hours",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the weekly hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clinicID, err := a.clinicID()
			if err != nil {
				return err
			}
			week, err := a.client.WorkingHours(cmd.Context(), clinicID)
			if err != nil {
				return err
			}
			printWeek(a.out, week)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <day> <open> <close>",
		Short: `Open a day with the given hours, e.g. set monday "8:30 AM" 17:00`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := hours.ParseWeekday(args[0])
			if err != nil {
				return err
			}
			open, err := clock.Parse(args[1])
			if err != nil {
				return err
			}
			closeAt, err := clock.Parse(args[2])
			if err != nil {
				return err
			}
			return a.updateWeek(cmd, func(w *hours.Week) error { return w.SetHours(day, open, closeAt) })
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <day>",
		Short: "Flip a day between open and closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := hours.ParseWeekday(args[0])
			if err != nil {
				return err
			}
			return a.updateWeek(cmd, func(w *hours.Week) error {
				w.Toggle(day)
				return nil
			})
		},
	}

	cmd.AddCommand(get, set, toggle)
	return cmd
}

func (a *app) updateWeek(cmd *cobra.Command, change func(*hours.Week) error) error {
	clinicID, err := a.clinicID()
	if err != nil {
		return err
	}
	week, err := a.client.WorkingHours(cmd.Context(), clinicID)
	if err != nil {
		return err
	}
	if err := change(&week); err != nil {
		return err
	}
	if err := week.Validate(); err != nil {
		return err
	}
	if err := a.client.SetWorkingHours(cmd.Context(), clinicID, week); err != nil {
		return err
	}
	printWeek(a.out, week)
	return nil
}

func (a *app) exceptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "exceptions",
		Aliases: []string{"exc"},
		Short:   "Manage a doctor's availability exceptions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List exceptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doctorID, err := a.doctorID()
			if err != nil {
				return err
			}
			excs, err := a.client.Exceptions(cmd.Context(), doctorID)
			if err != nil {
				return err
			}
			printExceptions(a.out, excs)
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Block a day, a date range or part of a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doctorID, err := a.doctorID()
			if err != nil {
				return err
			}
			e, err := exceptionFromFlags(cmd, doctorID)
			if err != nil {
				return err
			}
			created, err := a.client.CreateException(cmd.Context(), e)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created exception %s\n", created.ID)
			return nil
		},
	}
	add.Flags().String("date", "", "first blocked date, YYYY-MM-DD")
	add.Flags().String("end-date", "", "last blocked date, YYYY-MM-DD (default same day)")
	add.Flags().Bool("all-day", false, "block the whole day")
	add.Flags().String("start", "", "start of a partial block")
	add.Flags().String("end", "", "end of a partial block")
	add.Flags().String("reason", "", "reason shown on the dashboard")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an exception",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, err := a.doctorID()
			if err != nil {
				return err
			}
			if err := a.client.DeleteException(cmd.Context(), doctorID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted exception %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func exceptionFromFlags(cmd *cobra.Command, doctorID string) (exceptions.Exception, error) {
	f := cmd.Flags()
	rawDate, _ := f.GetString("date")
	date, err := clock.ParseDate(rawDate)
	if err != nil {
		return exceptions.Exception{}, model.Validationf("--date: %v", err)
	}
	e := exceptions.Exception{DoctorID: doctorID, Date: date}
	e.AllDay, _ = f.GetBool("all-day")
	e.Reason, _ = f.GetString("reason")
	if raw, _ := f.GetString("end-date"); raw != "" {
		end, err := clock.ParseDate(raw)
		if err != nil {
			return exceptions.Exception{}, model.Validationf("--end-date: %v", err)
		}
		e.EndDate = &end
	}
	if !e.AllDay {
		for name, dst := range map[string]**clock.TimeOfDay{"start": &e.Start, "end": &e.End} {
			raw, _ := f.GetString(name)
			if raw == "" {
				continue
			}
			t, err := clock.Parse(raw)
			if err != nil {
				return exceptions.Exception{}, model.Validationf("--%s: %v", name, err)
			}
			*dst = &t
		}
	}
	return e, e.Validate()
}

func (a *app) holidaysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "US federal holidays and doctor calendar sync",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print the federal holidays of a year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, _ := cmd.Flags().GetInt("year")
			if year == 0 {
				year = a.zone.Today().Year
			}
			printHolidays(a.out, exceptions.USFederalHolidays(year))
			return nil
		},
	}
	list.Flags().Int("year", 0, "year (default current)")

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Block a doctor's calendar on every federal holiday of a year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doctorID, err := a.doctorID()
			if err != nil {
				return err
			}
			year, _ := cmd.Flags().GetInt("year")
			if year == 0 {
				year = a.zone.Today().Year
			}
			if local, _ := cmd.Flags().GetBool("local"); local {
				job := holidays.NewJob(a.client, nil, a.zone, a.logger, holidays.Config{})
				created, err := job.SyncDoctor(cmd.Context(), doctorID, year)
				fmt.Fprintf(a.out, "Created %d holiday exceptions for %d\n", len(created), year)
				return err
			}
			res, err := a.client.SyncHolidays(cmd.Context(), doctorID, year)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created %d, skipped %d holiday exceptions for %d\n", res.Created, res.Skipped, year)
			return nil
		},
	}
	sync.Flags().Int("year", 0, "year (default current)")
	sync.Flags().Bool("local", false, "plan the sync here and create each exception, instead of the API's sync endpoint")

	cmd.AddCommand(list, sync)
	return cmd
}
