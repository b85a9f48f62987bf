package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/calendar"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

func (a *app) slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List bookable slots for a doctor on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doctorID, err := a.doctorID()
			if err != nil {
				return err
			}
			date, err := a.dateFlag(cmd, "date")
			if err != nil {
				return err
			}
			res, err := a.computer().Slots(cmd.Context(), availability.Query{ClinicID: a.v.GetString("clinic"), DoctorID: doctorID, Date: date})
			if err != nil {
				return err
			}
			printSlots(a.out, res)
			return nil
		},
	}
	cmd.Flags().String("date", "", "date as YYYY-MM-DD (default today)")
	return cmd
}

func (a *app) calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show a month grid with appointment counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doctorID, err := a.doctorID()
			if err != nil {
				return err
			}
			today := a.zone.Today()
			year, _ := cmd.Flags().GetInt("year")
			month, _ := cmd.Flags().GetInt("month")
			if year == 0 {
				year = today.Year
			}
			if month == 0 {
				month = int(today.Month)
			}
			if month < 1 || month > 12 {
				return model.Validationf("--month %d out of range", month)
			}
			from := clock.NewDate(year, time.Month(month), 1)
			to := clock.NewDate(year, time.Month(month), clock.DaysIn(year, time.Month(month)))
			appts, err := a.client.Appointments(cmd.Context(), model.Filter{ClinicID: a.v.GetString("clinic"), DoctorID: doctorID, From: &from, To: &to})
			if err != nil {
				return err
			}
			grid, err := calendar.Build(year, time.Month(month), appts, today)
			if err != nil {
				return err
			}
			printCalendar(a.out, grid)
			return nil
		},
	}
	cmd.Flags().Int("year", 0, "year (default current)")
	cmd.Flags().Int("month", 0, "month 1-12 (default current)")
	return cmd
}

func (a *app) appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "appointments",
		Aliases: []string{"appts"},
		Short:   "List upcoming and past appointments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			patient, _ := cmd.Flags().GetString("patient")
			f := model.Filter{ClinicID: a.v.GetString("clinic"), DoctorID: a.v.GetString("doctor"), PatientID: patient}
			if f.ClinicID == "" && f.DoctorID == "" && f.PatientID == "" {
				return model.Validationf("one of --clinic, --doctor or --patient is required")
			}
			appts, err := a.client.Appointments(cmd.Context(), f)
			if err != nil {
				return err
			}
			upcoming, past := booking.Partition(appts, a.zone.Today())
			fmt.Fprintln(a.out, "Upcoming")
			printAppointments(a.out, upcoming)
			fmt.Fprintln(a.out, "\nPast")
			printAppointments(a.out, past)
			return nil
		},
	}
	cmd.Flags().String("patient", "", "patient id")
	return cmd
}

func (a *app) bookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a slot for a patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clinicID, err := a.clinicID()
			if err != nil {
				return err
			}
			doctorID, err := a.doctorID()
			if err != nil {
				return err
			}
			patient, _ := cmd.Flags().GetString("patient")
			phone, _ := cmd.Flags().GetString("phone")

			wf := a.workflow(nil)
			if err := wf.OpenBook(booking.Target{ClinicID: clinicID, DoctorID: doctorID, PatientID: patient, Phone: phone}); err != nil {
				return err
			}
			appt, err := a.pickAndSubmit(cmd, wf)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Booked %s on %s at %s\n", appt.ID, appt.Date, appt.Time.Display())
			return nil
		},
	}
	cmd.Flags().String("patient", "", "patient id")
	cmd.Flags().String("phone", "", "patient phone")
	cmd.Flags().String("date", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().String("time", "", `slot time, "9:00 AM" or "09:00"`)
	return cmd
}

func (a *app) rescheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reschedule <appointment-id>",
		Short: "Move an appointment to another slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agenda, err := a.loadAgenda(cmd)
			if err != nil {
				return err
			}
			wf := a.workflow(agenda)
			if err := wf.OpenReschedule(args[0]); err != nil {
				return err
			}
			appt, err := a.pickAndSubmit(cmd, wf)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Rescheduled %s to %s at %s\n", appt.ID, appt.Date, appt.Time.Display())
			return nil
		},
	}
	cmd.Flags().String("date", "", "new date as YYYY-MM-DD (default today)")
	cmd.Flags().String("time", "", `new slot time, "9:00 AM" or "09:00"`)
	return cmd
}

func (a *app) cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <appointment-id>",
		Short: "Cancel an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agenda, err := a.loadAgenda(cmd)
			if err != nil {
				return err
			}
			if err := a.workflow(agenda).CancelAppointment(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Cancelled %s\n", args[0])
			return nil
		},
	}
}

// loadAgenda fetches the doctor's appointments so the workflow can resolve
// the one being changed. Listings that omit the clinic get --clinic.
func (a *app) loadAgenda(cmd *cobra.Command) (*booking.Agenda, error) {
	clinicID, err := a.clinicID()
	if err != nil {
		return nil, err
	}
	doctorID, err := a.doctorID()
	if err != nil {
		return nil, err
	}
	appts, err := a.client.Appointments(cmd.Context(), model.Filter{ClinicID: clinicID, DoctorID: doctorID})
	if err != nil {
		return nil, err
	}
	for i := range appts {
		if appts[i].ClinicID == "" {
			appts[i].ClinicID = clinicID
		}
	}
	return booking.NewAgenda(appts), nil
}

// pickAndSubmit runs the date, slot and submit steps of an open workflow.
// Without --time it lists the open slots and stops.
func (a *app) pickAndSubmit(cmd *cobra.Command, wf *booking.Workflow) (model.Appointment, error) {
	date, err := a.dateFlag(cmd, "date")
	if err != nil {
		return model.Appointment{}, err
	}
	res, err := wf.PickDate(cmd.Context(), date)
	if err != nil {
		return model.Appointment{}, err
	}
	raw, _ := cmd.Flags().GetString("time")
	if strings.TrimSpace(raw) == "" {
		printSlots(a.out, res)
		return model.Appointment{}, model.Validationf("choose a slot with --time")
	}
	slot, err := clock.Parse(raw)
	if err != nil {
		return model.Appointment{}, model.Validationf("--time: %v", err)
	}
	if err := wf.SelectSlot(slot); err != nil {
		printSlots(a.out, res)
		return model.Appointment{}, err
	}

	appt, err := wf.Submit(cmd.Context())
	if errors.Is(err, booking.ErrSlotTaken) || errors.Is(err, booking.ErrSlotInPast) {
		fmt.Fprintln(a.out, "That slot is no longer available. Open slots now:")
		printSlots(a.out, wf.Snapshot().Result)
	}
	return appt, err
}
