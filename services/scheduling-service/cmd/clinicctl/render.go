package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/calendar"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/hours"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

var reasonText = map[availability.Reason]string{
	availability.ReasonClosed:       "the clinic is closed that day",
	availability.ReasonException:    "the doctor is unavailable all day",
	availability.ReasonNotAvailable: "the doctor is not available",
	availability.ReasonPast:         "the date is in the past",
}

func printSlots(w io.Writer, res availability.Result) {
	fmt.Fprintf(w, "%s %s\n", res.Date.Weekday(), res.Date)
	if res.Closed() {
		fmt.Fprintf(w, "  no slots: %s\n", reasonText[res.Reason])
		return
	}
	if len(res.Slots) == 0 {
		fmt.Fprintln(w, "  no open slots left")
		return
	}
	for _, s := range res.Display() {
		fmt.Fprintf(w, "  %s\n", s)
	}
}

// printCalendar draws the grid Sunday first. Today is bracketed and days with
// appointments carry their count.
func printCalendar(w io.Writer, g calendar.Grid) {
	fmt.Fprintln(w, g.Title())
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Su\tMo\tTu\tWe\tTh\tFr\tSa\t")
	for _, week := range g.Weeks() {
		for _, c := range week {
			cell := ""
			if c.InMonth {
				cell = fmt.Sprint(c.Day())
				if c.Today {
					cell = "[" + cell + "]"
				}
				if n := c.Count(); n > 0 {
					cell += fmt.Sprintf("(%d)", n)
				}
			}
			fmt.Fprint(tw, cell, "\t")
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
}

func printAppointments(w io.Writer, appts []model.Appointment) {
	if len(appts) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tDATE\tTIME\tSTATUS\tPATIENT")
	for _, a := range appts {
		patient := a.PatientName
		if patient == "" {
			patient = a.PatientID
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", a.ID, a.Date, a.Time.Display(), a.Status.Label(), patient)
	}
	_ = tw.Flush()
}

func printWeek(w io.Writer, week hours.Week) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tOPEN\tCLOSE")
	for _, r := range week.Rows() {
		if r.IsClosed {
			fmt.Fprintf(tw, "%s\tclosed\t\n", r.Day)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Day, r.Open, r.Close)
	}
	_ = tw.Flush()
}

func printExceptions(w io.Writer, excs []exceptions.Exception) {
	if len(excs) == 0 {
		fmt.Fprintln(w, "no exceptions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFROM\tTO\tBLOCKS\tREASON")
	for _, e := range excs {
		blocks := "all day"
		if !e.AllDay && e.Start != nil && e.End != nil {
			blocks = e.Start.Display() + " - " + e.End.Display()
		}
		reason := e.Reason
		if e.USHoliday {
			reason = strings.TrimSpace(reason + " (holiday)")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Last(), blocks, reason)
	}
	_ = tw.Flush()
}

func printHolidays(w io.Writer, hs []exceptions.Holiday) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, h := range hs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Date, h.Date.Weekday(), h.Name)
	}
	_ = tw.Flush()
}
