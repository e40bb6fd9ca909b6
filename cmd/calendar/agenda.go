package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/example/calendar-service/internal/calendar"
	"github.com/example/calendar-service/internal/client"
	"github.com/example/calendar-service/internal/logging"
	"github.com/example/calendar-service/internal/placement"
	"github.com/example/calendar-service/internal/scheduler"
	"github.com/example/calendar-service/internal/store"
)

func agendaCommand() *cli.Command {
	return &cli.Command{
		Name:  "agenda",
		Usage: "print a year, a month or a day fetched from the API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", Usage: "API base URL", EnvVars: []string{"CALENDAR_API_URL"}},
			&cli.StringFlag{Name: "token", Usage: "session token", EnvVars: []string{"CALENDAR_TOKEN"}, Required: true},
			&cli.StringFlag{Name: "month", Usage: "month to show as YYYY-MM, defaults to the current month"},
			&cli.StringFlag{Name: "day", Usage: "show a single day (YYYY-MM-DD) without a cap"},
			&cli.StringFlag{Name: "year", Usage: "show twelve month grids (YYYY) with per-day and per-month counts"},
			&cli.BoolFlag{Name: "watch", Usage: "re-place the view at the start of every minute"},
			&cli.StringFlag{Name: "log-level", Value: "warn"},
		},
		Action: runAgenda,
	}
}

func runAgenda(c *cli.Context) error {
	logger, err := logging.New(c.App.ErrWriter, c.String("log-level"), "text")
	if err != nil {
		return err
	}

	view, err := parseAgendaView(c.String("month"), c.String("day"), c.String("year"), time.Now())
	if err != nil {
		return err
	}

	api, err := client.NewAPI(c.String("server"), c.String("token"), nil)
	if err != nil {
		return err
	}
	events := store.NewEventStore()
	fetcher := client.NewRangeFetcher(api, events, time.Now, logger)
	if err := fetcher.FetchRange(c.Context, view.window()); err != nil {
		return err
	}

	render := func() {
		view.render(c.App.Writer, events, time.Now())
	}
	render()
	if !c.Bool("watch") {
		return nil
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := scheduler.NewRunner(logger, time.Local)
	if err := runner.Add(scheduler.EveryMinuteJob("agenda-refresh", func(context.Context) error {
		render()
		return nil
	})); err != nil {
		return err
	}
	runner.Start()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return runner.Stop(stopCtx)
}

type agendaView struct {
	month calendar.Date
	day   *calendar.Date
	// year is set for the twelve-month view.
	year int
}

func parseAgendaView(month, day, year string, now time.Time) (agendaView, error) {
	if year != "" {
		if month != "" || day != "" {
			return agendaView{}, fmt.Errorf("--year cannot be combined with --month or --day")
		}
		first, err := calendar.ParseMonth(year + "-01")
		if err != nil || len(year) != 4 {
			return agendaView{}, fmt.Errorf("invalid --year %q", year)
		}
		return agendaView{month: first, year: first.Year}, nil
	}
	if day != "" {
		d, err := calendar.ParseDate(day)
		if err != nil {
			return agendaView{}, fmt.Errorf("invalid --day %q", day)
		}
		return agendaView{month: d.StartOfMonth(), day: &d}, nil
	}
	if month != "" {
		m, err := calendar.ParseMonth(month)
		if err != nil {
			return agendaView{}, fmt.Errorf("invalid --month %q", month)
		}
		return agendaView{month: m}, nil
	}
	return agendaView{month: calendar.DateOf(now).StartOfMonth()}, nil
}

func (v agendaView) window() calendar.Range {
	if v.year != 0 {
		return calendar.YearWindow(v.year)
	}
	return calendar.FetchWindow(v.month)
}

func (v agendaView) render(w io.Writer, events *store.EventStore, now time.Time) {
	if v.year != 0 {
		writeYear(w, v.year, events, now)
		return
	}
	if v.day != nil {
		writeDay(w, placement.Place(*v.day, placementEvents(events, *v.day), now, placement.ListOptions), now)
		return
	}

	fmt.Fprintf(w, "%s %d\n", v.month.Month, v.month.Year)
	for _, day := range placement.PlaceMonth(v.month, func(d calendar.Date) []placement.Event {
		return placementEvents(events, d)
	}, now, placement.GridOptions) {
		if !day.InMonth || day.Total() == 0 {
			continue
		}
		writeDay(w, day, now)
	}
}

// writeYear prints a week-aligned mini grid per month. Days with events carry
// a "*", today carries a "<". Each grid is followed by the per-day counts and
// the month total, both over in-month days only.
func writeYear(w io.Writer, year int, events *store.EventStore, now time.Time) {
	today := calendar.DateOf(now)
	eventsFor := func(d calendar.Date) []placement.Event {
		return placementEvents(events, d)
	}

	fmt.Fprintf(w, "%d\n", year)
	for m := time.January; m <= time.December; m++ {
		first := calendar.NewDate(year, m, 1)
		days := placement.PlaceMonth(first, eventsFor, now, placement.GridOptions)

		fmt.Fprintf(w, "\n%s\n", m)
		fmt.Fprintln(w, "  Su  Mo  Tu  We  Th  Fr  Sa")
		var (
			total  int
			counts []string
		)
		for i, day := range days {
			cell := "    "
			if day.InMonth {
				mark := " "
				switch {
				case day.Date == today:
					mark = "<"
				case day.Total() > 0:
					mark = "*"
				}
				cell = fmt.Sprintf("%3d%s", day.Date.Day, mark)
				if n := day.Total(); n > 0 {
					total += n
					counts = append(counts, fmt.Sprintf("%d:%d", day.Date.Day, n))
				}
			}
			fmt.Fprint(w, cell)
			if i%7 == 6 {
				fmt.Fprintln(w)
			}
		}
		if len(counts) > 0 {
			fmt.Fprintf(w, "  days %s\n", strings.Join(counts, " "))
		}
		fmt.Fprintf(w, "  %d %s\n", total, plural(total, "event", "events"))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func placementEvents(events *store.EventStore, d calendar.Date) []placement.Event {
	stored := events.ForDate(d)
	out := make([]placement.Event, 0, len(stored))
	for _, e := range stored {
		out = append(out, e.PlacementEvent())
	}
	return out
}

func writeDay(w io.Writer, day placement.DayView, now time.Time) {
	marker := ""
	if day.Date == calendar.DateOf(now) {
		marker = " (today)"
	}
	fmt.Fprintf(w, "%s %s%s\n", day.Date.Weekday().String()[:3], day.Date, marker)

	for _, slot := range day.Banners {
		fmt.Fprintf(w, "  == %s (%s..%s)\n", slot.Event.Title, slot.Event.StartDate, slot.Event.EndDate)
	}
	if day.BannerOverflow > 0 {
		fmt.Fprintf(w, "  == +%d more\n", day.BannerOverflow)
	}
	for _, slot := range day.Items {
		fmt.Fprintf(w, "  %-14s %-11s %s\n", "["+string(slot.Class)+"]", timeLabel(slot.Event), slot.Event.Title)
	}
	if day.Overflow > 0 {
		fmt.Fprintf(w, "  +%d more\n", day.Overflow)
	}
}

func timeLabel(e placement.Event) string {
	if e.IsAllDay() {
		return "all day"
	}
	return e.StartTime + "-" + e.EndTime
}
