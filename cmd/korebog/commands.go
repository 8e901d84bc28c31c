package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/korebog/app"
	"github.com/jrsteele09/korebog/internal/config"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/internal/utils"
	"github.com/jrsteele09/korebog/ledger"
	"github.com/jrsteele09/korebog/session"
	"github.com/jrsteele09/korebog/settings"
	"github.com/jrsteele09/korebog/syncer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type environment struct {
	cfg config.Config
	app *app.App
	reg *prometheus.Registry
	out io.Writer
}

func (e *environment) registry() *prometheus.Registry {
	if e.reg == nil {
		e.reg = prometheus.NewRegistry()
		e.reg.MustRegister(collectors.NewGoCollector())
	}
	return e.reg
}

func (e *environment) stdout() io.Writer {
	if e.out == nil {
		return os.Stdout
	}
	return e.out
}

type command struct {
	summary string
	banner  bool
	run     func(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]command{
	"login":     {summary: "sign in with Google", banner: true, run: loginCmd},
	"logout":    {summary: "sign out and revoke the credential", run: logoutCmd},
	"status":    {summary: "show session, sync state and sixty-day warnings", banner: true, run: statusCmd},
	"add":       {summary: "record a trip", run: addCmd},
	"edit":      {summary: "change a trip", run: editCmd},
	"delete":    {summary: "delete a trip", run: deleteCmd},
	"list":      {summary: "list trips", run: listCmd},
	"addresses": {summary: "list, describe or forget frequent addresses", run: addressesCmd},
	"distance":  {summary: "calculate a driving distance", run: distanceCmd},
	"sync":      {summary: "push unsynchronized trips to the spreadsheet", run: syncCmd},
	"watch":     {summary: "synchronize periodically and serve /metrics", banner: true, run: watchCmd},
	"export":    {summary: "write a CSV or PDF report", run: exportCmd},
	"settings":  {summary: "show or change settings", run: settingsCmd},
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "Usage: korebog <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", name, commands[name].summary)
	}
}

// describe turns core errors into messages for the user.
func describe(err error) string {
	var verr *kerrors.ValidationError
	switch {
	case kerrors.As(err, &verr):
		fields := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, fmt.Sprintf("%s must satisfy %s", f.Field, f.Rule))
		}
		return "Invalid input: " + strings.Join(fields, "; ")
	case kerrors.Is(err, kerrors.ErrNotAuthenticated):
		return "Not signed in, run 'korebog login' first"
	case kerrors.Is(err, kerrors.ErrNotFound):
		return "Not found: " + err.Error()
	case kerrors.Is(err, kerrors.ErrNetworkUnavailable):
		return "Network unavailable: " + err.Error()
	default:
		return err.Error()
	}
}

func loginCmd(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	hint := fs.String("hint", "", "email address to preselect")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := env.app.Login(ctx, *hint)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.stdout(), "Signed in as %s <%s>\n", st.Profile.Name, st.Profile.Email)
	return nil
}

func logoutCmd(ctx context.Context, env *environment, _ []string) error {
	if _, err := env.app.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(env.stdout(), "Signed out")
	return nil
}

func statusCmd(ctx context.Context, env *environment, _ []string) error {
	out := env.stdout()

	st, err := env.app.State(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Session:   %s", coloured(stateColors[st.State.String()], st.State.String()))
	if st.Profile.Email != "" {
		fmt.Fprintf(out, " (%s, until %s)", st.Profile.Email, st.ExpiresAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(out)

	ss, err := env.app.SyncStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Pending:   %d\n", ss.Pending)
	fmt.Fprintf(out, "Attempted: %s\n", formatTime(ss.LastAttempted))
	fmt.Fprintf(out, "Succeeded: %s\n", formatTime(ss.LastSucceeded))

	if st.State != session.Authenticated {
		return nil
	}
	warnings, err := env.app.SixtyDayWarnings(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, w := range warnings {
		colour := Yellow
		if w.Exceeded {
			colour = Red
		}
		fmt.Fprintln(out, coloured(colour, fmt.Sprintf("60-day rule: %s visited on %d days (%s to %s)", w.Destination, w.Days, w.FirstDate, w.LastDate)))
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

func addCmd(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	date := fs.String("date", time.Now().Format(ledger.DateLayout), "trip date (YYYY-MM-DD)")
	from := fs.String("from", "", "origin address (default from settings)")
	to := fs.String("to", "", "destination address")
	purpose := fs.String("purpose", "", "purpose of the trip")
	km := fs.Float64("km", 0, "one-way distance in km (0 calculates it)")
	rate := fs.Float64("rate", 0, "rate per km (default from settings)")
	roundTrip := fs.Bool("roundtrip", false, "the trip was driven both ways")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := ledger.TripInput{
		Date:        *date,
		Origin:      *from,
		Destination: *to,
		Purpose:     *purpose,
		Distance:    *km,
		Rate:        *rate,
		RoundTrip:   *roundTrip,
	}
	if in.Origin == "" {
		in.Origin = env.app.Settings().DefaultOrigin
	}
	if in.Distance == 0 && in.Origin != "" && in.Destination != "" {
		res, err := env.app.CalculateDistance(ctx, in.Origin, in.Destination)
		if err != nil {
			log.Warn().Err(err).Msg("distance not calculated, saving as draft")
		} else {
			in.Distance = res.Kilometers
			if res.Estimated {
				fmt.Fprintln(env.stdout(), coloured(Yellow, fmt.Sprintf("Estimated %.1f km from earlier trips", res.Kilometers)))
			}
		}
	}

	trip, err := env.app.CreateTrip(ctx, in)
	if err != nil {
		return err
	}
	printTrips(env.stdout(), []ledger.TripRecord{trip})
	return nil
}

func editCmd(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	id := fs.String("id", "", "trip id")
	date := fs.String("date", "", "trip date (YYYY-MM-DD)")
	from := fs.String("from", "", "origin address")
	to := fs.String("to", "", "destination address")
	purpose := fs.String("purpose", "", "purpose of the trip")
	km := fs.Float64("km", 0, "one-way distance in km")
	rate := fs.Float64("rate", 0, "rate per km")
	roundTrip := fs.Bool("roundtrip", false, "the trip was driven both ways")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var patch ledger.TripPatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "date":
			patch.Date = date
		case "from":
			patch.Origin = from
		case "to":
			patch.Destination = to
		case "purpose":
			patch.Purpose = purpose
		case "km":
			patch.Distance = km
		case "rate":
			patch.Rate = rate
		case "roundtrip":
			patch.RoundTrip = roundTrip
		}
	})

	trip, err := env.app.UpdateTrip(ctx, *id, patch)
	if err != nil {
		return err
	}
	printTrips(env.stdout(), []ledger.TripRecord{trip})
	return nil
}

func deleteCmd(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	id := fs.String("id", "", "trip id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.app.DeleteTrip(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(env.stdout(), "Deleted %s\n", *id)
	return nil
}

func listFlags(fs *flag.FlagSet) *ledger.ListOptions {
	opts := &ledger.ListOptions{}
	fs.StringVar(&opts.Date, "date", "", "only this date")
	fs.StringVar(&opts.From, "from", "", "first date of the period")
	fs.StringVar(&opts.To, "to", "", "last date of the period")
	return opts
}

func listCmd(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	opts := listFlags(fs)
	fs.BoolVar(&opts.SortByDateDesc, "desc", true, "newest first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	trips, err := env.app.Trips(ctx, *opts)
	if err != nil {
		return err
	}
	printTrips(env.stdout(), trips)
	return nil
}

func printTrips(out io.Writer, trips []ledger.TripRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATO\tFRA\tTIL\tKM\tBELØB\tSYNK")
	for _, t := range trips {
		km := fmt.Sprintf("%.1f", t.TotalDistance())
		if t.Draft() {
			km = coloured(Gray, "kladde")
		}
		synced := coloured(Yellow, "nej")
		if t.Synchronized {
			synced = coloured(Green, "ja")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n", t.ID, t.Date, t.Origin, t.Destination, km, t.Amount, synced)
	}
	_ = w.Flush()
}

func addressesCmd(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("addresses", flag.ContinueOnError)
	describeID := fs.String("describe", "", "address id to describe")
	text := fs.String("text", "", "description for -describe")
	deleteID := fs.String("delete", "", "address id to forget")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *describeID != "":
		if _, err := env.app.DescribeAddress(ctx, *describeID, *text); err != nil {
			return err
		}
	case *deleteID != "":
		if err := env.app.DeleteAddress(ctx, *deleteID); err != nil {
			return err
		}
	}

	addrs, err := env.app.FrequentAddresses(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(env.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADRESSE\tBESKRIVELSE\tSIDST")
	for _, a := range addrs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Address, a.Description, a.LastVisited)
	}
	return w.Flush()
}

func distanceCmd(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("distance", flag.ContinueOnError)
	from := fs.String("from", "", "origin address (default from settings)")
	to := fs.String("to", "", "destination address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" {
		*from = env.app.Settings().DefaultOrigin
	}

	res, err := env.app.CalculateDistance(ctx, *from, *to)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%.1f km", res.Kilometers)
	if res.Duration > 0 {
		line += fmt.Sprintf(", %s", res.Duration.Round(time.Minute))
	}
	if res.Estimated {
		line = coloured(Yellow, line+" (estimate from earlier trips)")
	}
	fmt.Fprintln(env.stdout(), line)
	return nil
}

func syncCmd(ctx context.Context, env *environment, _ []string) error {
	res, err := env.app.SyncNow(ctx)
	printSyncResult(env.stdout(), res)
	return err
}

func printSyncResult(out io.Writer, res syncer.SyncResult) {
	status := coloured(GreenInverse, " OK ")
	if !res.Complete() {
		status = coloured(RedInverse, " INCOMPLETE ")
	}
	fmt.Fprintf(out, "%s attempted %d, succeeded %d, skipped %d\n", status, res.Attempted, res.Succeeded, res.Skipped)
	for _, f := range res.Failures {
		fmt.Fprintf(out, "  %s %s: %s\n", coloured(Red, string(f.Kind)), f.ID, f.Reason)
	}
}

func watchCmd(ctx context.Context, env *environment, _ []string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(env.registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: env.cfg.GetMetricsAddr(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("metrics listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	err := env.app.Watch(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func exportCmd(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	opts := listFlags(fs)
	format := fs.String("format", "csv", "csv or pdf")
	title := fs.String("title", "Kørebog", "report title (pdf)")
	outPath := fs.String("out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	out := env.stdout()
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return env.app.Export(ctx, out, app.Format(strings.ToLower(*format)), *opts, *title)
}

func settingsCmd(_ context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	rate := fs.Float64("rate", 0, "default rate per km")
	origin := fs.String("origin", "", "default origin address")
	sheet := fs.String("spreadsheet", "", "spreadsheet id")
	warn := fs.Bool("warn60", true, "warn about the sixty-day rule")
	syncSave := fs.Bool("syncsave", true, "synchronize after every save")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var patch settings.Patch
	changed := false
	fs.Visit(func(f *flag.Flag) {
		changed = true
		switch f.Name {
		case "rate":
			patch.DefaultRate = rate
		case "origin":
			patch.DefaultOrigin = origin
		case "spreadsheet":
			patch.SpreadsheetID = sheet
		case "warn60":
			patch.WarnSixtyDayRule = warn
		case "syncsave":
			patch.SyncAfterSave = syncSave
		}
	})

	s := env.app.Settings()
	if changed {
		var err error
		if s, err = env.app.UpdateSettings(patch); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(env.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "rate\t%.2f\n", s.DefaultRate)
	fmt.Fprintf(w, "origin\t%s\n", s.DefaultOrigin)
	fmt.Fprintf(w, "spreadsheet\t%s\n", utils.ValueOr(nonEmpty(s.SpreadsheetID), env.cfg.GetSpreadsheetID()))
	fmt.Fprintf(w, "warn60\t%t\n", s.WarnSixtyDayRule)
	fmt.Fprintf(w, "syncsave\t%t\n", s.SyncAfterSave)
	return w.Flush()
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
