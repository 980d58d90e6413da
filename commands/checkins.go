package commands

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bcycle-automations/bcycle-automations/airtable"
	"github.com/bcycle-automations/bcycle-automations/marianatek"
)

var CheckinsCmd = Checkins{
	customersTable: "Customers",
	since:          90,
	dryrun:         false,
}

// Checkins pulls check-in events from Mariana Tek, aggregates them per
// customer and upserts the counts into the customers table.
type Checkins struct {
	command
	customersTable string
	since          uint
	dryrun         bool
}

func (cmd *Checkins) Name() string {
	return "checkins"
}

func (cmd *Checkins) Description() string {
	return "Updates customer check-in counts from Mariana Tek"
}

func (cmd *Checkins) Usage() string {
	return "[options]"
}

func (cmd *Checkins) Help() {
	fmt.Println()
	fmt.Printf("  Usage: %s [--debug] checkins [options]\n", APP)
	fmt.Println()
	fmt.Println("  Fetches check-in events from Mariana Tek and upserts per-customer counts and last")
	fmt.Println("  check-in dates into the Airtable customers table, keyed by lowercased email")
	fmt.Println()

	helpOptions(cmd.FlagSet())

	fmt.Println()
	fmt.Println("  Environment:")
	fmt.Println()
	fmt.Println("    AIRTABLE_API_KEY      Airtable API key")
	fmt.Println("    AIRTABLE_BASE_ID      Airtable base ID")
	fmt.Println("    MARIANATEK_API_URL    Mariana Tek API base URL")
	fmt.Println("    MARIANATEK_API_TOKEN  Mariana Tek API token")
	fmt.Println()
}

func (cmd *Checkins) FlagSet() *flag.FlagSet {
	flagset := flag.NewFlagSet("checkins", flag.ExitOnError)

	flagset.StringVar(&cmd.customersTable, "customers-table", cmd.customersTable, fmt.Sprintf("Customers table name. Defaults to '%s'", cmd.customersTable))
	flagset.UintVar(&cmd.since, "since", cmd.since, fmt.Sprintf("Days of check-in history to aggregate. Defaults to %v", cmd.since))
	flagset.BoolVar(&cmd.dryrun, "dryrun", cmd.dryrun, "Aggregates check-ins without updating any records")

	return flagset
}

func (cmd *Checkins) Execute(args ...any) error {
	options := args[0].(*Options)

	cmd.debug = options.Debug

	env, err := requireEnv("AIRTABLE_API_KEY", "AIRTABLE_BASE_ID", "MARIANATEK_API_URL", "MARIANATEK_API_TOKEN")
	if err != nil {
		return err
	}

	return cmd.run(context.Background(), newAirtable(env), newMarianaTek(env), time.Now())
}

func (cmd *Checkins) run(ctx context.Context, at *airtable.Client, mt *marianatek.Client, now time.Time) error {
	min := now.UTC().AddDate(0, 0, -int(cmd.since))

	checkins, err := mt.Checkins(ctx, min)
	if err != nil {
		return fmt.Errorf("cannot retrieve check-ins (%v)", err)
	}

	infof("checkins: fetched %d check-ins since %s", len(checkins), min.Format("2006-01-02"))

	fields, skipped := aggregateCheckins(checkins)

	if cmd.dryrun {
		infof("dryrun: would upsert %d customers", len(fields))
		return nil
	}

	updated, err := at.Upsert(ctx, cmd.customersTable, fields, []string{"Email"})
	if err != nil {
		return fmt.Errorf("cannot upsert customer check-in counts (%v)", err)
	}

	infof("checkins: updated %d customers, skipped %d check-ins without email", len(updated), skipped)

	return nil
}

// aggregateCheckins folds the event list into one upsert row per customer,
// in deterministic (email) order. Check-ins with no email cannot be keyed
// and are skipped.
func aggregateCheckins(checkins []marianatek.Checkin) ([]map[string]any, int) {
	type total struct {
		count int
		last  time.Time
	}

	totals := map[string]total{}
	skipped := 0

	for _, checkin := range checkins {
		contact := strings.ToLower(strings.TrimSpace(checkin.Email))
		if contact == "" {
			skipped++
			continue
		}

		t := totals[contact]
		t.count++

		if checkin.CheckedInAt.After(t.last) {
			t.last = checkin.CheckedInAt
		}

		totals[contact] = t
	}

	emails := make([]string, 0, len(totals))
	for email := range totals {
		emails = append(emails, email)
	}

	sort.Strings(emails)

	fields := make([]map[string]any, len(emails))
	for i, email := range emails {
		fields[i] = map[string]any{
			"Email":         email,
			"Check-Ins":     totals[email].count,
			"Last Check-In": totals[email].last.UTC().Format("2006-01-02"),
		}
	}

	return fields, skipped
}
