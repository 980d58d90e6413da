package commands

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/bcycle-automations/bcycle-automations/airtable"
	"github.com/bcycle-automations/bcycle-automations/marianatek"
	"github.com/bcycle-automations/bcycle-automations/wallclock"
)

var ResolveClassCmd = ResolveClass{
	scheduleTable: "Schedule",
	timePolicy:    string(wallclock.PolicyLocal),
	window:        0,
}

// ResolveClass resolves the Mariana Tek class session id for one schedule
// record holding a room name and a wall-clock class time, and writes the id
// back to the record.
type ResolveClass struct {
	command
	scheduleTable string
	timePolicy    string
	window        uint
}

func (cmd *ResolveClass) Name() string {
	return "resolve-class"
}

func (cmd *ResolveClass) Description() string {
	return "Resolves the Mariana Tek class session id for a schedule record"
}

func (cmd *ResolveClass) Usage() string {
	return "[options] <record-id>"
}

func (cmd *ResolveClass) Help() {
	fmt.Println()
	fmt.Printf("  Usage: %s [--debug] resolve-class [options] <record-id>\n", APP)
	fmt.Println()
	fmt.Println("  Looks up the schedule record's room and class time, resolves the matching Mariana Tek")
	fmt.Println("  class session and writes the session id back to the record")
	fmt.Println()

	helpOptions(cmd.FlagSet())

	fmt.Println()
	fmt.Println("  Environment:")
	fmt.Println()
	fmt.Println("    AIRTABLE_API_KEY      Airtable API key")
	fmt.Println("    AIRTABLE_BASE_ID      Airtable base ID")
	fmt.Println("    MARIANATEK_API_URL    Mariana Tek API base URL")
	fmt.Println("    MARIANATEK_API_TOKEN  Mariana Tek API token")
	fmt.Println("    STUDIO_TIMEZONE       IANA timezone of the studio e.g. 'America/New_York'")
	fmt.Println()
	fmt.Println("  Examples:")
	fmt.Println()
	fmt.Printf("    %s resolve-class --window 15 recXXXXXXXXXXXXXX\n", APP)
	fmt.Println()
}

func (cmd *ResolveClass) FlagSet() *flag.FlagSet {
	flagset := flag.NewFlagSet("resolve-class", flag.ExitOnError)

	flagset.StringVar(&cmd.scheduleTable, "schedule-table", cmd.scheduleTable, fmt.Sprintf("Schedule table name. Defaults to '%s'", cmd.scheduleTable))
	flagset.StringVar(&cmd.timePolicy, "time-policy", cmd.timePolicy, "Interpretation of the record's class time: 'local' (wall time in STUDIO_TIMEZONE) or 'utc' (trust verbatim)")
	flagset.UintVar(&cmd.window, "window", cmd.window, "Nearest-match window in minutes when the exact-time lookup finds nothing. 0 disables the fallback")

	return flagset
}

func (cmd *ResolveClass) Execute(args ...any) error {
	options := args[0].(*Options)
	positional := args[1].([]string)

	cmd.debug = options.Debug

	if len(positional) != 1 {
		return fmt.Errorf("resolve-class takes exactly one record id argument")
	}

	env, err := requireEnv("AIRTABLE_API_KEY", "AIRTABLE_BASE_ID", "MARIANATEK_API_URL", "MARIANATEK_API_TOKEN", "STUDIO_TIMEZONE")
	if err != nil {
		return err
	}

	return cmd.run(context.Background(), newAirtable(env), newMarianaTek(env), env["STUDIO_TIMEZONE"], positional[0])
}

func (cmd *ResolveClass) run(ctx context.Context, at *airtable.Client, mt *marianatek.Client, zone string, recordID string) error {
	policy, err := wallclock.ParsePolicy(cmd.timePolicy)
	if err != nil {
		return err
	}

	record, err := at.Get(ctx, cmd.scheduleTable, recordID)
	if err != nil {
		return fmt.Errorf("cannot retrieve schedule record %s (%v)", recordID, err)
	}

	room := record.String("Room")
	classTime := record.String("Class Time")

	if room == "" || classTime == "" {
		return cmd.fail(ctx, at, recordID, fmt.Errorf("schedule record %s is missing Room or Class Time", recordID))
	}

	locations, err := mt.Locations(ctx)
	if err != nil {
		return fmt.Errorf("cannot retrieve locations (%v)", err)
	}

	location := matchLocation(locations, room)
	if location == nil {
		return cmd.fail(ctx, at, recordID, fmt.Errorf("no location matches room '%s'", room))
	}

	instant, err := wallclock.Resolve(classTime, zone, policy)
	if err != nil {
		return cmd.fail(ctx, at, recordID, err)
	}

	if cmd.debug {
		debugf("room '%s' resolved to location %s, class time %s resolved to %s", room, location.ID, classTime, instant.Format(time.RFC3339))
	}

	session, err := cmd.lookup(ctx, mt, location.ID, instant)
	if err != nil {
		return fmt.Errorf("class session lookup failed (%v)", err)
	}

	if session == nil {
		return cmd.fail(ctx, at, recordID, fmt.Errorf("no class session at location %s for %s", location.ID, instant.Format(time.RFC3339)))
	}

	update := []airtable.Record{
		{
			ID: recordID,
			Fields: map[string]any{
				"Class ID":         session.ID,
				"Class Time (UTC)": instant.Format(time.RFC3339),
				"Sync Status":      "resolved",
			},
		},
	}

	if _, err := at.Update(ctx, cmd.scheduleTable, update); err != nil {
		return fmt.Errorf("cannot update schedule record %s (%v)", recordID, err)
	}

	infof("resolved record %s to class session %s", recordID, session.ID)

	return nil
}

// lookup queries for an exact start-time match, widening to the ±window
// nearest-match fallback only when the exact query returns nothing and the
// fallback is enabled.
func (cmd *ResolveClass) lookup(ctx context.Context, mt *marianatek.Client, locationID string, instant time.Time) (*marianatek.ClassSession, error) {
	sessions, err := mt.ClassSessions(ctx, locationID, instant, instant.Add(time.Minute))
	if err != nil {
		return nil, err
	}

	for i := range sessions {
		if sessions[i].StartDateTime.Equal(instant) {
			return &sessions[i], nil
		}
	}

	if cmd.window == 0 {
		return nil, nil
	}

	window := time.Duration(cmd.window) * time.Minute

	warnf("no exact class session match at %s, searching ±%v", instant.Format(time.RFC3339), window)

	sessions, err = mt.ClassSessions(ctx, locationID, instant.Add(-window), instant.Add(window))
	if err != nil {
		return nil, err
	}

	var nearest *marianatek.ClassSession
	var best time.Duration

	for i := range sessions {
		distance := sessions[i].StartDateTime.Sub(instant)
		if distance < 0 {
			distance = -distance
		}

		if nearest == nil || distance < best {
			nearest = &sessions[i]
			best = distance
		}
	}

	return nearest, nil
}

// fail records the failure on the schedule record (best effort) and returns
// the original error.
func (cmd *ResolveClass) fail(ctx context.Context, at *airtable.Client, recordID string, cause error) error {
	update := []airtable.Record{
		{
			ID: recordID,
			Fields: map[string]any{
				"Sync Status": cause.Error(),
			},
		},
	}

	if _, err := at.Update(ctx, cmd.scheduleTable, update); err != nil {
		warnf("could not update status on schedule record %s (%v)", recordID, err)
	}

	return cause
}

// matchLocation resolves a room to a platform location by substring
// containment - room names in the base are freehand.
func matchLocation(locations []marianatek.Location, room string) *marianatek.Location {
	needle := normalise(room)

	for i := range locations {
		name := normalise(locations[i].Name)
		if strings.Contains(name, needle) || strings.Contains(needle, name) {
			return &locations[i]
		}
	}

	return nil
}
