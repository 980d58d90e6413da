package commands

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bcycle-automations/bcycle-automations/airtable"
	"github.com/bcycle-automations/bcycle-automations/email"
	"github.com/bcycle-automations/bcycle-automations/marianatek"
	"github.com/bcycle-automations/bcycle-automations/watermark"
	"github.com/bcycle-automations/bcycle-automations/webhook"
)

var RemindCmd = Remind{
	statefile:      filepath.Join("state", "reminders.json"),
	customersTable: "Customers",
	runlogTable:    "Run Log",
	dayOffset:      1,
	statuses:       "reserved,confirmed",
	pause:          250 * time.Millisecond,
	nolog:          false,
	dryrun:         false,
}

// Remind sends reservation reminder emails for tomorrow's class sessions.
//
// The job is resumable: reservations are processed in one-hour UTC buckets
// and the last fully processed hour is checkpointed to the state file after
// each bucket, so a missed or failed run is caught up on the next invocation
// and a re-run within the same hour is a no-op.
type Remind struct {
	command
	statefile      string
	customersTable string
	runlogTable    string
	dayOffset      int
	statuses       string
	pause          time.Duration
	nolog          bool
	dryrun         bool
}

// mailer is the slice of the email client the reminder loop needs.
type mailer interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

func (cmd *Remind) Name() string {
	return "remind"
}

func (cmd *Remind) Description() string {
	return "Sends reservation reminder emails for tomorrow's class sessions"
}

func (cmd *Remind) Usage() string {
	return "[options]"
}

func (cmd *Remind) Help() {
	fmt.Println()
	fmt.Printf("  Usage: %s [--debug] remind [options]\n", APP)
	fmt.Println()
	fmt.Println("  Fetches tomorrow's reservations from Mariana Tek hour bucket by hour bucket, upserts the")
	fmt.Println("  contacts into Airtable and sends each one a reminder email. Progress is checkpointed to")
	fmt.Println("  the state file so missed runs are caught up and repeated runs send nothing twice")
	fmt.Println()

	helpOptions(cmd.FlagSet())

	fmt.Println()
	fmt.Println("  Environment:")
	fmt.Println()
	fmt.Println("    AIRTABLE_API_KEY      Airtable API key")
	fmt.Println("    AIRTABLE_BASE_ID      Airtable base ID")
	fmt.Println("    MARIANATEK_API_URL    Mariana Tek API base URL")
	fmt.Println("    MARIANATEK_API_TOKEN  Mariana Tek API token")
	fmt.Println("    GRAPH_TENANT_ID       Microsoft Graph tenant for the reminder mailbox")
	fmt.Println("    GRAPH_CLIENT_ID       Microsoft Graph application id")
	fmt.Println("    GRAPH_CLIENT_SECRET   Microsoft Graph client secret")
	fmt.Println("    REMINDER_SENDER       Mailbox the reminders are sent from")
	fmt.Println("    STUDIO_TIMEZONE       IANA timezone of the studio e.g. 'America/New_York'")
	fmt.Println("    REMINDER_WEBHOOK_URL  Optional workflow webhook notified per reminder")
	fmt.Println()
}

func (cmd *Remind) FlagSet() *flag.FlagSet {
	flagset := flag.NewFlagSet("remind", flag.ExitOnError)

	flagset.StringVar(&cmd.statefile, "statefile", cmd.statefile, fmt.Sprintf("Watermark state file. Defaults to '%s'", cmd.statefile))
	flagset.StringVar(&cmd.customersTable, "customers-table", cmd.customersTable, fmt.Sprintf("Customers table name. Defaults to '%s'", cmd.customersTable))
	flagset.StringVar(&cmd.runlogTable, "runlog-table", cmd.runlogTable, fmt.Sprintf("Run log table name. Defaults to '%s'", cmd.runlogTable))
	flagset.IntVar(&cmd.dayOffset, "day-offset", cmd.dayOffset, "Days ahead of today to remind for. Defaults to 1 (tomorrow)")
	flagset.StringVar(&cmd.statuses, "statuses", cmd.statuses, fmt.Sprintf("Reservation statuses to remind, comma separated. Defaults to '%s'", cmd.statuses))
	flagset.BoolVar(&cmd.nolog, "no-log", cmd.nolog, "Disables writing a run record to the run log table")
	flagset.BoolVar(&cmd.dryrun, "dryrun", cmd.dryrun, "Processes reservations without sending mail or advancing the watermark")

	return flagset
}

func (cmd *Remind) Execute(args ...any) error {
	options := args[0].(*Options)

	cmd.debug = options.Debug

	env, err := requireEnv(
		"AIRTABLE_API_KEY", "AIRTABLE_BASE_ID",
		"MARIANATEK_API_URL", "MARIANATEK_API_TOKEN",
		"GRAPH_TENANT_ID", "GRAPH_CLIENT_ID", "GRAPH_CLIENT_SECRET", "REMINDER_SENDER",
		"STUDIO_TIMEZONE")
	if err != nil {
		return err
	}

	ctx := context.Background()

	mail := email.NewClient(ctx, email.Config{
		TenantID:     env["GRAPH_TENANT_ID"],
		ClientID:     env["GRAPH_CLIENT_ID"],
		ClientSecret: env["GRAPH_CLIENT_SECRET"],
		Sender:       env["REMINDER_SENDER"],
	})

	return cmd.run(ctx, newAirtable(env), newMarianaTek(env), mail, getEnv("REMINDER_WEBHOOK_URL", ""), env["STUDIO_TIMEZONE"], time.Now())
}

func (cmd *Remind) run(ctx context.Context, at *airtable.Client, mt *marianatek.Client, mail mailer, webhookURL string, zone string, now time.Time) error {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return fmt.Errorf("unknown timezone '%s' (%v)", zone, err)
	}

	var rl *runlog
	if !cmd.nolog {
		rl = startRunLog(ctx, at, cmd.runlogTable, "remind")
	}

	w := watermark.Load(cmd.statefile)
	hours := w.HoursToProcess(now, cmd.dayOffset)

	if len(hours) == 0 {
		infof("remind: nothing to do for %s (last processed hour %d)", w.TargetDate, w.LastProcessedHour)
		rl.finish(ctx, "ok", map[string]any{"Reminded": 0})
		return nil
	}

	infof("remind: processing hours %v for %s", hours, w.TargetDate)

	reminded := 0
	skipped := 0
	failed := 0

	statuses := strings.Split(cmd.statuses, ",")

	for _, hour := range hours {
		start, end, err := w.Bucket(hour)
		if err != nil {
			return cmd.fatal(ctx, rl, err)
		}

		reservations, err := mt.Reservations(ctx, start, end, statuses)
		if err != nil {
			// leave the watermark at the last completed bucket so the next
			// invocation retries from here
			return cmd.fatal(ctx, rl, fmt.Errorf("cannot retrieve reservations for %s (%v)", start.Format(time.RFC3339), err))
		}

		if cmd.debug {
			debugf("hour %02d: %d reservations", hour, len(reservations))
		}

		for _, reservation := range reservations {
			issue, err := cmd.remindOne(ctx, at, mt, mail, webhookURL, loc, reservation)

			switch {
			case err != nil:
				errorf("reservation %s: %v", reservation.ID, err)
				rl.issue(fmt.Sprintf("reservation %s: %v", reservation.ID, err))
				failed++

			case issue != "":
				warnf("reservation %s: %s", reservation.ID, issue)
				rl.issue(fmt.Sprintf("reservation %s: %s", reservation.ID, issue))
				skipped++

			default:
				reminded++
			}

			if cmd.pause > 0 {
				time.Sleep(cmd.pause)
			}
		}

		if !cmd.dryrun {
			w.Advance(hour)
			if err := w.Store(cmd.statefile); err != nil {
				return cmd.fatal(ctx, rl, fmt.Errorf("cannot persist watermark (%v)", err))
			}
		}
	}

	infof("remind: reminded %d, skipped %d, failed %d", reminded, skipped, failed)

	rl.finish(ctx, "ok", map[string]any{
		"Reminded": reminded,
		"Skipped":  skipped,
		"Failed":   failed,
	})

	return nil
}

// remindOne processes a single reservation. The returned issue string marks a
// per-record data problem (skip and continue); an error marks a failed
// external call (also continue - only the rate-limited client retries).
func (cmd *Remind) remindOne(ctx context.Context, at *airtable.Client, mt *marianatek.Client, mail mailer, webhookURL string, loc *time.Location, reservation marianatek.Reservation) (string, error) {
	if reservation.UserID == "" || reservation.ClassSessionID == "" {
		return "missing user or class session link", nil
	}

	// the session and user reads are independent - fetch both at once
	var session *marianatek.ClassSession
	var user *marianatek.User
	var serr, uerr error

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		session, serr = mt.FetchClassSession(ctx, reservation.ClassSessionID)
	}()
	go func() {
		defer wg.Done()
		user, uerr = mt.FetchUser(ctx, reservation.UserID)
	}()
	wg.Wait()

	if serr != nil {
		return "", fmt.Errorf("cannot retrieve class session %s (%v)", reservation.ClassSessionID, serr)
	}

	if uerr != nil {
		return "", fmt.Errorf("cannot retrieve user %s (%v)", reservation.UserID, uerr)
	}

	if strings.TrimSpace(user.Email) == "" {
		return fmt.Sprintf("user %s has no email address", user.ID), nil
	}

	contact := strings.ToLower(strings.TrimSpace(user.Email))

	fields := []map[string]any{
		{
			"Email":      contact,
			"First Name": user.FirstName,
			"Last Name":  user.LastName,
			"Mariana ID": user.ID,
		},
	}

	if !cmd.dryrun {
		if _, err := at.Upsert(ctx, cmd.customersTable, fields, []string{"Email"}); err != nil {
			return "", fmt.Errorf("cannot upsert customer %s (%v)", contact, err)
		}
	}

	local := session.StartDateTime.In(loc)
	subject := fmt.Sprintf("Reminder: %s tomorrow at %s", session.Name, local.Format("3:04 PM"))
	body := fmt.Sprintf(
		"Hi %s,\n\nJust a reminder that you're booked into %s at %s on %s.\n\nSee you there!\n",
		user.FirstName, session.Name, local.Format("3:04 PM"), local.Format("Monday, January 2"))

	if cmd.dryrun {
		infof("dryrun: would remind %s about %s", contact, session.Name)
		return "", nil
	}

	if err := mail.Send(ctx, contact, subject, body); err != nil {
		return "", err
	}

	if webhookURL != "" {
		payload := map[string]any{
			"email":          contact,
			"first_name":     user.FirstName,
			"class":          session.Name,
			"starts_at":      session.StartDateTime.Format(time.RFC3339),
			"reservation_id": reservation.ID,
		}

		// notification only - a failed webhook never unwinds the reminder
		if err := webhook.Notify(ctx, webhookURL, payload); err != nil {
			warnf("webhook notification failed for reservation %s (%v)", reservation.ID, err)
		}
	}

	return "", nil
}

func (cmd *Remind) fatal(ctx context.Context, rl *runlog, err error) error {
	rl.finish(ctx, "error", map[string]any{"Error": err.Error()})
	return err
}
