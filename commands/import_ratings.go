package commands

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bcycle-automations/bcycle-automations/airtable"
)

var ImportRatingsCmd = ImportRatings{
	file:          "",
	feedbackTable: "Feedback",
	studiosTable:  "Studios",
	dryrun:        false,
}

// ImportRatings imports a CSV export of class ratings into the feedback
// table. The dedupe key is contact+studio+date, so re-running the import
// against the same CSV creates nothing.
type ImportRatings struct {
	command
	file          string
	feedbackTable string
	studiosTable  string
	dryrun        bool
}

func (cmd *ImportRatings) Name() string {
	return "import-ratings"
}

func (cmd *ImportRatings) Description() string {
	return "Imports a CSV of class ratings into the Airtable feedback table"
}

func (cmd *ImportRatings) Usage() string {
	return "--file <csv>"
}

func (cmd *ImportRatings) Help() {
	fmt.Println()
	fmt.Printf("  Usage: %s [--debug] import-ratings [options] --file <csv>\n", APP)
	fmt.Println()
	fmt.Println("  Imports a ratings CSV (Contact,Date,Rating,Comment,Class) into the feedback table,")
	fmt.Println("  skipping rows that already have a feedback record for the same contact, studio and date")
	fmt.Println()

	helpOptions(cmd.FlagSet())

	fmt.Println()
	fmt.Println("  Environment:")
	fmt.Println()
	fmt.Println("    AIRTABLE_API_KEY   Airtable API key")
	fmt.Println("    AIRTABLE_BASE_ID   Airtable base ID")
	fmt.Println()
	fmt.Println("  Examples:")
	fmt.Println()
	fmt.Printf("    %s import-ratings --file \"ratings-2026-02.csv\"\n", APP)
	fmt.Println()
}

func (cmd *ImportRatings) FlagSet() *flag.FlagSet {
	flagset := flag.NewFlagSet("import-ratings", flag.ExitOnError)

	flagset.StringVar(&cmd.file, "file", cmd.file, "Ratings CSV file")
	flagset.StringVar(&cmd.feedbackTable, "feedback-table", cmd.feedbackTable, fmt.Sprintf("Feedback table name. Defaults to '%s'", cmd.feedbackTable))
	flagset.StringVar(&cmd.studiosTable, "studios-table", cmd.studiosTable, fmt.Sprintf("Studios table name. Defaults to '%s'", cmd.studiosTable))
	flagset.BoolVar(&cmd.dryrun, "dryrun", cmd.dryrun, "Parses and matches the CSV without creating any records")

	return flagset
}

func (cmd *ImportRatings) Execute(args ...any) error {
	options := args[0].(*Options)

	cmd.debug = options.Debug

	if strings.TrimSpace(cmd.file) == "" {
		return fmt.Errorf("--file is a required option")
	}

	env, err := requireEnv("AIRTABLE_API_KEY", "AIRTABLE_BASE_ID")
	if err != nil {
		return err
	}

	f, err := os.Open(cmd.file)
	if err != nil {
		return fmt.Errorf("cannot open ratings file '%s' (%v)", cmd.file, err)
	}

	defer f.Close()

	return cmd.run(context.Background(), newAirtable(env), f)
}

type rating struct {
	contact string
	date    time.Time
	rating  int
	comment string
	class   string
}

func (cmd *ImportRatings) run(ctx context.Context, client *airtable.Client, r io.Reader) error {
	ratings, skipped, err := parseRatings(r)
	if err != nil {
		return err
	}

	infof("parsed %d ratings from CSV (%d rows skipped)", len(ratings), skipped)

	studios, err := client.List(ctx, cmd.studiosTable, airtable.ListOptions{Fields: []string{"Name"}})
	if err != nil {
		return fmt.Errorf("cannot retrieve studios table (%v)", err)
	}

	created := 0
	duplicates := 0

	for _, rating := range ratings {
		studio := matchStudio(studios, rating.class)
		if studio == "" {
			warnf("no studio matches class '%s' for %s", rating.class, rating.contact)
		}

		day := rating.date.Format("2006-01-02")
		formula := airtable.And(
			airtable.EqualsLower("Contact", rating.contact),
			airtable.Equals("Studio", studio),
			airtable.SameDay("Date", day),
		)

		existing, err := client.First(ctx, cmd.feedbackTable, formula)
		if err != nil {
			errorf("lookup failed for %s on %s (%v)", rating.contact, day, err)
			skipped++
			continue
		}

		if existing != nil {
			duplicates++
			continue
		}

		if cmd.dryrun {
			infof("dryrun: would create feedback for %s on %s", rating.contact, day)
			created++
			continue
		}

		fields := map[string]any{
			"Contact": rating.contact,
			"Date":    rating.date.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			"Rating":  rating.rating,
			"Comment": rating.comment,
			"Class":   rating.class,
			"Studio":  studio,
		}

		if _, err := client.Create(ctx, cmd.feedbackTable, []map[string]any{fields}); err != nil {
			errorf("create failed for %s on %s (%v)", rating.contact, day, err)
			skipped++
			continue
		}

		created++
	}

	infof("import-ratings: created %d, duplicates %d, skipped %d", created, duplicates, skipped)

	return nil
}

// parseRatings reads the CSV, locating columns by header name so exports with
// reordered or extra columns still import. Rows with a missing contact or an
// unparsable date are skipped and counted, not fatal.
func parseRatings(r io.Reader) ([]rating, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("cannot parse ratings CSV (%v)", err)
	}

	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("ratings CSV is empty")
	}

	index := map[string]int{}
	for i, v := range rows[0] {
		index[normalise(v)] = i
	}

	for _, required := range []string{"contact", "date", "rating"} {
		if _, ok := index[required]; !ok {
			return nil, 0, fmt.Errorf("ratings CSV is missing a '%s' column", required)
		}
	}

	field := func(row []string, name string) string {
		if ix, ok := index[name]; ok && ix < len(row) {
			return strings.TrimSpace(row[ix])
		}

		return ""
	}

	ratings := []rating{}
	skipped := 0

	for _, row := range rows[1:] {
		contact := strings.ToLower(field(row, "contact"))
		if contact == "" {
			skipped++
			continue
		}

		// export dates are M/D/YYYY
		date, err := time.ParseInLocation("1/2/2006", field(row, "date"), time.UTC)
		if err != nil {
			skipped++
			continue
		}

		score, err := strconv.Atoi(field(row, "rating"))
		if err != nil {
			skipped++
			continue
		}

		ratings = append(ratings, rating{
			contact: contact,
			date:    date,
			rating:  score,
			comment: field(row, "comment"),
			class:   field(row, "class"),
		})
	}

	return ratings, skipped, nil
}

// matchStudio resolves a studio by substring containment between the class
// name and the studio name - there is no deterministic key in the export.
func matchStudio(studios []airtable.Record, class string) string {
	needle := normalise(class)
	if needle == "" {
		return ""
	}

	for i := range studios {
		name := studios[i].String("Name")
		if strings.Contains(normalise(name), needle) || strings.Contains(needle, normalise(name)) {
			return name
		}
	}

	return ""
}
