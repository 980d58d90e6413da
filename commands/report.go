package commands

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/bcycle-automations/bcycle-automations/airtable"
)

var ReportCmd = Report{
	credentials:   "credentials.json",
	template:      "",
	title:         time.Now().Format("Studio Report 2006-01-02"),
	feedbackTable: "Feedback",
	runlogTable:   "Run Log",
	nolog:         false,
}

// Report copies a Google Sheets template, fills it with a per-class feedback
// summary from Airtable and records the shareable link in the run log.
type Report struct {
	command
	credentials   string
	template      string
	title         string
	feedbackTable string
	runlogTable   string
	nolog         bool
}

func (cmd *Report) Name() string {
	return "report"
}

func (cmd *Report) Description() string {
	return "Generates a feedback summary spreadsheet from a Google Sheets template"
}

func (cmd *Report) Usage() string {
	return "--credentials <file> --template <file-id>"
}

func (cmd *Report) Help() {
	fmt.Println()
	fmt.Printf("  Usage: %s [--debug] report [options] --credentials <credentials> --template <file-id>\n", APP)
	fmt.Println()
	fmt.Println("  Copies the template spreadsheet, writes a per-class rating summary from the feedback")
	fmt.Println("  table into it and records the spreadsheet's shareable link in the run log")
	fmt.Println()

	helpOptions(cmd.FlagSet())

	fmt.Println()
	fmt.Println("  Environment:")
	fmt.Println()
	fmt.Println("    AIRTABLE_API_KEY      Airtable API key")
	fmt.Println("    AIRTABLE_BASE_ID      Airtable base ID")
	fmt.Println("    GOOGLE_REFRESH_TOKEN  Refresh token, when 'credentials' is an OAuth client file")
	fmt.Println()
	fmt.Println("  Examples:")
	fmt.Println()
	fmt.Printf("    %s report --credentials \"service-account.json\" --template \"1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms\"\n", APP)
	fmt.Println()
}

func (cmd *Report) FlagSet() *flag.FlagSet {
	flagset := flag.NewFlagSet("report", flag.ExitOnError)

	flagset.StringVar(&cmd.credentials, "credentials", cmd.credentials, "Path for the Google credentials file (service account key or OAuth client)")
	flagset.StringVar(&cmd.template, "template", cmd.template, "Google Drive file id of the template spreadsheet")
	flagset.StringVar(&cmd.title, "title", cmd.title, "Name for the generated spreadsheet")
	flagset.StringVar(&cmd.feedbackTable, "feedback-table", cmd.feedbackTable, fmt.Sprintf("Feedback table name. Defaults to '%s'", cmd.feedbackTable))
	flagset.StringVar(&cmd.runlogTable, "runlog-table", cmd.runlogTable, fmt.Sprintf("Run log table name. Defaults to '%s'", cmd.runlogTable))
	flagset.BoolVar(&cmd.nolog, "no-log", cmd.nolog, "Disables writing the report link to the run log table")

	return flagset
}

func (cmd *Report) Execute(args ...any) error {
	options := args[0].(*Options)

	cmd.debug = options.Debug

	if strings.TrimSpace(cmd.credentials) == "" {
		return fmt.Errorf("--credentials is a required option")
	}

	if cmd.template = strings.TrimSpace(cmd.template); cmd.template == "" {
		cmd.template = getEnv("REPORT_TEMPLATE_ID", "")
	}

	if cmd.template == "" {
		return fmt.Errorf("--template (or REPORT_TEMPLATE_ID) is required")
	}

	env, err := requireEnv("AIRTABLE_API_KEY", "AIRTABLE_BASE_ID")
	if err != nil {
		return err
	}

	ctx := context.Background()

	client, err := googleClient(ctx, cmd.credentials)
	if err != nil {
		return fmt.Errorf("authentication/authorization error (%v)", err)
	}

	gdrive, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return fmt.Errorf("unable to create new Drive client (%v)", err)
	}

	google, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return fmt.Errorf("unable to create new Sheets client (%v)", err)
	}

	at := newAirtable(env)

	var rl *runlog
	if !cmd.nolog {
		rl = startRunLog(ctx, at, cmd.runlogTable, "report")
	}

	link, err := cmd.run(ctx, at, gdrive, google)
	if err != nil {
		rl.finish(ctx, "error", map[string]any{"Error": err.Error()})
		return err
	}

	rl.finish(ctx, "ok", map[string]any{"Report Link": link})

	return nil
}

func (cmd *Report) run(ctx context.Context, at *airtable.Client, gdrive *drive.Service, google *sheets.Service) (string, error) {
	feedback, err := at.List(ctx, cmd.feedbackTable, airtable.ListOptions{Fields: []string{"Class", "Rating"}})
	if err != nil {
		return "", fmt.Errorf("cannot retrieve feedback table (%v)", err)
	}

	infof("report: summarizing %d feedback records", len(feedback))

	copied, err := gdrive.Files.Copy(cmd.template, &drive.File{Name: cmd.title}).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("cannot copy template spreadsheet (%v)", err)
	}

	rows := reportRows(feedback)

	var title = sheets.ValueRange{
		Range: "Summary!A1:A1",
		Values: [][]interface{}{
			{time.Now().Format("Feedback Summary: 2006-01-02 15:04:05")},
		},
	}

	var data = sheets.ValueRange{
		Range:  "Summary!A3:C",
		Values: rows,
	}

	rq := sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             []*sheets.ValueRange{&title, &data},
	}

	if _, err := google.Spreadsheets.Values.BatchUpdate(copied.Id, &rq).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("error writing summary to spreadsheet (%w)", err)
	}

	link := copied.WebViewLink
	if link == "" {
		file, err := gdrive.Files.Get(copied.Id).Fields("webViewLink").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("cannot retrieve spreadsheet link (%v)", err)
		}

		link = file.WebViewLink
	}

	infof("report: created %s", link)

	return link, nil
}

// reportRows builds the summary rows: class, rating count and average, in
// class order with a header row.
func reportRows(feedback []airtable.Record) [][]interface{} {
	type stats struct {
		count int
		sum   float64
	}

	byClass := map[string]*stats{}

	for i := range feedback {
		class := feedback[i].String("Class")
		if class == "" {
			class = "(unclassified)"
		}

		s, ok := byClass[class]
		if !ok {
			s = &stats{}
			byClass[class] = s
		}

		s.count++
		s.sum += feedback[i].Number("Rating")
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}

	sort.Strings(classes)

	rows := [][]interface{}{
		{"Class", "Ratings", "Average"},
	}

	for _, class := range classes {
		s := byClass[class]
		average := 0.0
		if s.count > 0 {
			average = s.sum / float64(s.count)
		}

		rows = append(rows, []interface{}{class, s.count, average})
	}

	return rows
}
