package commands

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/bcycle-automations/bcycle-automations/airtable"
	"github.com/bcycle-automations/bcycle-automations/marianatek"
)

const APP = "bcycle-automations"

// Options are the global command line options shared by all subcommands.
type Options struct {
	Debug bool
}

// command is the embedded base for all subcommands.
type command struct {
	debug bool
}

func helpOptions(flagset *flag.FlagSet) {
	flagset.VisitAll(func(f *flag.Flag) {
		fmt.Printf("    --%-14s %s\n", f.Name, f.Usage)
	})
}

// requireEnv resolves the named environment variables, collecting every
// missing variable into a single descriptive error so that a misconfigured
// job fails before the first network call.
func requireEnv(names ...string) (map[string]string, error) {
	env := map[string]string{}
	missing := []string{}

	for _, name := range names {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			missing = append(missing, name)
			continue
		}

		env[name] = v
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return env, nil
}

func getEnv(name string, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}

	return fallback
}

func newAirtable(env map[string]string) *airtable.Client {
	return airtable.NewClient(env["AIRTABLE_API_KEY"], env["AIRTABLE_BASE_ID"])
}

func newMarianaTek(env map[string]string) *marianatek.Client {
	return marianatek.NewClient(env["MARIANATEK_API_URL"], env["MARIANATEK_API_TOKEN"])
}

// normalise collapses a field/column name for case- and space-insensitive
// comparison.
func normalise(v string) string {
	return strings.ToLower(strings.ReplaceAll(v, " ", ""))
}

func debugf(format string, args ...any) {
	log.Printf("%-5s %s", "DEBUG", fmt.Sprintf(format, args...))
}

func infof(format string, args ...any) {
	log.Printf("%-5s %s", "INFO", fmt.Sprintf(format, args...))
}

func warnf(format string, args ...any) {
	log.Printf("%-5s %s", "WARN", fmt.Sprintf(format, args...))
}

func errorf(format string, args ...any) {
	log.Printf("%-5s %s", "ERROR", fmt.Sprintf(format, args...))
}
