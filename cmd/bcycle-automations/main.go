package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/bcycle-automations/bcycle-automations/commands"
)

type Command interface {
	Name() string
	Description() string
	Usage() string
	Help()
	FlagSet() *flag.FlagSet
	Execute(args ...any) error
}

var cli = []Command{
	&commands.VersionCmd,
	&commands.ImportRatingsCmd,
	&commands.ResolveClassCmd,
	&commands.RemindCmd,
	&commands.CheckinsCmd,
	&commands.ReportCmd,
}

var options = commands.Options{
	Debug: false,
}

func main() {
	godotenv.Load()

	flag.BoolVar(&options.Debug, "debug", options.Debug, "Enable debugging information")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	if args[0] == "help" {
		help(args[1:])
		os.Exit(0)
	}

	cmd := parse(args[0])
	if cmd == nil {
		fmt.Printf("\nInvalid command '%s'\n\n", args[0])
		usage()
		os.Exit(1)
	}

	flagset := cmd.FlagSet()
	if err := flagset.Parse(args[1:]); err != nil {
		fmt.Printf("\nError parsing command line: %v\n\n", err)
		os.Exit(1)
	}

	if err := cmd.Execute(&options, flagset.Args()); err != nil {
		log.Fatalf("ERROR %v", err)
	}
}

func parse(name string) Command {
	for _, cmd := range cli {
		if cmd.Name() == name {
			return cmd
		}
	}

	return nil
}

func help(args []string) {
	if len(args) > 0 {
		if cmd := parse(args[0]); cmd != nil {
			cmd.Help()
			return
		}

		fmt.Printf("\nInvalid command '%s'\n", args[0])
	}

	usage()
}

func usage() {
	fmt.Println()
	fmt.Printf("  Usage: %s [--debug] <command> [options]\n", commands.APP)
	fmt.Println()
	fmt.Println("  Commands:")
	fmt.Println()

	for _, cmd := range cli {
		fmt.Printf("    %-16s %s\n", cmd.Name(), cmd.Description())
	}

	fmt.Printf("    %-16s Displays this message. For help on a command use '%s help <command>'\n", "help", commands.APP)
	fmt.Println()
}
