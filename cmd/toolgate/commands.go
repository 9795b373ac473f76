// cmd/toolgate/commands.go
package main

import (
	"flag"
	"fmt"
	"sort"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/quarantine"
	"github.com/toolgate/toolgate/internal/truststore"
)

// Version information (populated at build time).
var (
	version = "dev"
)

// command describes one CLI subcommand.
type command struct {
	Name        string
	Description string
	Run         func([]string) error
	Help        string
}

// RegisterCommands returns the command registry keyed by name.
func RegisterCommands() map[string]command {
	cmds := map[string]command{
		"run": {
			Name:        "run",
			Description: "Run the proxy between the client on stdio and a downstream server",
			Run:         runCommand,
			Help: `Usage: toolgate run [options]

Options:
  -config string      Path to configuration file (optional; defaults are used without it)
  -downstream string  Downstream server command line (stdio) or URL (overrides config)
  -kind string        Downstream kind: stdio, sse, or http (overrides config)
  -visualize          Rewrite terminal escape introducers in outbound text
  -debug              Enable debug logging
`,
		},
		"trust": {
			Name:        "trust",
			Description: "Inspect or edit the trust store",
			Run:         trustCommand,
			Help: `Usage: toolgate trust <list|remove> [options]

Subcommands:
  list                List approved server records
  remove              Remove an approval record

Options:
  -config string      Path to configuration file
  -kind string        Record kind (remove; default "stdio")
  -identifier string  Record identifier (remove)
`,
		},
		"quarantine": {
			Name:        "quarantine",
			Description: "Inspect or edit the quarantine store",
			Run:         quarantineCommand,
			Help: `Usage: toolgate quarantine <list|release|delete|tidy|purge> [options]

Subcommands:
  list                List withheld tool responses pending review
  release             Mark a record as reviewed and releasable
  delete              Delete a record outright
  tidy                Delete all released records
  purge               Delete every record

Options:
  -config string      Path to configuration file
  -id string          Record ID (release, delete)
  -all                Include released records in list output
`,
		},
		"version": {
			Name:        "version",
			Description: "Print the version information",
			Run:         versionCommand,
			Help:        "Usage: toolgate version",
		},
	}
	cmds["help"] = command{
		Name:        "help",
		Description: "Show help for toolgate commands",
		Run:         helpCommand(cmds),
		Help:        "Usage: toolgate help [command]",
	}
	return cmds
}

// helpCommand prints the overview, or a single command's help text.
func helpCommand(cmds map[string]command) func([]string) error {
	return func(args []string) error {
		if len(args) > 0 {
			if cmd, ok := cmds[args[0]]; ok {
				fmt.Println(cmd.Help)
				return nil
			}
			return fmt.Errorf("unknown command: %s", args[0])
		}

		fmt.Println("toolgate - an approval-gating proxy for MCP tool servers")
		fmt.Println("\nCommands:")
		names := make([]string, 0, len(cmds))
		for name := range cmds {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-12s %s\n", name, cmds[name].Description)
		}
		fmt.Println("\nUse \"toolgate help <command>\" for command details.")
		return nil
	}
}

// versionCommand prints version information.
func versionCommand([]string) error {
	fmt.Printf("toolgate version %s\n", version)
	return nil
}

// loadConfig resolves the effective configuration: defaults, optionally merged
// with a YAML file.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFromFile(path)
}

// trustCommand dispatches the trust store subcommands.
func trustCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("trust requires a subcommand: list or remove")
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("trust "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	kind := fs.String("kind", "stdio", "record kind")
	identifier := fs.String("identifier", "", "record identifier")
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("failed to parse trust command flags: %w", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	store, err := truststore.New(cfg.Storage.TrustPath, logging.GetLogger("trust_store"))
	if err != nil {
		return fmt.Errorf("error opening trust store: %w", err)
	}

	switch sub {
	case "list":
		entries, err := store.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No approved servers.")
			return nil
		}
		for _, entry := range entries {
			fmt.Printf("%-6s %s\n", entry.Kind, entry.Identifier)
		}
		return nil
	case "remove":
		if *identifier == "" {
			return fmt.Errorf("remove requires -identifier")
		}
		removed, err := store.Remove(*kind, *identifier)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("No record for %s %s.\n", *kind, *identifier)
			return nil
		}
		fmt.Printf("Removed approval for %s %s.\n", *kind, *identifier)
		return nil
	default:
		return fmt.Errorf("unknown trust subcommand: %s", sub)
	}
}

// quarantineCommand dispatches the quarantine store subcommands.
func quarantineCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("quarantine requires a subcommand: list, release, delete, tidy, or purge")
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("quarantine "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	id := fs.String("id", "", "record ID")
	all := fs.Bool("all", false, "include released records")
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("failed to parse quarantine command flags: %w", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	store, err := quarantine.New(cfg.Storage.QuarantinePath, logging.GetLogger("quarantine_store"))
	if err != nil {
		return fmt.Errorf("error opening quarantine store: %w", err)
	}

	switch sub {
	case "list":
		records, err := listRecords(store, *all)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("Quarantine is empty.")
			return nil
		}
		for _, rec := range records {
			status := "pending"
			if rec.Released {
				status = "released"
			}
			fmt.Printf("%s  %-8s  %s  %s\n", rec.ID, status, rec.Timestamp.Format("2006-01-02 15:04:05"), rec.ToolName)
			fmt.Printf("    reason: %s\n", rec.Reason)
		}
		return nil
	case "release":
		if *id == "" {
			return fmt.Errorf("release requires -id")
		}
		released, err := store.Release(*id)
		if err != nil {
			return err
		}
		if !released {
			return fmt.Errorf("no quarantine record with ID %s", *id)
		}
		fmt.Printf("Released %s.\n", *id)
		return nil
	case "delete":
		if *id == "" {
			return fmt.Errorf("delete requires -id")
		}
		deleted, err := store.Delete(*id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("no quarantine record with ID %s", *id)
		}
		fmt.Printf("Deleted %s.\n", *id)
		return nil
	case "tidy":
		n, err := store.Tidy()
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d released record(s).\n", n)
		return nil
	case "purge":
		n, err := store.Purge()
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d record(s).\n", n)
		return nil
	default:
		return fmt.Errorf("unknown quarantine subcommand: %s", sub)
	}
}

func listRecords(store *quarantine.Store, all bool) ([]quarantine.Record, error) {
	if all {
		return store.ListAll()
	}
	return store.List()
}
