package app

import (
	"fmt"
	"strconv"
	"strings"
)

// Command names accepted on the command line.
const (
	CommandRebuild = "rebuild"
	CommandRefresh = "refresh"
	CommandMigrate = "migrate"
	CommandTables  = "tables"
)

// AllTables selects every table recognizing the key field in a refresh.
const AllTables = "*"

// Command is a parsed command line.
type Command struct {
	Name string
	// Tables are the tables to rebuild; empty means all. For refresh it holds one table or AllTables.
	Tables []string
	// KeyField and KeyValue scope a refresh.
	KeyField string
	KeyValue any
	// Direction is "up", "down" or "version" for migrate.
	Direction string
}

// Usage describes the command line.
const Usage = `usage:
  feeder rebuild [table...]                  rebuild the named tables, or all of them
  feeder refresh <table|*> <keyField> <value> reload the rows of one entity
  feeder migrate [up|down|version]           manage the destination schema
  feeder tables                              list the configured tables`

// ParseCommand parses os.Args[1:].
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("no command given\n%s", Usage)
	}
	cmd := Command{Name: args[0]}
	rest := args[1:]
	switch cmd.Name {
	case CommandRebuild:
		cmd.Tables = rest
	case CommandRefresh:
		if len(rest) != 3 {
			return Command{}, fmt.Errorf("refresh takes <table|*> <keyField> <value>, got %d arguments\n%s", len(rest), Usage)
		}
		if strings.TrimSpace(rest[1]) == "" {
			return Command{}, fmt.Errorf("refresh key field must not be empty")
		}
		cmd.Tables = []string{rest[0]}
		cmd.KeyField = rest[1]
		cmd.KeyValue = ParseKeyValue(rest[2])
	case CommandMigrate:
		cmd.Direction = "up"
		if len(rest) > 1 {
			return Command{}, fmt.Errorf("migrate takes at most one argument\n%s", Usage)
		}
		if len(rest) == 1 {
			cmd.Direction = rest[0]
		}
		switch cmd.Direction {
		case "up", "down", "version":
		default:
			return Command{}, fmt.Errorf("unknown migrate direction '%s'\n%s", cmd.Direction, Usage)
		}
	case CommandTables:
		if len(rest) != 0 {
			return Command{}, fmt.Errorf("tables takes no arguments\n%s", Usage)
		}
	default:
		return Command{}, fmt.Errorf("unknown command '%s'\n%s", cmd.Name, Usage)
	}
	return cmd, nil
}

// ParseKeyValue returns value as an int64 when it is the canonical form of an integer,
// otherwise unchanged. Entity keys of the source store are integers; accession IDs and
// zero-padded codes such as "007" stay strings.
func ParseKeyValue(value string) any {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil && strconv.FormatInt(n, 10) == value {
		return n
	}
	return value
}
