// Package command implements the player and admin command surface over
// the quest engine. Commands return display text; the transport layer
// decides how it reaches the player.
package command

import (
	"errors"
	"strings"

	"github.com/ashgrove/questforge/internal/engine"
	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/quest"
	"github.com/ashgrove/questforge/internal/store"
)

type Command struct {
	Name string
	Args []string
}

// RequireArgs checks if the command has at least the minimum number of
// arguments. Returns an error with the usage message if not.
func (c *Command) RequireArgs(min int, usage string) error {
	if len(c.Args) < min {
		return errors.New(usage)
	}
	return nil
}

func ParseCommand(input string) *Command {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return &Command{Name: "", Args: []string{}}
	}
	return &Command{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// Handler routes parsed commands to the engine and its stores.
type Handler struct {
	engine   *engine.Engine
	registry *quest.Registry
	cache    *store.Cached
	players  engine.PlayerDirectory
	questDir string
}

// NewHandler wires the command surface. questDir is where reload reads
// definitions from.
func NewHandler(eng *engine.Engine, registry *quest.Registry, cache *store.Cached,
	players engine.PlayerDirectory, questDir string) *Handler {
	return &Handler{
		engine:   eng,
		registry: registry,
		cache:    cache,
		players:  players,
		questDir: questDir,
	}
}

// Execute runs a player command line and returns the response text.
func (h *Handler) Execute(p host.Player, input string) string {
	c := ParseCommand(input)

	switch c.Name {
	case "quest", "quests", "journal":
		return h.executeQuest(c, p)
	case "points", "score":
		return h.executePoints(p)
	case "help":
		return playerHelp
	case "":
		return ""
	default:
		return "Unknown command. Try 'help'."
	}
}

// ExecuteAdmin runs an admin command line and returns the response
// text. Authentication happens in the transport layer before this is
// reached.
func (h *Handler) ExecuteAdmin(p host.Player, input string) string {
	c := ParseCommand(input)

	switch c.Name {
	case "reload":
		return h.executeReload()
	case "give":
		return h.executeGive(c)
	case "stop":
		return h.executeStop(c)
	case "complete":
		return h.executeComplete(c)
	case "reset":
		return h.executeReset(c)
	case "top":
		return h.executeTop(c)
	case "help":
		return adminHelp
	case "":
		return ""
	default:
		return "Unknown admin command. Try 'help'."
	}
}

const playerHelp = `Quest commands:
  quest                  summary of your journal
  quest list             active quests with progress
  quest info <id>        details for one quest
  quest start <id>       accept a quest
  quest cancel <id>      abandon an active quest
  points                 your total quest points`

const adminHelp = `Admin commands:
  reload                         reload quest definitions from disk
  give <player> <quest>          start a quest for a player
  stop <player> <quest>          force-stop a player's active quest
  complete <player> <quest>      force-complete a quest for a player
  reset <player> [quest]         wipe progress, whole journal or one quest
  top [n]                        points leaderboard`
