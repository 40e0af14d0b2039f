package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/progress"
	"github.com/ashgrove/questforge/internal/quest"
	"github.com/google/uuid"
)

func (h *Handler) executeReload() string {
	before := h.registry.Count()
	if err := h.engine.Reload(h.questDir); err != nil {
		return fmt.Sprintf("Reload failed, keeping the %d loaded quests: %v", before, err)
	}
	return fmt.Sprintf("Reloaded %d quest definitions.", h.registry.Count())
}

// resolve finds a target player and quest definition for the admin
// verbs that take "<player> <quest>".
func (h *Handler) resolve(c *Command, usage string) (host.Player, *quest.Definition, string) {
	if err := c.RequireArgs(2, usage); err != nil {
		return nil, nil, err.Error()
	}
	target, ok := h.players.Find(c.Args[0])
	if !ok {
		return nil, nil, fmt.Sprintf("Player not found: %s", c.Args[0])
	}
	def := h.registry.Get(c.Args[1])
	if def == nil {
		return nil, nil, fmt.Sprintf("Unknown quest: %s", c.Args[1])
	}
	return target, def, ""
}

func (h *Handler) executeGive(c *Command) string {
	target, def, msg := h.resolve(c, "Usage: give <player> <quest>")
	if msg != "" {
		return msg
	}
	if err := h.engine.StartQuest(target, def); err != nil {
		return fmt.Sprintf("Could not give %s to %s: %v", def.Title(), target.Name(), err)
	}
	return fmt.Sprintf("Gave %s to %s.", def.Title(), target.Name())
}

func (h *Handler) executeStop(c *Command) string {
	target, def, msg := h.resolve(c, "Usage: stop <player> <quest>")
	if msg != "" {
		return msg
	}
	if err := h.engine.StopQuest(target, def); err != nil {
		return fmt.Sprintf("%s does not have %s active.", target.Name(), def.Title())
	}
	return fmt.Sprintf("Stopped %s for %s.", def.Title(), target.Name())
}

func (h *Handler) executeComplete(c *Command) string {
	target, def, msg := h.resolve(c, "Usage: complete <player> <quest>")
	if msg != "" {
		return msg
	}
	h.engine.ForceComplete(target, def)
	return fmt.Sprintf("Completed %s for %s.", def.Title(), target.Name())
}

func (h *Handler) executeReset(c *Command) string {
	if err := c.RequireArgs(1, "Usage: reset <player> [quest]"); err != nil {
		return err.Error()
	}
	target, ok := h.players.Find(c.Args[0])
	if !ok {
		return fmt.Sprintf("Player not found: %s", c.Args[0])
	}

	if len(c.Args) >= 2 {
		def := h.registry.Get(c.Args[1])
		if def == nil {
			return fmt.Sprintf("Unknown quest: %s", c.Args[1])
		}
		if err := h.cache.ResetQuest(target.ID(), def.ID); err != nil {
			return fmt.Sprintf("Reset failed: %v", err)
		}
		return fmt.Sprintf("Reset %s for %s.", def.Title(), target.Name())
	}

	if err := h.cache.Reset(target.ID()); err != nil {
		return fmt.Sprintf("Reset failed: %v", err)
	}
	return fmt.Sprintf("Reset all quest progress for %s.", target.Name())
}

func (h *Handler) executeTop(c *Command) string {
	limit := 10
	if len(c.Args) >= 1 {
		if n, err := strconv.Atoi(c.Args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	totals, err := h.cache.LoadAllPoints()
	if err != nil {
		return fmt.Sprintf("Leaderboard unavailable: %v", err)
	}
	if len(totals) == 0 {
		return "No quest points recorded yet."
	}

	// Live cached states carry names; backend-only players fall back
	// to a shortened id.
	names := make(map[uuid.UUID]string)
	h.cache.Each(func(state *progress.State) {
		names[state.PlayerID] = state.PlayerName
	})

	type row struct {
		id     uuid.UUID
		points int
	}
	rows := make([]row, 0, len(totals))
	for id, points := range totals {
		rows = append(rows, row{id: id, points: points})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].points != rows[j].points {
			return rows[i].points > rows[j].points
		}
		return rows[i].id.String() < rows[j].id.String()
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	var sb strings.Builder
	sb.WriteString("=== Quest Points Leaderboard ===\n")
	for i, r := range rows {
		name := names[r.id]
		if name == "" {
			name = r.id.String()[:8]
		}
		sb.WriteString(fmt.Sprintf("%d. %s - %d\n", i+1, name, r.points))
	}
	return strings.TrimRight(sb.String(), "\n")
}
