package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashgrove/questforge/internal/engine"
	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/placeholder"
)

// executeQuest handles the quest/quests/journal command.
func (h *Handler) executeQuest(c *Command, p host.Player) string {
	if len(c.Args) == 0 {
		return h.showSummary(p)
	}

	switch strings.ToLower(c.Args[0]) {
	case "list":
		return h.showList(p)
	case "start", "accept":
		if err := c.RequireArgs(2, "Usage: quest start <id>"); err != nil {
			return err.Error()
		}
		return h.startQuest(p, c.Args[1])
	case "cancel", "abandon":
		if err := c.RequireArgs(2, "Usage: quest cancel <id>"); err != nil {
			return err.Error()
		}
		return h.cancelQuest(p, c.Args[1])
	case "info":
		if err := c.RequireArgs(2, "Usage: quest info <id>"); err != nil {
			return err.Error()
		}
		return h.showInfo(p, c.Args[1])
	default:
		// Bare id is a shorthand for info.
		return h.showInfo(p, c.Args[0])
	}
}

func (h *Handler) showSummary(p host.Player) string {
	state, err := h.cache.Get(p.ID(), p.Name())
	if err != nil && state == nil {
		return "Quest journal unavailable."
	}

	active := state.ActiveCount()
	completed := state.CompletedCount()
	if active == 0 && completed == 0 {
		return "Your quest journal is empty."
	}

	var sb strings.Builder
	sb.WriteString("=== Quest Journal ===\n")
	sb.WriteString(fmt.Sprintf("Active Quests: %d\n", active))
	sb.WriteString(fmt.Sprintf("Completed Quests: %d\n", completed))
	sb.WriteString(fmt.Sprintf("Quest Points: %d\n", state.TotalPoints()))
	if active > 0 {
		sb.WriteString("\nUse 'quest list' to see your active quests.")
	}
	return sb.String()
}

func (h *Handler) showList(p host.Player) string {
	state, err := h.cache.Get(p.ID(), p.Name())
	if err != nil && state == nil {
		return "Quest journal unavailable."
	}

	ids := state.ActiveIDs()
	if len(ids) == 0 {
		return "You have no active quests."
	}

	var sb strings.Builder
	sb.WriteString("=== Active Quests ===\n")
	for i, id := range ids {
		def := h.registry.Get(id)
		if def == nil {
			// Definition removed since the quest was started.
			sb.WriteString(fmt.Sprintf("%d. %s (no longer available)\n", i+1, id))
			continue
		}
		sb.WriteString(fmt.Sprintf("%d. %s [%s]\n", i+1, def.Title(),
			placeholder.FormatProgress(def, state.Value(id))))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *Handler) showInfo(p host.Player, id string) string {
	def := h.registry.Get(id)
	if def == nil {
		return fmt.Sprintf("Unknown quest: %s", id)
	}
	state, err := h.cache.Get(p.ID(), p.Name())
	if err != nil && state == nil {
		return "Quest journal unavailable."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== %s ===\n", def.Title()))
	for _, line := range def.Display.Description {
		sb.WriteString(line + "\n")
	}
	switch {
	case state.IsActive(def.ID):
		sb.WriteString(fmt.Sprintf("Status: active [%s]\n",
			placeholder.FormatProgress(def, state.Value(def.ID))))
	case state.IsCompleted(def.ID):
		sb.WriteString("Status: completed\n")
	default:
		sb.WriteString("Status: not started\n")
	}
	if def.Points > 0 {
		sb.WriteString(fmt.Sprintf("Reward: %d points\n", def.Points))
	}
	if def.Display.RewardText != "" {
		sb.WriteString(fmt.Sprintf("Reward: %s\n", def.Display.RewardText))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *Handler) startQuest(p host.Player, id string) string {
	def := h.registry.Get(id)
	if def == nil {
		return fmt.Sprintf("Unknown quest: %s", id)
	}
	switch err := h.engine.StartQuest(p, def); {
	case err == nil:
		return fmt.Sprintf("Accepted: %s", def.Title())
	case errors.Is(err, engine.ErrAlreadyActive):
		return fmt.Sprintf("You already have %s active.", def.Title())
	case errors.Is(err, engine.ErrNotEligible):
		return fmt.Sprintf("You are not eligible for %s.", def.Title())
	default:
		return fmt.Sprintf("Could not start %s: %v", def.Title(), err)
	}
}

func (h *Handler) cancelQuest(p host.Player, id string) string {
	def := h.registry.Get(id)
	if def == nil {
		return fmt.Sprintf("Unknown quest: %s", id)
	}
	if err := h.engine.CancelQuest(p, def); err != nil {
		return fmt.Sprintf("%s is not active.", def.Title())
	}
	return fmt.Sprintf("Abandoned: %s", def.Title())
}

func (h *Handler) executePoints(p host.Player) string {
	state, err := h.cache.Get(p.ID(), p.Name())
	if err != nil && state == nil {
		return "Quest journal unavailable."
	}
	return fmt.Sprintf("Quest points: %d", state.TotalPoints())
}
