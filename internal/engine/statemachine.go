package engine

import (
	"errors"
	"fmt"

	"github.com/ashgrove/questforge/internal/action"
	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/logger"
	"github.com/ashgrove/questforge/internal/progress"
	"github.com/ashgrove/questforge/internal/quest"
)

var (
	// ErrAlreadyActive is returned when starting a quest the player
	// already has active.
	ErrAlreadyActive = errors.New("quest already active")

	// ErrNotActive is returned when cancelling or stopping a quest the
	// player does not have active.
	ErrNotActive = errors.New("quest not active")

	// ErrNotEligible is returned when a board quest rejects the player.
	ErrNotEligible = errors.New("not eligible for this quest")
)

// StartQuest activates a quest for a player: accept actions, the
// active mark, then start actions. Starting an already-active quest is
// an error and changes nothing.
func (e *Engine) StartQuest(player host.Player, def *quest.Definition) error {
	var err error
	e.withPlayer(player.ID(), func() {
		state, _ := e.store.Get(player.ID(), player.Name())
		if state == nil {
			err = fmt.Errorf("no progress state for %s", player.Name())
			return
		}
		err = e.startLocked(player, state, def)
	})
	return err
}

// startLocked runs the start flow under the player's lock.
func (e *Engine) startLocked(player host.Player, state *progress.State, def *quest.Definition) error {
	if state.IsActive(def.ID) {
		return ErrAlreadyActive
	}
	if def.Board && !e.eligible(player, def) {
		return ErrNotEligible
	}

	e.actions.Run(player, def.Title(), def.ActionsFor(quest.PhaseAccept))
	state.Start(def.ID)
	e.store.MarkDirty(player.ID())
	e.actions.Run(player, def.Title(), def.ActionsFor(quest.PhaseStart))

	e.tell(player, fmt.Sprintf("Quest started: %s", def.Title()))
	logger.Debug("Quest started", "player", player.Name(), "quest", def.ID)
	return nil
}

// CancelQuest abandons an active quest at the player's request. The
// counter is lost; earlier completions and points are untouched.
func (e *Engine) CancelQuest(player host.Player, def *quest.Definition) error {
	return e.deactivate(player, def, quest.PhaseCancel, "Quest cancelled: %s")
}

// StopQuest force-stops an active quest (admin action). Runs the stop
// phase actions instead of the cancel ones.
func (e *Engine) StopQuest(player host.Player, def *quest.Definition) error {
	return e.deactivate(player, def, quest.PhaseStop, "Quest stopped: %s")
}

func (e *Engine) deactivate(player host.Player, def *quest.Definition, phase quest.Phase, notice string) error {
	var err error
	e.withPlayer(player.ID(), func() {
		state, _ := e.store.Get(player.ID(), player.Name())
		if state == nil || !state.IsActive(def.ID) {
			err = ErrNotActive
			return
		}
		e.actions.Run(player, def.Title(), def.ActionsFor(phase))
		state.Cancel(def.ID)
		e.store.MarkDirty(player.ID())
		e.tell(player, fmt.Sprintf(notice, def.Title()))
		logger.Debug("Quest deactivated", "player", player.Name(), "quest", def.ID, "phase", string(phase))
	})
	return err
}

// ForceComplete completes a quest for a player regardless of its
// counter, activating it first if needed. Always awards points and
// always runs the full completion flow.
func (e *Engine) ForceComplete(player host.Player, def *quest.Definition) {
	e.withPlayer(player.ID(), func() {
		state, _ := e.store.Get(player.ID(), player.Name())
		if state == nil {
			return
		}
		if !state.IsActive(def.ID) {
			state.Start(def.ID)
		}
		e.complete(player, state, def)
	})
}

// fail aborts an active quest because a fail condition held: fail
// actions, then deactivation with the counter wiped.
func (e *Engine) fail(player host.Player, state *progress.State, def *quest.Definition) {
	e.actions.Run(player, def.Title(), def.ActionsFor(quest.PhaseFail))
	state.Cancel(def.ID)
	e.store.MarkDirty(player.ID())
	e.tell(player, fmt.Sprintf("Quest failed: %s", def.Title()))
	logger.Debug("Quest failed", "player", player.Name(), "quest", def.ID)
}

// complete runs the completion flow for an active quest: completed
// mark plus points, success actions, confirmation, then chain and
// auto-repeat resolution. Caller holds the player's lock, so a second
// trigger in the same pass finds the quest inactive and cannot
// double-award.
func (e *Engine) complete(player host.Player, state *progress.State, def *quest.Definition) {
	if !state.Complete(def.ID, def.Points) {
		return
	}
	e.store.MarkDirty(player.ID())

	e.actions.Run(player, def.Title(), def.ActionsFor(quest.PhaseSuccess))
	if def.Points > 0 {
		e.tell(player, fmt.Sprintf("Quest completed: %s (+%d points)", def.Title(), def.Points))
	} else {
		e.tell(player, fmt.Sprintf("Quest completed: %s", def.Title()))
	}
	logger.Info("Quest completed", "player", player.Name(), "quest", def.ID, "points", def.Points)

	chained := e.resolveChain(player, state, def)

	// Auto-repeat rearms the same quest unless a chain quest took over
	// or the quest is board-only.
	if def.AutoRepeats() && !def.Board && !chained {
		state.Start(def.ID)
		e.store.MarkDirty(player.ID())
		e.actions.Run(player, def.Title(), def.ActionsFor(quest.PhaseRestart))
		e.actions.Run(player, def.Title(), def.ActionsFor(quest.PhaseRepeat))
		logger.Debug("Quest rearmed", "player", player.Name(), "quest", def.ID)
	}
}

// resolveChain starts the follow-up quest named by the completed one.
// Board follow-ups are announced but never auto-started. Reports
// whether a follow-up quest actually went active.
func (e *Engine) resolveChain(player host.Player, state *progress.State, def *quest.Definition) bool {
	if def.Chain == "" {
		return false
	}
	next := e.registry.Get(def.Chain)
	if next == nil {
		logger.Warning("Chain references an unknown quest", "quest", def.ID, "chain", def.Chain)
		return false
	}
	if next.Board {
		e.tell(player, fmt.Sprintf("A new quest awaits on the board: %s", next.Title()))
		return false
	}
	if err := e.startLocked(player, state, next); err != nil {
		logger.Debug("Chain start declined", "quest", next.ID, "error", err)
		return false
	}
	return true
}

// tell delivers a notice to the player on the main context.
func (e *Engine) tell(player host.Player, msg string) {
	e.scheduler.RunSync(func() {
		player.SendMessage(action.Colorize(msg))
	})
}
