package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/ashgrove/questforge/internal/logger"
	"github.com/ashgrove/questforge/internal/progress"
	"github.com/ashgrove/questforge/internal/quest"
)

// resetLoop sweeps daily quests once a minute, rearming them for every
// live player when their reset time passes.
func (e *Engine) resetLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	last := e.now()
	for {
		select {
		case <-ticker.C:
			now := e.now()
			e.sweepDailyResets(last, now)
			last = now
		case <-e.resetStop:
			return
		}
	}
}

// sweepDailyResets rearms every daily quest whose reset time fell
// inside (last, now]. Only completed, currently-inactive instances are
// rearmed; points already awarded are kept.
func (e *Engine) sweepDailyResets(last, now time.Time) {
	for _, def := range e.registry.All() {
		if def.ResetPolicy != "daily" {
			continue
		}
		hour, minute, ok := parseResetTime(def.ResetTime)
		if !ok {
			logger.Warning("Unparseable reset time", "quest", def.ID, "reset_time", def.ResetTime)
			continue
		}
		if !boundaryCrossed(last, now, hour, minute) {
			continue
		}
		e.rearmDaily(def)
	}
}

func (e *Engine) rearmDaily(def *quest.Definition) {
	logger.Info("Daily quest reset", "quest", def.ID)
	e.store.Each(func(state *progress.State) {
		id := state.PlayerID
		e.withPlayer(id, func() {
			if !state.IsCompleted(def.ID) || state.IsActive(def.ID) {
				return
			}
			state.Start(def.ID)
			e.store.MarkDirty(id)
		})
	})
}

// parseResetTime parses "HH:MM"; an empty string means midnight.
func parseResetTime(s string) (hour, minute int, ok bool) {
	if s == "" {
		return 0, 0, true
	}
	hs, ms, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(hs)
	m, err2 := strconv.Atoi(ms)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// boundaryCrossed reports whether the daily boundary at hour:minute
// falls inside (last, now].
func boundaryCrossed(last, now time.Time, hour, minute int) bool {
	if !now.After(last) {
		return false
	}
	// Check the boundary on each calendar day the interval touches.
	for day := last; !day.After(now.Add(24 * time.Hour)); day = day.Add(24 * time.Hour) {
		b := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
		if b.After(last) && !b.After(now) {
			return true
		}
	}
	return false
}
