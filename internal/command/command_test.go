package command

import (
	"strings"
	"testing"
	"time"

	"github.com/ashgrove/questforge/internal/action"
	"github.com/ashgrove/questforge/internal/condition"
	"github.com/ashgrove/questforge/internal/engine"
	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/match"
	"github.com/ashgrove/questforge/internal/quest"
	"github.com/ashgrove/questforge/internal/store"
	"github.com/google/uuid"
)

type syncScheduler struct{}

func (syncScheduler) RunSync(fn func())                   { fn() }
func (syncScheduler) RunLater(_ time.Duration, fn func()) { fn() }

type directory map[string]host.Player

func (d directory) Find(ref string) (host.Player, bool) {
	p, ok := d[strings.ToLower(ref)]
	return p, ok
}

func newHandler(t *testing.T) (*Handler, host.Player) {
	t.Helper()

	registry := quest.NewRegistry()
	registry.Load(map[string]*quest.Definition{
		"mine_stone": {
			ID: "mine_stone", Name: "Stone Miner", Event: "BLOCK_BREAK",
			Targets: []string{"STONE"}, Amount: 10, Points: 10,
			Display: quest.Display{ProgressFormat: "%value%/%amount% mined"},
		},
	})

	backend, err := store.OpenFlatFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cache := store.NewCached(backend, time.Hour)
	t.Cleanup(func() { cache.Close() })

	sched := syncScheduler{}
	eng := engine.New(engine.Options{
		Registry:   registry,
		Store:      cache,
		Matchers:   match.NewRegistry(),
		Conditions: condition.New(0, nil),
		Actions:    action.New(sched, nil, nil, nil, nil, nil),
		Scheduler:  sched,
		Workers:    1,
	})
	t.Cleanup(eng.Shutdown)

	player := host.NewPlayer(uuid.New(), "Alice", nil)
	dir := directory{"alice": player}
	return NewHandler(eng, registry, cache, dir, t.TempDir()), player
}

func TestQuestStartCancelFlow(t *testing.T) {
	h, p := newHandler(t)

	if got := h.Execute(p, "quest start mine_stone"); !strings.Contains(got, "Accepted") {
		t.Errorf("start = %q", got)
	}
	if got := h.Execute(p, "quest start mine_stone"); !strings.Contains(got, "already") {
		t.Errorf("double start = %q", got)
	}
	if got := h.Execute(p, "quest cancel mine_stone"); !strings.Contains(got, "Abandoned") {
		t.Errorf("cancel = %q", got)
	}
	if got := h.Execute(p, "quest cancel mine_stone"); !strings.Contains(got, "not active") {
		t.Errorf("cancel inactive = %q", got)
	}
}

func TestUnknownQuestIsUserError(t *testing.T) {
	h, p := newHandler(t)

	got := h.Execute(p, "quest start no_such_quest")
	if !strings.Contains(got, "Unknown quest: no_such_quest") {
		t.Errorf("start unknown = %q", got)
	}
	if got := h.Execute(p, "quest info no_such_quest"); !strings.Contains(got, "Unknown quest") {
		t.Errorf("info unknown = %q", got)
	}
}

func TestQuestListShowsProgress(t *testing.T) {
	h, p := newHandler(t)

	if got := h.Execute(p, "quest list"); !strings.Contains(got, "no active quests") {
		t.Errorf("empty list = %q", got)
	}

	h.Execute(p, "quest start mine_stone")
	got := h.Execute(p, "quest list")
	if !strings.Contains(got, "Stone Miner") || !strings.Contains(got, "0/10 mined") {
		t.Errorf("list = %q", got)
	}
}

func TestQuestSummaryAndPoints(t *testing.T) {
	h, p := newHandler(t)

	if got := h.Execute(p, "quest"); !strings.Contains(got, "empty") {
		t.Errorf("empty summary = %q", got)
	}

	h.Execute(p, "quest start mine_stone")
	h.ExecuteAdmin(p, "complete alice mine_stone")

	if got := h.Execute(p, "points"); !strings.Contains(got, "10") {
		t.Errorf("points = %q", got)
	}
	summary := h.Execute(p, "quest")
	if !strings.Contains(summary, "Completed Quests: 1") {
		t.Errorf("summary = %q", summary)
	}
}

func TestAdminGiveStopReset(t *testing.T) {
	h, p := newHandler(t)

	if got := h.ExecuteAdmin(p, "give alice mine_stone"); !strings.Contains(got, "Gave") {
		t.Errorf("give = %q", got)
	}
	if got := h.ExecuteAdmin(p, "give bob mine_stone"); !strings.Contains(got, "Player not found: bob") {
		t.Errorf("give unknown player = %q", got)
	}
	if got := h.ExecuteAdmin(p, "stop alice mine_stone"); !strings.Contains(got, "Stopped") {
		t.Errorf("stop = %q", got)
	}
	if got := h.ExecuteAdmin(p, "stop alice mine_stone"); !strings.Contains(got, "not") {
		t.Errorf("stop inactive = %q", got)
	}

	h.ExecuteAdmin(p, "complete alice mine_stone")
	if got := h.ExecuteAdmin(p, "reset alice"); !strings.Contains(got, "Reset all") {
		t.Errorf("reset = %q", got)
	}
	if got := h.Execute(p, "points"); !strings.Contains(got, "Quest points: 0") {
		t.Errorf("points after reset = %q", got)
	}
}

func TestAdminTopLeaderboard(t *testing.T) {
	h, p := newHandler(t)

	if got := h.ExecuteAdmin(p, "top"); !strings.Contains(got, "No quest points") {
		t.Errorf("empty top = %q", got)
	}

	h.ExecuteAdmin(p, "give alice mine_stone")
	h.ExecuteAdmin(p, "complete alice mine_stone")

	got := h.ExecuteAdmin(p, "top 5")
	if !strings.Contains(got, "1. Alice - 10") {
		t.Errorf("top = %q", got)
	}
}

func TestAdminReloadFailureKeepsLoadedSet(t *testing.T) {
	h, p := newHandler(t)
	h.questDir = "/no/such/directory"

	got := h.ExecuteAdmin(p, "reload")
	if !strings.Contains(got, "Reload failed") {
		t.Errorf("reload = %q", got)
	}
	if h.registry.Get("mine_stone") == nil {
		t.Error("a failed reload must keep the previous definitions")
	}
}

func TestUnknownCommands(t *testing.T) {
	h, p := newHandler(t)

	if got := h.Execute(p, "dance"); !strings.Contains(got, "Unknown command") {
		t.Errorf("player unknown = %q", got)
	}
	if got := h.ExecuteAdmin(p, "explode"); !strings.Contains(got, "Unknown admin command") {
		t.Errorf("admin unknown = %q", got)
	}
}
