package engine

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashgrove/questforge/internal/action"
	"github.com/ashgrove/questforge/internal/condition"
	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/match"
	"github.com/ashgrove/questforge/internal/progress"
	"github.com/ashgrove/questforge/internal/quest"
	"github.com/ashgrove/questforge/internal/store"
	"github.com/google/uuid"
)

// syncScheduler runs scheduled work inline; tests do not need a main
// loop goroutine.
type syncScheduler struct{}

func (syncScheduler) RunSync(fn func())                   { fn() }
func (syncScheduler) RunLater(_ time.Duration, fn func()) { fn() }

// inbox collects messages delivered to a player across goroutines.
type inbox struct {
	mu   sync.Mutex
	msgs []string
}

func (b *inbox) add(m string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, m)
}

func (b *inbox) contains(sub string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

type fixture struct {
	engine *Engine
	cache  *store.Cached
	player host.Player
	inbox  *inbox
}

func newFixture(t *testing.T, dedup time.Duration, defs map[string]*quest.Definition) *fixture {
	t.Helper()

	registry := quest.NewRegistry()
	registry.Load(defs)

	backend, err := store.OpenFlatFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cache := store.NewCached(backend, time.Hour)
	t.Cleanup(func() { cache.Close() })

	matchers := match.NewRegistry()
	matchers.Register("BLOCK_BREAK", match.SubjectEquals)
	matchers.Register("MOB_KILL", match.SubjectEquals)
	matchers.Register("SCRIPT_POINT", match.SubjectEquals)

	sched := syncScheduler{}
	conditions := condition.New(0, nil)
	actions := action.New(sched, nil, nil, nil, nil, nil)

	e := New(Options{
		Registry:    registry,
		Store:       cache,
		Matchers:    matchers,
		Conditions:  conditions,
		Actions:     actions,
		Scheduler:   sched,
		Workers:     2,
		DedupWindow: dedup,
	})
	t.Cleanup(e.Shutdown)

	box := &inbox{}
	player := host.NewPlayer(uuid.New(), "Alice", box.add)
	return &fixture{engine: e, cache: cache, player: player, inbox: box}
}

func (f *fixture) start(t *testing.T, id string) {
	t.Helper()
	def := f.engine.registry.Get(id)
	if def == nil {
		t.Fatalf("quest %q not loaded", id)
	}
	if err := f.engine.StartQuest(f.player, def); err != nil {
		t.Fatalf("StartQuest(%s): %v", id, err)
	}
}

func (f *fixture) state(t *testing.T) *progress.State {
	t.Helper()
	s, err := f.cache.Get(f.player.ID(), f.player.Name())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func blockBreak(subject string) *host.Event {
	return &host.Event{Name: "BLOCK_BREAK", Subject: subject}
}

func mineStone(amount int) *quest.Definition {
	return &quest.Definition{
		ID: "mine_stone", Name: "Stone Miner", Event: "BLOCK_BREAK",
		Targets: []string{"STONE"}, Amount: amount, Points: 10,
	}
}

func TestCounterQuestCompletesAtAmount(t *testing.T) {
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": mineStone(3)})
	f.start(t, "mine_stone")

	for i := 0; i < 3; i++ {
		f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))
	}

	waitFor(t, "completion", func() bool { return f.state(t).IsCompleted("mine_stone") })
	sv := f.state(t)
	if sv.IsActive("mine_stone") {
		t.Error("completed quest must not stay active")
	}
	if sv.Value("mine_stone") != 0 {
		t.Errorf("counter after completion = %d, want 0", sv.Value("mine_stone"))
	}
	if sv.Points("mine_stone") != 10 {
		t.Errorf("points = %d, want 10", sv.Points("mine_stone"))
	}
	if !f.inbox.contains("Quest completed") {
		t.Error("player should get a completion notice")
	}
}

func TestNonMatchingTargetDoesNotAdvance(t *testing.T) {
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": mineStone(3)})
	f.start(t, "mine_stone")

	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("DIRT"))
	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))

	waitFor(t, "one increment", func() bool { return f.state(t).Value("mine_stone") == 1 })
	if f.state(t).Value("mine_stone") != 1 {
		t.Errorf("value = %d, want 1", f.state(t).Value("mine_stone"))
	}
}

func TestInactiveQuestIgnoresTriggers(t *testing.T) {
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": mineStone(3)})

	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))

	time.Sleep(20 * time.Millisecond)
	sv := f.state(t)
	if sv.Value("mine_stone") != 0 || sv.IsActive("mine_stone") {
		t.Error("triggers must not touch a quest that was never started")
	}
}

func TestAutoRepeatRearms(t *testing.T) {
	def := mineStone(1)
	def.Repeat = -1
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": def})
	f.start(t, "mine_stone")

	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))

	waitFor(t, "rearm", func() bool {
		sv := f.state(t)
		return sv.IsCompleted("mine_stone") && sv.IsActive("mine_stone")
	})
	if f.state(t).Value("mine_stone") != 0 {
		t.Error("rearmed quest must restart with a zero counter")
	}

	// The rearmed instance completes again without a manual restart.
	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))
	waitFor(t, "second rearm", func() bool { return f.state(t).IsActive("mine_stone") })
}

func TestNoDoubleAwardOnTriggerBurst(t *testing.T) {
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": mineStone(1)})
	f.start(t, "mine_stone")

	for i := 0; i < 5; i++ {
		f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))
	}

	waitFor(t, "completion", func() bool { return f.state(t).IsCompleted("mine_stone") })
	time.Sleep(20 * time.Millisecond)
	sv := f.state(t)
	if sv.TotalPoints() != 10 {
		t.Errorf("total points = %d, want exactly one award of 10", sv.TotalPoints())
	}
	if sv.IsActive("mine_stone") {
		t.Error("non-repeating quest must stay completed")
	}
}

func TestDedupWindowCollapsesDuplicates(t *testing.T) {
	f := newFixture(t, time.Hour, map[string]*quest.Definition{"mine_stone": mineStone(10)})
	f.start(t, "mine_stone")

	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))
	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))
	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))

	waitFor(t, "first increment", func() bool { return f.state(t).Value("mine_stone") == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := f.state(t).Value("mine_stone"); got != 1 {
		t.Errorf("value = %d, want 1 (duplicates inside the window must drop)", got)
	}
}

func TestFailConditionCancels(t *testing.T) {
	def := mineStone(5)
	def.FailConditions = []string{"event.cheated == true"}
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": def})
	f.start(t, "mine_stone")

	ev := blockBreak("STONE")
	ev.Context = map[string]any{"cheated": true}
	f.engine.Handle(f.player, "BLOCK_BREAK", ev)

	waitFor(t, "fail", func() bool { return !f.state(t).IsActive("mine_stone") })
	sv := f.state(t)
	if sv.IsCompleted("mine_stone") || sv.Points("mine_stone") != 0 {
		t.Error("a failed quest must not award anything")
	}
	if !f.inbox.contains("Quest failed") {
		t.Error("player should get a failure notice")
	}
}

func TestFailConditionWithMissingKeyKeepsQuestAlive(t *testing.T) {
	def := mineStone(2)
	def.FailConditions = []string{"event.no_such_key == true"}
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": def})
	f.start(t, "mine_stone")

	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))

	waitFor(t, "increment", func() bool { return f.state(t).Value("mine_stone") == 1 })
	if !f.state(t).IsActive("mine_stone") {
		t.Error("a fail condition over a missing key must not fire")
	}
}

func TestSuccessConditionsGateProgress(t *testing.T) {
	def := mineStone(1)
	def.SuccessConditions = []string{"event.depth >= 40"}
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": def})
	f.start(t, "mine_stone")

	shallow := blockBreak("STONE")
	shallow.Context = map[string]any{"depth": 10}
	f.engine.Handle(f.player, "BLOCK_BREAK", shallow)

	time.Sleep(20 * time.Millisecond)
	if f.state(t).Value("mine_stone") != 0 {
		t.Error("unsatisfied success condition must not advance the counter")
	}

	deep := blockBreak("STONE")
	deep.Context = map[string]any{"depth": 55}
	f.engine.Handle(f.player, "BLOCK_BREAK", deep)
	waitFor(t, "completion", func() bool { return f.state(t).IsCompleted("mine_stone") })
}

func TestDirectQuestIgnoresCounter(t *testing.T) {
	def := mineStone(50)
	def.Direct = true
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": def})
	f.start(t, "mine_stone")

	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))

	waitFor(t, "direct completion", func() bool { return f.state(t).IsCompleted("mine_stone") })
}

func TestChainStartsFollowUp(t *testing.T) {
	first := mineStone(1)
	first.Chain = "mine_iron"
	second := &quest.Definition{
		ID: "mine_iron", Name: "Iron Miner", Event: "BLOCK_BREAK",
		Targets: []string{"IRON_ORE"}, Amount: 5, Points: 20,
	}
	f := newFixture(t, 0, map[string]*quest.Definition{
		"mine_stone": first, "mine_iron": second,
	})
	f.start(t, "mine_stone")

	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))

	waitFor(t, "chain start", func() bool { return f.state(t).IsActive("mine_iron") })
}

func TestChainToBoardQuestOnlyAnnounces(t *testing.T) {
	first := mineStone(1)
	first.Chain = "board_hunt"
	board := &quest.Definition{
		ID: "board_hunt", Name: "Board Hunt", Event: "MOB_KILL",
		Amount: 1, Board: true,
	}
	f := newFixture(t, 0, map[string]*quest.Definition{
		"mine_stone": first, "board_hunt": board,
	})
	f.start(t, "mine_stone")

	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))

	waitFor(t, "completion", func() bool { return f.state(t).IsCompleted("mine_stone") })
	time.Sleep(20 * time.Millisecond)
	if f.state(t).IsActive("board_hunt") {
		t.Error("a board follow-up must be announced, never auto-started")
	}
	if !f.inbox.contains("Board Hunt") {
		t.Error("player should be told about the board follow-up")
	}
}

func TestStartQuestAlreadyActive(t *testing.T) {
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": mineStone(3)})
	f.start(t, "mine_stone")

	err := f.engine.StartQuest(f.player, f.engine.registry.Get("mine_stone"))
	if !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second start = %v, want ErrAlreadyActive", err)
	}
}

func TestCancelAndStop(t *testing.T) {
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": mineStone(3)})
	def := f.engine.registry.Get("mine_stone")

	if err := f.engine.CancelQuest(f.player, def); !errors.Is(err, ErrNotActive) {
		t.Errorf("cancel inactive = %v, want ErrNotActive", err)
	}

	f.start(t, "mine_stone")
	if err := f.engine.CancelQuest(f.player, def); err != nil {
		t.Fatalf("cancel active: %v", err)
	}
	if f.state(t).IsActive("mine_stone") {
		t.Error("cancel must deactivate")
	}

	f.start(t, "mine_stone")
	if err := f.engine.StopQuest(f.player, def); err != nil {
		t.Fatalf("stop active: %v", err)
	}
	if f.state(t).IsActive("mine_stone") {
		t.Error("stop must deactivate")
	}
}

func TestForceCompleteInactiveQuest(t *testing.T) {
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": mineStone(3)})

	f.engine.ForceComplete(f.player, f.engine.registry.Get("mine_stone"))

	sv := f.state(t)
	if !sv.IsCompleted("mine_stone") || sv.Points("mine_stone") != 10 {
		t.Error("force complete must award and complete even when inactive")
	}
}

func TestBoardEligibilityGate(t *testing.T) {
	board := &quest.Definition{
		ID: "board_hunt", Name: "Board Hunt", Event: "MOB_KILL", Amount: 1, Board: true,
	}
	f := newFixture(t, 0, map[string]*quest.Definition{"board_hunt": board})
	f.engine.eligible = func(host.Player, *quest.Definition) bool { return false }

	err := f.engine.StartQuest(f.player, board)
	if !errors.Is(err, ErrNotEligible) {
		t.Errorf("start = %v, want ErrNotEligible", err)
	}
}

func TestHandleCustomUsesContextSubject(t *testing.T) {
	def := &quest.Definition{
		ID: "script_goal", Name: "Script Goal", Event: "SCRIPT_POINT",
		Targets: []string{"CHECKPOINT_A"}, Amount: 1, Points: 5,
	}
	f := newFixture(t, 0, map[string]*quest.Definition{"script_goal": def})
	f.start(t, "script_goal")

	f.engine.HandleCustom(f.player, "script_point", map[string]any{"subject": "CHECKPOINT_A"})

	waitFor(t, "custom completion", func() bool { return f.state(t).IsCompleted("script_goal") })
}

func TestHandleCustomConditionsSeeContext(t *testing.T) {
	def := &quest.Definition{
		ID: "script_goal", Name: "Script Goal", Event: "SCRIPT_POINT",
		Amount: 1, Points: 5,
		SuccessConditions: []string{"level >= 5"},
	}
	f := newFixture(t, 0, map[string]*quest.Definition{"script_goal": def})
	f.start(t, "script_goal")

	// Below the threshold: "level" must resolve from the context map,
	// not fall through to a literal string comparison.
	f.engine.HandleCustom(f.player, "script_point", map[string]any{"level": 3})

	time.Sleep(20 * time.Millisecond)
	sv := f.state(t)
	if sv.IsCompleted("script_goal") || sv.Value("script_goal") != 0 {
		t.Fatal("a custom trigger below the condition threshold must not advance the quest")
	}

	f.engine.HandleCustom(f.player, "script_point", map[string]any{"level": 7})
	waitFor(t, "custom completion", func() bool { return f.state(t).IsCompleted("script_goal") })
}

type soloDirectory struct{ player host.Player }

func (d soloDirectory) Find(ref string) (host.Player, bool) {
	if strings.EqualFold(ref, d.player.Name()) || ref == d.player.ID().String() {
		return d.player, true
	}
	return nil, false
}

func TestHandleDynamic(t *testing.T) {
	def := &quest.Definition{
		ID: "mythic_slayer", Name: "Mythic Slayer", Event: "MYTHIC_KILL",
		Targets: []string{"FIRE_LORD"}, Amount: 1, Points: 50, Type: "custom",
		Custom: &quest.CustomBinding{
			EventClass: "io.mythic.MythicMobDeathEvent",
			Captures:   map[string]string{"mob_level": "mob.level"},
		},
		SuccessConditions: []string{"mob_level >= 3"},
	}
	f := newFixture(t, 0, map[string]*quest.Definition{"mythic_slayer": def})
	f.engine.players = soloDirectory{player: f.player}
	f.start(t, "mythic_slayer")

	f.engine.RegisterExtractor("io.mythic.MythicMobDeathEvent", func(payload map[string]any) (string, string, bool) {
		killer, _ := payload["killer"].(string)
		mob, _ := payload["mob"].(map[string]any)
		name, _ := mob["type"].(string)
		return killer, name, true
	})

	f.engine.HandleDynamic("io.mythic.MythicMobDeathEvent", map[string]any{
		"killer": "Alice",
		"mob":    map[string]any{"type": "FIRE_LORD", "level": 5},
	})

	waitFor(t, "dynamic completion", func() bool { return f.state(t).IsCompleted("mythic_slayer") })
}

func TestHandleDynamicWithoutExtractorIsDropped(t *testing.T) {
	def := &quest.Definition{
		ID: "mythic_slayer", Name: "Mythic Slayer", Event: "MYTHIC_KILL",
		Amount: 1, Type: "custom",
		Custom: &quest.CustomBinding{EventClass: "io.mythic.MythicMobDeathEvent"},
	}
	f := newFixture(t, 0, map[string]*quest.Definition{"mythic_slayer": def})
	f.engine.players = soloDirectory{player: f.player}
	f.start(t, "mythic_slayer")

	f.engine.HandleDynamic("io.mythic.MythicMobDeathEvent", map[string]any{"killer": "Alice"})

	time.Sleep(20 * time.Millisecond)
	if f.state(t).IsCompleted("mythic_slayer") {
		t.Error("an unbound dynamic class must never trigger")
	}
}

func TestPanicInOneQuestDoesNotPoisonOthers(t *testing.T) {
	bad := mineStone(1)
	bad.ID = "bad_quest"
	bad.Targets = []string{"EXPLODEY"}
	good := mineStone(1)
	f := newFixture(t, 0, map[string]*quest.Definition{
		"bad_quest": bad, "mine_stone": good,
	})
	// A matcher that panics stands in for a faulty quest integration.
	f.engine.matchers.Register("BLOCK_BREAK", func(p host.Player, ev *host.Event, target string) bool {
		if target == "EXPLODEY" {
			panic("matcher blew up")
		}
		return strings.EqualFold(ev.Subject, target)
	})
	f.start(t, "bad_quest")
	f.start(t, "mine_stone")

	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))

	waitFor(t, "good quest completion", func() bool { return f.state(t).IsCompleted("mine_stone") })
}

func TestDailyResetRearmsCompletedQuest(t *testing.T) {
	def := mineStone(1)
	def.ResetPolicy = "daily"
	def.ResetTime = "04:00"
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": def})
	f.start(t, "mine_stone")
	f.engine.ForceComplete(f.player, def)

	if f.state(t).IsActive("mine_stone") {
		t.Fatal("precondition: quest completed and inactive")
	}

	last := time.Date(2026, 8, 27, 3, 0, 0, 0, time.Local)
	now := time.Date(2026, 8, 27, 5, 0, 0, 0, time.Local)
	f.engine.sweepDailyResets(last, now)

	if !f.state(t).IsActive("mine_stone") {
		t.Error("daily sweep must rearm the completed quest")
	}
	if f.state(t).Points("mine_stone") != 10 {
		t.Error("daily rearm must keep earned points")
	}
}

func TestBoundaryCrossed(t *testing.T) {
	mk := func(h, m int) time.Time {
		return time.Date(2026, 8, 27, h, m, 0, 0, time.Local)
	}
	if !boundaryCrossed(mk(3, 59), mk(4, 1), 4, 0) {
		t.Error("boundary inside the window must report crossed")
	}
	if boundaryCrossed(mk(4, 1), mk(4, 2), 4, 0) {
		t.Error("boundary before the window must not report crossed")
	}
	if !boundaryCrossed(mk(23, 59), mk(23, 59).Add(2*time.Minute), 0, 0) {
		t.Error("midnight crossing must be seen across the date change")
	}
}

func TestShutdownDropsNewWork(t *testing.T) {
	f := newFixture(t, 0, map[string]*quest.Definition{"mine_stone": mineStone(1)})
	f.start(t, "mine_stone")

	f.engine.Shutdown()
	f.engine.Handle(f.player, "BLOCK_BREAK", blockBreak("STONE"))

	time.Sleep(20 * time.Millisecond)
	if f.state(t).IsCompleted("mine_stone") {
		t.Error("triggers after shutdown must be discarded")
	}
}
