package quest

import (
	"testing"
)

func testDefs() map[string]*Definition {
	return map[string]*Definition{
		"mine_stone": {ID: "mine_stone", Name: "Stone Miner", Event: "BLOCK_BREAK"},
		"mine_iron":  {ID: "mine_iron", Name: "Iron Miner", Event: "BLOCK_BREAK"},
		"first_kill": {ID: "first_kill", Name: "First Blood", Event: "MOB_KILL"},
	}
}

func TestRegistryGetCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Load(testDefs())

	lower := r.Get("mine_stone")
	if lower == nil {
		t.Fatal("Get(mine_stone) returned nil")
	}
	upper := r.Get("MINE_STONE")
	if upper != lower {
		t.Error("Get must be case-insensitive and return the same definition")
	}
	mixed := r.Get("  Mine_Stone ")
	if mixed != lower {
		t.Error("Get must trim surrounding whitespace")
	}
}

func TestRegistryGetUnknownReturnsNil(t *testing.T) {
	r := NewRegistry()
	r.Load(testDefs())

	if def := r.Get("nope"); def != nil {
		t.Errorf("unknown id should return nil, got %v", def)
	}
}

func TestRegistryByEvent(t *testing.T) {
	r := NewRegistry()
	r.Load(testDefs())

	breaks := r.ByEvent("block_break")
	if len(breaks) != 2 {
		t.Errorf("ByEvent(block_break) = %d defs, want 2", len(breaks))
	}

	kills := r.ByEvent("MOB_KILL")
	if len(kills) != 1 {
		t.Errorf("ByEvent(MOB_KILL) = %d defs, want 1", len(kills))
	}

	none := r.ByEvent("FISHING")
	if none == nil {
		t.Fatal("ByEvent must never return nil")
	}
	if len(none) != 0 {
		t.Errorf("ByEvent(FISHING) = %d defs, want 0", len(none))
	}
}

func TestRegistryLoadReplacesEverything(t *testing.T) {
	r := NewRegistry()
	r.Load(testDefs())

	r.Load(map[string]*Definition{
		"solo": {ID: "solo", Event: "PLAYER_JOIN"},
	})

	if r.Count() != 1 {
		t.Errorf("Count = %d after reload, want 1", r.Count())
	}
	if r.Get("mine_stone") != nil {
		t.Error("old definitions must be gone after reload")
	}
	if len(r.ByEvent("BLOCK_BREAK")) != 0 {
		t.Error("event index must be rebuilt on reload")
	}
	if len(r.ByEvent("PLAYER_JOIN")) != 1 {
		t.Error("new definitions must be indexed after reload")
	}
}

func TestRegistryCustomBindings(t *testing.T) {
	r := NewRegistry()
	r.Load(map[string]*Definition{
		"a": {ID: "a", Event: "X", Custom: &CustomBinding{EventClass: "com.example.FooEvent"}},
		"b": {ID: "b", Event: "Y", Custom: &CustomBinding{EventClass: "com.example.FooEvent"}},
		"c": {ID: "c", Event: "Z"},
	})

	bindings := r.CustomBindings()
	if len(bindings) != 1 {
		t.Fatalf("bindings = %v", bindings)
	}
	if len(bindings["com.example.FooEvent"]) != 2 {
		t.Errorf("FooEvent should bind 2 quests, got %d", len(bindings["com.example.FooEvent"]))
	}
}
