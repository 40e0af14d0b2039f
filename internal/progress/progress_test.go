package progress

import (
	"testing"

	"github.com/google/uuid"
)

func newState() *State {
	return New(uuid.New(), "Alice")
}

func TestStartIsIdempotent(t *testing.T) {
	s := newState()

	if !s.Start("mine_stone") {
		t.Fatal("first Start should succeed")
	}
	s.AddProgress("mine_stone", 2)

	if s.Start("mine_stone") {
		t.Error("second Start should report already active")
	}
	if s.Value("mine_stone") != 2 {
		t.Errorf("double start must not reset the counter, value = %d", s.Value("mine_stone"))
	}
	if s.ActiveCount() != 1 {
		t.Errorf("active count = %d, want 1", s.ActiveCount())
	}
}

func TestCancelResetsValue(t *testing.T) {
	s := newState()
	s.Start("mine_stone")
	s.AddProgress("mine_stone", 5)

	if !s.Cancel("mine_stone") {
		t.Fatal("Cancel of an active quest should succeed")
	}
	if s.IsActive("mine_stone") {
		t.Error("quest should be inactive after cancel")
	}
	if s.Value("mine_stone") != 0 {
		t.Errorf("value after cancel = %d, want 0", s.Value("mine_stone"))
	}
	if s.ActiveCount() != 0 {
		t.Error("cancel must remove the id from the active order")
	}
	if s.Cancel("mine_stone") {
		t.Error("cancelling an inactive quest should report false")
	}
}

func TestAddProgressClampsAtZero(t *testing.T) {
	s := newState()
	s.Start("q")

	if v := s.AddProgress("q", -10); v != 0 {
		t.Errorf("negative progress should clamp at 0, got %d", v)
	}
	if v := s.AddProgress("q", 3); v != 3 {
		t.Errorf("value = %d, want 3", v)
	}
	if v := s.AddProgress("q", -1); v != 2 {
		t.Errorf("value = %d, want 2", v)
	}
	if v := s.AddProgress("unknown", 1); v != -1 {
		t.Errorf("progress on an inactive quest should return -1, got %d", v)
	}
	if _, exists := s.Snapshot()["unknown"]; exists {
		t.Error("AddProgress must not create nodes for unknown quests")
	}
}

func TestCompleteAwardsMaxPoints(t *testing.T) {
	s := newState()
	s.Start("q")

	if !s.Complete("q", 50) {
		t.Fatal("Complete of an active quest should succeed")
	}
	if s.IsActive("q") {
		t.Error("quest should be inactive after completion")
	}
	if !s.IsCompleted("q") {
		t.Error("quest should be marked completed")
	}
	if s.Points("q") != 50 {
		t.Errorf("points = %d, want 50", s.Points("q"))
	}

	// Re-complete with fewer points: award must not downgrade.
	s.Start("q")
	s.Complete("q", 20)
	if s.Points("q") != 50 {
		t.Errorf("points after lower re-award = %d, want 50", s.Points("q"))
	}

	// Re-complete with more points: award goes up.
	s.Start("q")
	s.Complete("q", 80)
	if s.Points("q") != 80 {
		t.Errorf("points after higher re-award = %d, want 80", s.Points("q"))
	}

	if s.Complete("missing", 10) {
		t.Error("completing an inactive quest should report false")
	}
}

func TestRestartKeepsCompletionHistory(t *testing.T) {
	s := newState()
	s.Start("q")
	s.Complete("q", 25)
	s.Start("q")

	if !s.IsCompleted("q") {
		t.Error("a restarted quest must still count as completed")
	}
	if s.CompletedCount() != 1 {
		t.Errorf("CompletedCount = %d, want 1", s.CompletedCount())
	}
	if s.Value("q") != 0 {
		t.Errorf("restart should zero the counter, value = %d", s.Value("q"))
	}

	// Abandoning the rerun keeps the history and the earlier award.
	s.Cancel("q")
	if !s.IsCompleted("q") || s.Points("q") != 25 {
		t.Errorf("after cancel: completed=%v points=%d, want true and 25",
			s.IsCompleted("q"), s.Points("q"))
	}
}

func TestActiveOrderIsInsertionOrder(t *testing.T) {
	s := newState()
	s.Start("a")
	s.Start("b")
	s.Start("c")
	s.Cancel("b")
	s.Start("b")

	ids := s.ActiveIDs()
	want := []string{"a", "c", "b"}
	if len(ids) != len(want) {
		t.Fatalf("ActiveIDs = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ActiveIDs = %v, want %v", ids, want)
		}
	}
	if s.FirstActive() != "a" {
		t.Errorf("FirstActive = %q, want a", s.FirstActive())
	}
}

func TestTotalPointsAndCounts(t *testing.T) {
	s := newState()
	s.Start("a")
	s.Complete("a", 10)
	s.Start("b")
	s.Complete("b", 15)
	s.Start("c")

	if s.TotalPoints() != 25 {
		t.Errorf("TotalPoints = %d, want 25", s.TotalPoints())
	}
	if s.CompletedCount() != 2 {
		t.Errorf("CompletedCount = %d, want 2", s.CompletedCount())
	}
	if s.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", s.ActiveCount())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	s := newState()
	s.Start("a")
	s.AddProgress("a", 4)
	s.Start("b")
	s.Start("c")
	s.Complete("c", 30)

	data, err := s.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON returned error: %v", err)
	}

	restored, err := FromJSON(s.PlayerID, s.PlayerName, data)
	if err != nil {
		t.Fatalf("FromJSON returned error: %v", err)
	}

	if !restored.IsActive("a") || restored.Value("a") != 4 {
		t.Error("active quest a did not survive the round trip")
	}
	if !restored.IsActive("b") {
		t.Error("active quest b did not survive the round trip")
	}
	if !restored.IsCompleted("c") || restored.Points("c") != 30 {
		t.Error("completed quest c did not survive the round trip")
	}

	ids := restored.ActiveIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("active order after round trip = %v, want [a b]", ids)
	}
}

func TestFromJSONCorruptData(t *testing.T) {
	s, err := FromJSON(uuid.New(), "Bob", []byte("{not json"))
	if err == nil {
		t.Error("corrupt data should surface an error")
	}
	if s == nil {
		t.Fatal("corrupt data should still yield a fresh state")
	}
	if s.ActiveCount() != 0 || s.TotalPoints() != 0 {
		t.Error("fresh state expected after corrupt load")
	}
}

func TestFromJSONDropsStaleOrderEntries(t *testing.T) {
	// A quest listed in active_order but not active in nodes must not
	// come back from the dead.
	data := []byte(`{"nodes":{"a":{"active":false,"completed":true,"value":0,"points":5}},"active_order":["a","ghost"]}`)
	s, err := FromJSON(uuid.New(), "Bob", data)
	if err != nil {
		t.Fatalf("FromJSON returned error: %v", err)
	}
	if s.ActiveCount() != 0 {
		t.Errorf("stale order entries should be dropped, got %v", s.ActiveIDs())
	}
}

func TestResetQuest(t *testing.T) {
	s := newState()
	s.Start("a")
	s.Complete("a", 10)
	s.Start("a")

	s.ResetQuest("a")
	if s.IsActive("a") || s.IsCompleted("a") || s.Points("a") != 0 {
		t.Error("ResetQuest should wipe every trace of the quest")
	}
	if s.ActiveCount() != 0 {
		t.Error("ResetQuest should remove the id from the active order")
	}
}
