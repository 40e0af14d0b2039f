// Package quest holds immutable quest definitions loaded from YAML and
// the registry that indexes them by id and trigger event.
package quest

import "strings"

// Phase names a lifecycle moment that can carry action lines.
type Phase string

const (
	PhaseAccept  Phase = "accept"  // before the quest is marked active
	PhaseStart   Phase = "start"   // after the quest is marked active
	PhaseSuccess Phase = "success" // on completion
	PhaseFail    Phase = "fail"    // on a fail-condition abort
	PhaseCancel  Phase = "cancel"  // on player cancel
	PhaseStop    Phase = "stop"    // on admin stop
	PhaseRestart Phase = "restart" // on auto-repeat rearm
	PhaseRepeat  Phase = "repeat"  // after auto-repeat rearm
)

// Display holds presentation metadata shown in menus and messages.
type Display struct {
	Title          string   // Menu title (falls back to Name)
	Description    []string // Lore lines
	ProgressFormat string   // Template, e.g. "%value%/%amount% mined"
	RewardText     string   // Human description of the reward
	Category       string   // Grouping key for menus
	Difficulty     string   // Free-form difficulty label
	Icon           string   // Icon id for menus
	Hint           string   // Hint line
}

// CustomBinding describes a dynamically resolved event class for quests
// triggered by events outside the built-in set.
type CustomBinding struct {
	EventClass string            // Fully qualified event type name
	PlayerPath string            // Accessor path extracting the player
	Captures   map[string]string // context key -> accessor path
}

// Definition is an immutable quest template. Identity is the lowercase
// id; reload replaces the whole value, never patches it.
type Definition struct {
	ID     string // unique, lowercase
	Name   string // display name
	Event  string // uppercase trigger key
	Type   string // trigger family, e.g. "vanilla" or "custom"

	Targets []string // ORed subject filters, "!" negates; empty = match-all
	Amount  int      // counter goal, >= 1
	Repeat  int      // negative = auto-restart on completion
	Points  int      // reward score
	Direct  bool     // one successful match completes, no counter

	Board bool // public board quest
	Party bool // reserved: shared party progress

	ResetPolicy string // "" or "daily"
	ResetTime   string // "HH:MM" for daily resets

	Display Display
	Custom  *CustomBinding // nil unless Type == "custom"

	SuccessConditions []string // all must hold
	FailConditions    []string // any aborts the quest

	Actions map[Phase][]string // lifecycle action lines
	Chain   string             // next quest id, "" = none
}

// HasTargets reports whether the definition declares a target filter.
func (d *Definition) HasTargets() bool {
	return len(d.Targets) > 0
}

// AutoRepeats reports whether the quest restarts itself on completion.
func (d *Definition) AutoRepeats() bool {
	return d.Repeat < 0
}

// ActionsFor returns the action lines for a phase, never nil.
func (d *Definition) ActionsFor(phase Phase) []string {
	if d.Actions == nil {
		return nil
	}
	return d.Actions[phase]
}

// Title returns the menu title, falling back to the quest name.
func (d *Definition) Title() string {
	if d.Display.Title != "" {
		return d.Display.Title
	}
	return d.Name
}

// Key returns the canonical lookup key for an id.
func Key(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// EventKey returns the canonical index key for a trigger event.
func EventKey(event string) string {
	return strings.ToUpper(strings.TrimSpace(event))
}
