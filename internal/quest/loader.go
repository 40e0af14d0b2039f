package quest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashgrove/questforge/internal/logger"
	"gopkg.in/yaml.v3"
)

// definitionYAML is the on-disk shape of one quest file.
type definitionYAML struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Event  string   `yaml:"event"`
	Type   string   `yaml:"type"`
	Target string   `yaml:"target"` // pipe-delimited, "!" negates
	Amount int      `yaml:"amount"`
	Repeat int      `yaml:"repeat"`
	Points int      `yaml:"points"`
	Direct bool     `yaml:"direct"`
	Board  bool     `yaml:"board"`
	Party  bool     `yaml:"party"`

	Reset     string `yaml:"reset"`
	ResetTime string `yaml:"reset_time"`

	Title          string   `yaml:"title"`
	Description    []string `yaml:"description"`
	ProgressFormat string   `yaml:"progress_format"`
	RewardText     string   `yaml:"reward_text"`
	Category       string   `yaml:"category"`
	Difficulty     string   `yaml:"difficulty"`
	Icon           string   `yaml:"icon"`
	Hint           string   `yaml:"hint"`

	Custom *customYAML `yaml:"custom"`

	Conditions     []string            `yaml:"conditions"`
	FailConditions []string            `yaml:"fail_conditions"`
	Actions        map[string][]string `yaml:"actions"`
	Chain          string              `yaml:"chain"`
}

type customYAML struct {
	EventClass string            `yaml:"event_class"`
	PlayerPath string            `yaml:"player_path"`
	Captures   map[string]string `yaml:"captures"`
}

// validPhases guards against typoed action group keys in quest files.
var validPhases = map[Phase]bool{
	PhaseAccept:  true,
	PhaseStart:   true,
	PhaseSuccess: true,
	PhaseFail:    true,
	PhaseCancel:  true,
	PhaseStop:    true,
	PhaseRestart: true,
	PhaseRepeat:  true,
}

// LoadFile parses a single quest definition file. The id falls back to
// the filename (without extension) when the document omits it.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quest file: %w", err)
	}

	var raw definitionYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse quest YAML: %w", err)
	}

	id := raw.ID
	if id == "" {
		base := filepath.Base(path)
		id = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return buildDefinition(Key(id), &raw)
}

// buildDefinition converts the YAML shape into an immutable Definition,
// applying documented defaults.
func buildDefinition(id string, raw *definitionYAML) (*Definition, error) {
	if id == "" {
		return nil, fmt.Errorf("quest has no id")
	}
	if raw.Event == "" {
		return nil, fmt.Errorf("quest %q has no trigger event", id)
	}

	amount := raw.Amount
	if amount < 1 {
		amount = 1
	}

	questType := raw.Type
	if questType == "" {
		questType = "vanilla"
	}

	var targets []string
	for _, tok := range strings.Split(raw.Target, "|") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			targets = append(targets, tok)
		}
	}

	actions := make(map[Phase][]string)
	for key, lines := range raw.Actions {
		phase := Phase(strings.ToLower(key))
		if !validPhases[phase] {
			logger.Warning("Ignoring unknown action phase", "quest", id, "phase", key)
			continue
		}
		actions[phase] = lines
	}

	var custom *CustomBinding
	if raw.Custom != nil {
		if raw.Custom.EventClass == "" {
			return nil, fmt.Errorf("quest %q declares a custom binding with no event_class", id)
		}
		custom = &CustomBinding{
			EventClass: raw.Custom.EventClass,
			PlayerPath: raw.Custom.PlayerPath,
			Captures:   raw.Custom.Captures,
		}
	}

	name := raw.Name
	if name == "" {
		name = id
	}

	return &Definition{
		ID:      id,
		Name:    name,
		Event:   EventKey(raw.Event),
		Type:    questType,
		Targets: targets,
		Amount:  amount,
		Repeat:  raw.Repeat,
		Points:  raw.Points,
		Direct:  raw.Direct,
		Board:   raw.Board,
		Party:   raw.Party,

		ResetPolicy: strings.ToLower(raw.Reset),
		ResetTime:   raw.ResetTime,

		Display: Display{
			Title:          raw.Title,
			Description:    raw.Description,
			ProgressFormat: raw.ProgressFormat,
			RewardText:     raw.RewardText,
			Category:       raw.Category,
			Difficulty:     raw.Difficulty,
			Icon:           raw.Icon,
			Hint:           raw.Hint,
		},
		Custom: custom,

		SuccessConditions: raw.Conditions,
		FailConditions:    raw.FailConditions,
		Actions:           actions,
		Chain:             Key(raw.Chain),
	}, nil
}

// LoadDirectory parses every YAML file in dir. A file that fails to
// parse is logged and skipped; it never aborts the rest of the load.
func LoadDirectory(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read quest directory %s: %w", dir, err)
	}

	defs := make(map[string]*Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		def, err := LoadFile(path)
		if err != nil {
			logger.Error("Skipping quest file", "path", path, "error", err)
			continue
		}
		if _, dup := defs[def.ID]; dup {
			logger.Warning("Duplicate quest id, later file wins", "id", def.ID, "path", path)
		}
		defs[def.ID] = def
	}

	logger.Info("Loaded quest definitions", "dir", dir, "count", len(defs))
	return defs, nil
}
