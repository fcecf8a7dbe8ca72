// Package scenarios loads and validates the catalog of scripted conversations.
package scenarios

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"chat-playback-engine/pkg/models"
	"chat-playback-engine/pkg/reveal"
)

//go:embed default.yaml
var defaultCatalog []byte

var (
	ErrEmptyCatalog     = errors.New("scenarios: catalog has no scenarios")
	ErrScenarioNotFound = errors.New("scenarios: scenario index out of range")
)

type document struct {
	Scenarios []models.Scenario `yaml:"scenarios"`
}

// Catalog is an immutable, ordered set of scenarios selected by index.
type Catalog struct {
	scenarios []*models.Scenario
}

// Default returns the catalog compiled into the binary.
func Default(logger *logrus.Logger) (*Catalog, error) {
	return LoadFromReader(bytes.NewReader(defaultCatalog), logger)
}

// Load reads a YAML catalog from path.
func Load(path string, logger *logrus.Logger) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenarios: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := LoadFromReader(f, logger)
	if err != nil {
		return nil, fmt.Errorf("scenarios: parse %q: %w", path, err)
	}
	return c, nil
}

// LoadFromReader decodes a YAML catalog. Unknown fields are rejected.
func LoadFromReader(r io.Reader, logger *logrus.Logger) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCatalog
		}
		return nil, fmt.Errorf("scenarios: decode yaml: %w", err)
	}
	return New(doc.Scenarios, logger)
}

// New validates scenarios and builds a catalog from them. Structural problems
// fail the whole catalog; pause tables and local-input flags that cannot be
// honoured are corrected and logged.
func New(scenarios []models.Scenario, logger *logrus.Logger) (*Catalog, error) {
	if err := Validate(scenarios); err != nil {
		return nil, err
	}

	c := &Catalog{scenarios: make([]*models.Scenario, len(scenarios))}
	for i := range scenarios {
		sc := normalize(scenarios[i], logger)
		c.scenarios[i] = &sc
	}
	return c, nil
}

// Validate returns every structural problem found, joined.
func Validate(scenarios []models.Scenario) error {
	if len(scenarios) == 0 {
		return ErrEmptyCatalog
	}

	var errs []error
	seen := make(map[int]bool, len(scenarios))
	for i, sc := range scenarios {
		if seen[sc.ID] {
			errs = append(errs, fmt.Errorf("scenarios[%d]: duplicate id %d", i, sc.ID))
		}
		seen[sc.ID] = true

		if sc.PointOfView == "" {
			errs = append(errs, fmt.Errorf("scenarios[%d]: pov is required", i))
		}
		if len(sc.Turns) == 0 {
			errs = append(errs, fmt.Errorf("scenarios[%d]: at least one turn is required", i))
		}
		for j, turn := range sc.Turns {
			if turn.Sender == "" {
				errs = append(errs, fmt.Errorf("scenarios[%d].turns[%d]: sender is required", i, j))
			}
			if !turn.Role.IsValid() {
				errs = append(errs, fmt.Errorf("scenarios[%d].turns[%d]: role %q is invalid; valid values: human, ai, system", i, j, turn.Role))
			}
			if turn.Kind != "" && !turn.Kind.IsValid() {
				errs = append(errs, fmt.Errorf("scenarios[%d].turns[%d]: kind %q is invalid; valid values: text, rich, card, alert", i, j, turn.Kind))
			}
			if turn.Content == "" {
				errs = append(errs, fmt.Errorf("scenarios[%d].turns[%d]: content is required", i, j))
			}
			if turn.PreDelayMS < 0 {
				errs = append(errs, fmt.Errorf("scenarios[%d].turns[%d]: pre_delay_ms must not be negative", i, j))
			}
		}
	}
	return errors.Join(errs...)
}

func normalize(sc models.Scenario, logger *logrus.Logger) models.Scenario {
	turns := make([]models.Turn, len(sc.Turns))
	for j, turn := range sc.Turns {
		if turn.Kind == "" {
			turn.Kind = models.KindText
		}

		offsets, dropped := reveal.NormalizeOffsets(turn.PauseOffsets, len([]rune(turn.Content)))
		if dropped > 0 && logger != nil {
			logger.WithFields(logrus.Fields{
				"scenario_id": sc.ID,
				"turn":        j,
				"dropped":     dropped,
			}).Warn("Dropped pause offsets outside turn content")
		}
		turn.PauseOffsets = offsets

		if turn.LocalInput && !sc.IsPointOfView(turn.Sender) {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"scenario_id": sc.ID,
					"turn":        j,
					"sender":      turn.Sender,
				}).Warn("Ignoring local_input on a turn not sent by the point of view")
			}
			turn.LocalInput = false
		}
		turns[j] = turn
	}
	sc.Turns = turns
	return sc
}

// Len returns the number of scenarios.
func (c *Catalog) Len() int {
	return len(c.scenarios)
}

// Get returns the scenario at index.
func (c *Catalog) Get(index int) (*models.Scenario, bool) {
	if index < 0 || index >= len(c.scenarios) {
		return nil, false
	}
	return c.scenarios[index], true
}

// Resolve returns the scenario at index, falling back to the first scenario
// when index is out of range. The returned index is the one actually used.
func (c *Catalog) Resolve(index int) (*models.Scenario, int, error) {
	if sc, ok := c.Get(index); ok {
		return sc, index, nil
	}
	if len(c.scenarios) == 0 {
		return nil, 0, ErrEmptyCatalog
	}
	return c.scenarios[0], 0, fmt.Errorf("%w: %d, using 0", ErrScenarioNotFound, index)
}

// All returns the scenarios in catalog order.
func (c *Catalog) All() []*models.Scenario {
	return append([]*models.Scenario(nil), c.scenarios...)
}
