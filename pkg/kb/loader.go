package kb

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/textmatch"
)

//go:embed data/*.yaml
var defaultData embed.FS

// LoadOptions selects the knowledge base documents and matcher settings.
// Empty paths select the embedded defaults.
type LoadOptions struct {
	SafetyPath     string
	LightsPath     string
	SymptomsPath   string
	NegationWindow int
}

// safetyDoc is the on-disk shape of the safety rule table.
type safetyDoc struct {
	NegationWords []string             `yaml:"negation_words"`
	Rules         []*models.SafetyRule `yaml:"rules"`
}

// lightsDoc maps light ids to names, severities, scenarios and causes.
// Standalone scenarios (reachable from symptom mappings or safety rules but
// owned by no light) live under scenarios.
type lightsDoc struct {
	Lights    []*models.WarningLight      `yaml:"lights"`
	Scenarios map[string]*models.Scenario `yaml:"scenarios"`
}

// symptomsDoc maps symptom keyword groups to mapping targets and types.
type symptomsDoc struct {
	LightReportTriggers []string                 `yaml:"light_report_triggers"`
	Mappings            []*models.SymptomMapping `yaml:"mappings"`
}

// Load reads and validates the knowledge base. A validation failure is fatal
// at load time: the engine refuses to start rather than run with partial
// reference data.
func Load(opts LoadOptions) (*KnowledgeBase, error) {
	var safety safetyDoc
	if err := readDoc(opts.SafetyPath, "data/safety.yaml", &safety); err != nil {
		return nil, fmt.Errorf("load safety rules: %w", err)
	}

	var lights lightsDoc
	if err := readDoc(opts.LightsPath, "data/lights.yaml", &lights); err != nil {
		return nil, fmt.Errorf("load lights: %w", err)
	}

	var symptoms symptomsDoc
	if err := readDoc(opts.SymptomsPath, "data/symptoms.yaml", &symptoms); err != nil {
		return nil, fmt.Errorf("load symptoms: %w", err)
	}

	k := &KnowledgeBase{
		SafetyRules:         safety.Rules,
		Lights:              lights.Lights,
		Mappings:            symptoms.Mappings,
		rulesByID:           make(map[string]*models.SafetyRule),
		lightsByID:          make(map[string]*models.WarningLight),
		scenariosByID:       make(map[string]*models.Scenario),
		scenarioLight:       make(map[string]*models.WarningLight),
		lightReportTriggers: symptoms.LightReportTriggers,
		matcher:             textmatch.NewMatcher(safety.NegationWords, opts.NegationWindow),
	}

	for _, rule := range k.SafetyRules {
		rule.Keywords = expandKeywords(rule.Keywords)
		k.rulesByID[rule.ID] = rule
	}

	for _, light := range k.Lights {
		light.Names = expandKeywords(light.Names)
		k.lightsByID[light.ID] = light
		for id, sc := range light.Scenarios {
			sc.ID = id
			k.scenariosByID[id] = sc
			k.scenarioLight[id] = light
		}
	}

	for id, sc := range lights.Scenarios {
		sc.ID = id
		if _, dup := k.scenariosByID[id]; dup {
			return nil, fmt.Errorf("duplicate scenario id %q", id)
		}
		k.scenariosByID[id] = sc
	}

	for _, m := range k.Mappings {
		m.Keywords = expandKeywords(m.Keywords)
	}

	if err := k.validate(); err != nil {
		return nil, err
	}
	return k, nil
}

// readDoc reads a YAML document from path, or from the embedded defaults
// when path is empty.
func readDoc(path, embedded string, out any) error {
	var (
		raw []byte
		err error
	)
	if path != "" {
		raw, err = os.ReadFile(path)
	} else {
		raw, err = defaultData.ReadFile(embedded)
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, out)
}

// expandKeywords adds singular variants of English keywords so plural and
// singular reports both hit ("brakes squeal" / "brake squeals"). Hebrew and
// other non-ASCII keywords are kept as authored.
func expandKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	add := func(kw string) {
		key := strings.Join(textmatch.Normalize(kw), " ")
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	for _, kw := range keywords {
		add(kw)
		if variant := singularVariant(kw); variant != "" {
			add(variant)
		}
	}
	return out
}

// singularVariant singularizes the last word of an ASCII phrase, returning
// empty when the phrase is non-ASCII or already singular.
func singularVariant(phrase string) string {
	for i := 0; i < len(phrase); i++ {
		if phrase[i] > 127 {
			return ""
		}
	}
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return ""
	}
	last := words[len(words)-1]
	singular := inflection.Singular(last)
	if singular == last {
		return ""
	}
	words[len(words)-1] = singular
	return strings.Join(words, " ")
}

// validate enforces the load-time consistency rules: every light needs a
// non-empty initial question, option ids unique, cause ids unique within a
// scenario, every probability in [0,1], and every reference resolvable.
func (k *KnowledgeBase) validate() error {
	ruleIDs := make(map[string]struct{}, len(k.SafetyRules))
	for i, rule := range k.SafetyRules {
		if rule.ID == "" {
			return fmt.Errorf("safety rule %d: missing id", i)
		}
		if _, dup := ruleIDs[rule.ID]; dup {
			return fmt.Errorf("safety rule %q: duplicate id", rule.ID)
		}
		ruleIDs[rule.ID] = struct{}{}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("safety rule %q: no keywords", rule.ID)
		}
		if rule.Severity != models.SafetyCritical && rule.Severity != models.SafetyWarning {
			return fmt.Errorf("safety rule %q: unknown severity %q", rule.ID, rule.Severity)
		}
		if rule.Message == "" {
			return fmt.Errorf("safety rule %q: missing message", rule.ID)
		}
		if rule.NextScenarioID != "" {
			if _, ok := k.scenariosByID[rule.NextScenarioID]; !ok {
				return fmt.Errorf("safety rule %q: unknown next scenario %q", rule.ID, rule.NextScenarioID)
			}
		}
	}

	for _, light := range k.Lights {
		if light.ID == "" {
			return fmt.Errorf("light with names %v: missing id", light.Names)
		}
		if len(light.Names) == 0 {
			return fmt.Errorf("light %q: no display names", light.ID)
		}
		if strings.TrimSpace(light.InitialQuestion.Text) == "" {
			return fmt.Errorf("light %q: empty initial question", light.ID)
		}
		if err := validateOptions(light.ID, light.InitialQuestion.Options); err != nil {
			return err
		}
		for _, opt := range light.InitialQuestion.Options {
			target := opt.ScenarioID
			if target == "" {
				target = opt.ID
			}
			if _, ok := light.Scenarios[target]; !ok {
				return fmt.Errorf("light %q: option %q targets unknown scenario %q", light.ID, opt.ID, target)
			}
		}
	}

	for id, sc := range k.scenariosByID {
		causeIDs := make(map[string]struct{}, len(sc.Causes))
		for _, cause := range sc.Causes {
			if cause.ID == "" {
				return fmt.Errorf("scenario %q: cause with empty id", id)
			}
			if _, dup := causeIDs[cause.ID]; dup {
				return fmt.Errorf("scenario %q: duplicate cause id %q", id, cause.ID)
			}
			causeIDs[cause.ID] = struct{}{}
			if cause.Probability < 0 || cause.Probability > 1 {
				return fmt.Errorf("scenario %q: cause %q probability %v out of [0,1]", id, cause.ID, cause.Probability)
			}
			if cause.KeyQuestion != nil && len(cause.KeyQuestion.Answers) == 0 {
				return fmt.Errorf("scenario %q: cause %q key question has no answers", id, cause.ID)
			}
		}
		for _, fix := range sc.SelfFixActions {
			if fix.ID == "" {
				return fmt.Errorf("scenario %q: self-fix action with empty id", id)
			}
		}
	}

	for i, m := range k.Mappings {
		if len(m.Keywords) == 0 {
			return fmt.Errorf("symptom mapping %d (%s): no keywords", i, m.ID)
		}
		switch m.Type {
		case models.MappingScenario:
			// Deliberately deferred to the generative fallback; target is
			// advisory and not required to resolve.
		case models.MappingSafety:
			if _, ok := k.rulesByID[m.TargetID]; !ok {
				return fmt.Errorf("symptom mapping %q: unknown safety rule %q", m.ID, m.TargetID)
			}
		case models.MappingSymptom:
			if _, ok := k.scenariosByID[m.TargetID]; !ok {
				return fmt.Errorf("symptom mapping %q: unknown scenario %q", m.ID, m.TargetID)
			}
		case models.MappingLight:
			if _, ok := k.lightsByID[m.TargetID]; !ok {
				return fmt.Errorf("symptom mapping %q: unknown light %q", m.ID, m.TargetID)
			}
		default:
			return fmt.Errorf("symptom mapping %q: unknown type %q", m.ID, m.Type)
		}
	}

	return nil
}

func validateOptions(owner string, options []models.QuestionOption) error {
	seen := make(map[string]struct{}, len(options))
	for _, opt := range options {
		if opt.ID == "" {
			return fmt.Errorf("%s: option with empty id", owner)
		}
		if _, dup := seen[opt.ID]; dup {
			return fmt.Errorf("%s: duplicate option id %q", owner, opt.ID)
		}
		seen[opt.ID] = struct{}{}
	}
	return nil
}
