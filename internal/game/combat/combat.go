// Package combat runs encounters: it owns the participants, resolves their
// actions through the effect and ability indexes, and publishes reaction
// events on the encounter's bus.
package combat

import (
	"strings"
	"sync"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/ability"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
	"github.com/cory-johannsen/skirmish/internal/game/resource"
)

// Kind distinguishes player characters from monsters.
type Kind string

const (
	KindPlayer Kind = "player"
	KindNPC    Kind = "npc"
)

// Outcome is the result every handler reports.
type Outcome struct {
	Success bool
	Message string
}

func succeed(msg string) Outcome { return Outcome{Success: true, Message: msg} }
func fail(msg string) Outcome    { return Outcome{Message: msg} }

// Abilities lists the six ability scores in sheet order.
var Abilities = []string{"str", "dex", "con", "int", "wis", "cha"}

var abilityNames = map[string]string{
	"strength": "str", "dexterity": "dex", "constitution": "con",
	"intelligence": "int", "wisdom": "wis", "charisma": "cha",
}

// NormalizeAbility accepts either the abbreviation or the full name of an
// ability score.
func NormalizeAbility(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if full, ok := abilityNames[n]; ok {
		return full, nil
	}
	for _, a := range Abilities {
		if a == n {
			return n, nil
		}
	}
	return "", skerr.InvalidArgumentf("unknown ability %q", name)
}

// Skills maps each skill to the ability it is rolled with.
var Skills = map[string]string{
	"acrobatics":      "dex",
	"animal_handling": "wis",
	"arcana":          "int",
	"athletics":       "str",
	"deception":       "cha",
	"history":         "int",
	"insight":         "wis",
	"intimidation":    "cha",
	"investigation":   "int",
	"medicine":        "wis",
	"nature":          "int",
	"perception":      "wis",
	"performance":     "cha",
	"persuasion":      "cha",
	"religion":        "int",
	"sleight_of_hand": "dex",
	"stealth":         "dex",
	"survival":        "wis",
}

// Stats is the authored statblock of a participant. It never changes
// during an encounter; live values are derived from it through effects.
type Stats struct {
	Name       string         `yaml:"name" json:"name"`
	Kind       Kind           `yaml:"kind" json:"kind"`
	Level      int            `yaml:"level" json:"level"`
	Size       string         `yaml:"size" json:"size"`
	MaxHP      int            `yaml:"max_hp" json:"max_hp"`
	ArmorClass int            `yaml:"armor_class" json:"armor_class"`
	Speed      int            `yaml:"speed" json:"speed"`
	Scores     map[string]int `yaml:"scores" json:"scores"`
	// Saves and Skills list the proficient saving throws and skills.
	Saves           []string `yaml:"saves" json:"saves"`
	Skills          []string `yaml:"skills" json:"skills"`
	SpellAbility    string   `yaml:"spell_ability" json:"spell_ability"`
	Resistances     []string `yaml:"resistances" json:"resistances"`
	Immunities      []string `yaml:"immunities" json:"immunities"`
	Vulnerabilities []string `yaml:"vulnerabilities" json:"vulnerabilities"`
}

// Score returns the base score for ability, 10 when the statblock omits it.
func (s Stats) Score(ability string) int {
	if n, ok := s.Scores[ability]; ok {
		return n
	}
	return 10
}

func (s Stats) proficient(list []string, name string) bool {
	for _, p := range list {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// Entity is one participant of an encounter. Its indexes and resources are
// owned exclusively by it; hit points are guarded by the entity's mutex.
type Entity struct {
	ID        string
	Stats     Stats
	Abilities *ability.Index
	Effects   *effect.Index
	Resources *resource.TurnResources

	mu         sync.Mutex
	hp         int
	tempHP     int
	movement   int
	initiative int
}

// HP returns the current hit points.
func (e *Entity) HP() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hp
}

// TempHP returns the current temporary hit points.
func (e *Entity) TempHP() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tempHP
}

// SetTempHP replaces temporary hit points. They never stack; the higher
// value is kept.
func (e *Entity) SetTempHP(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tempHP = max(e.tempHP, n)
}

// Initiative returns the rolled initiative.
func (e *Entity) Initiative() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initiative
}

// Movement returns the feet of movement left this turn.
func (e *Entity) Movement() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.movement
}

// IsDown reports whether the entity is at 0 hit points.
func (e *Entity) IsDown() bool { return e.HP() <= 0 }

// applyDamage removes amount, temporary hit points first.
//
// Precondition: amount >= 0.
// Postcondition: hp >= 0 and tempHP >= 0.
func (e *Entity) applyDamage(amount int) (absorbed, dealt, hp int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	absorbed = min(e.tempHP, amount)
	e.tempHP -= absorbed
	dealt = min(e.hp, amount-absorbed)
	e.hp -= dealt
	return absorbed, dealt, e.hp
}

// heal restores amount up to maxHP and returns the new total.
func (e *Entity) heal(amount, maxHP int) (healed, hp int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	before := e.hp
	e.hp = min(maxHP, e.hp+amount)
	e.hp = max(e.hp, before)
	return e.hp - before, e.hp
}

func (e *Entity) spendMovement(feet int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if feet > e.movement {
		return false
	}
	e.movement -= feet
	return true
}

// ProficiencyBonus returns the 5e proficiency bonus for the given level.
// Formula: 2 + (level-1)/4, minimum 2.
// Precondition: level >= 1.
// Postcondition: Returns >= 2.
func ProficiencyBonus(level int) int {
	return 2 + (max(level, 1)-1)/4
}

// AbilityMod computes the standard ability modifier using floor division: floor((score - 10) / 2).
// Postcondition: Returns floor((score - 10) / 2).
func AbilityMod(score int) int {
	diff := score - 10
	if diff < 0 {
		return (diff - 1) / 2
	}
	return diff / 2
}
