// Package rules holds the game-balance settings the server starts with.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
)

type Rules struct {
	ProtocolVersion float64  `json:"protocol_version"`
	Movement        Movement `json:"movement"`
	Combat          Combat   `json:"combat"`
}

type Movement struct {
	MaxRadius float64 `json:"max_radius"`
	MaxSpeed  float64 `json:"max_speed"`
}

type Combat struct {
	BaseDamage         int     `json:"base_damage"`
	CriticalMultiplier float64 `json:"critical_multiplier"`
}

// Defaults returns the built-in rule set used when no rules file is configured.
func Defaults() Rules {
	return Rules{
		ProtocolVersion: 0.01,
		Movement:        Movement{MaxRadius: 100, MaxSpeed: 20.0},
		Combat:          Combat{BaseDamage: 50, CriticalMultiplier: 1.5},
	}
}

// Load reads a rules file. Sections or fields left out keep their defaults.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	r := Defaults()
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	if err := validateRules(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

func validateRules(r *Rules) error {
	if r.ProtocolVersion <= 0 {
		return fmt.Errorf("validation error: protocol_version must be positive, got %v", r.ProtocolVersion)
	}
	if r.Movement.MaxRadius <= 0 {
		return fmt.Errorf("validation error: movement.max_radius must be positive, got %v", r.Movement.MaxRadius)
	}
	if r.Movement.MaxSpeed <= 0 {
		return fmt.Errorf("validation error: movement.max_speed must be positive, got %v", r.Movement.MaxSpeed)
	}
	if r.Combat.BaseDamage < 0 {
		return fmt.Errorf("validation error: combat.base_damage must be >= 0, got %d", r.Combat.BaseDamage)
	}
	if r.Combat.CriticalMultiplier < 1 {
		return fmt.Errorf("validation error: combat.critical_multiplier must be >= 1, got %v", r.Combat.CriticalMultiplier)
	}
	return nil
}
