package domain

import (
	"errors"
	"strings"
)

// Phase is an administratively set rollout stage. Phases are ordered.
type Phase int

const (
	PhaseCompatibilityOnly Phase = iota
	PhaseInternalTesting
	PhaseGradualRollout
	PhaseFullDeployment
	PhaseLegacyRemoval
)

var phaseNames = [...]string{
	"compatibility_only",
	"internal_testing",
	"gradual_rollout",
	"full_deployment",
	"legacy_removal",
}

// ErrUnknownPhase and ErrUnknownStrategy are returned by the parsers.
var (
	ErrUnknownPhase    = errors.New("unknown rollout phase")
	ErrUnknownStrategy = errors.New("unknown rollout strategy")
)

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Valid reports whether p is one of the five phases.
func (p Phase) Valid() bool { return p >= PhaseCompatibilityOnly && p <= PhaseLegacyRemoval }

// ParsePhase maps a phase name to a Phase.
func ParsePhase(s string) (Phase, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range phaseNames {
		if n == s {
			return Phase(i), nil
		}
	}
	return 0, ErrUnknownPhase
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, ErrUnknownPhase
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// RolloutStrategy selects users during the gradual rollout phase.
type RolloutStrategy string

const (
	StrategyAllUsers     RolloutStrategy = "all_users"
	StrategyPercentage   RolloutStrategy = "percentage"
	StrategyUserIDHash   RolloutStrategy = "user_id_hash"
	StrategyInternalOnly RolloutStrategy = "internal_only"
	StrategyDevOnly      RolloutStrategy = "dev_only"
)

// ParseStrategy maps a strategy name to a RolloutStrategy.
func ParseStrategy(s string) (RolloutStrategy, error) {
	switch v := RolloutStrategy(strings.ToLower(strings.TrimSpace(s))); v {
	case StrategyAllUsers, StrategyPercentage, StrategyUserIDHash, StrategyInternalOnly, StrategyDevOnly:
		return v, nil
	}
	return "", ErrUnknownStrategy
}

// MigrationState is the persisted rollout configuration.
type MigrationState struct {
	Phase              Phase           `json:"phase"`
	Strategy           RolloutStrategy `json:"rollout_strategy"`
	Percentage         int             `json:"rollout_percentage"`
	Rollback           bool            `json:"rollback"`
	ForceCompatibility bool            `json:"force_compatibility"`
}

// UserContext is what the rollout gate knows about the caller.
type UserContext struct {
	ID         string `json:"user_id"`
	IsInternal bool   `json:"is_internal"`
}

// RolloutDecision explains a gate evaluation.
type RolloutDecision struct {
	UseNew bool   `json:"use_new"`
	Phase  Phase  `json:"phase"`
	Reason string `json:"reason"`
}
