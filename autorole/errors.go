package autorole

import "errors"

var (
	ErrRuleExists      = errors.New("a rule with that name already exists")
	ErrRuleNotFound    = errors.New("no rule with that name exists")
	ErrInvalidRule     = errors.New("invalid rule")
	ErrFeatureDisabled = errors.New("autorole feature is disabled for this guild")
)
