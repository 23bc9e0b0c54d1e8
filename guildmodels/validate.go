package guildmodels

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var snowflakeRegex = regexp.MustCompile(`^\d{17,20}$`)
var ruleNameRegex = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

//IsSnowflake reports whether s looks like a discord ID
func IsSnowflake(s string) bool {
	return snowflakeRegex.MatchString(s)
}

//IsRuleName reports whether s can be used as a rule name
func IsRuleName(s string) bool {
	return ruleNameRegex.MatchString(s)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func ruleValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("snowflake", func(fl validator.FieldLevel) bool {
			return IsSnowflake(fl.Field().String())
		})
		_ = validate.RegisterValidation("rulename", func(fl validator.FieldLevel) bool {
			return IsRuleName(fl.Field().String())
		})
	})
	return validate
}

//ValidateRule checks the identifiers of a rule and its trigger arguments
func ValidateRule(rule *Rule) error {
	err := ruleValidator().Struct(rule)
	if err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%v failed %v check", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid rule: %v", strings.Join(msgs, "; "))
		}
		return err
	}
	if err := rule.Trigger.Validate(); err != nil {
		return fmt.Errorf("invalid trigger: %w", err)
	}
	return nil
}
