// Package rules implements the business rule validation used by command
// handlers. Rules are checked in order and validation stops at the first
// unsatisfied rule.
package rules

import "context"

// Rule is a single business constraint a command must satisfy.
type Rule interface {
	Code() string
	Message() string
	IsSatisfied(ctx context.Context) (bool, error)
}

// Violation reports the first rule a command failed to satisfy. It is an
// error so callers can distinguish business rejections from infrastructure
// failures with errors.As.
type Violation struct {
	RuleCode    string
	RuleMessage string
}

func (v *Violation) Error() string {
	return v.RuleCode + ": " + v.RuleMessage
}

type funcRule struct {
	code    string
	message string
	fn      func(ctx context.Context) (bool, error)
}

func (r funcRule) Code() string    { return r.code }
func (r funcRule) Message() string { return r.message }
func (r funcRule) IsSatisfied(ctx context.Context) (bool, error) {
	return r.fn(ctx)
}

// New builds a Rule from a predicate function.
func New(code, message string, fn func(ctx context.Context) (bool, error)) Rule {
	return funcRule{code: code, message: message, fn: fn}
}

// Validate evaluates the rules in order and returns a *Violation for the
// first unsatisfied one. A rule that cannot be evaluated returns its error
// unchanged so the caller can retry.
func Validate(ctx context.Context, ruleSet ...Rule) error {
	for _, rule := range ruleSet {
		ok, err := rule.IsSatisfied(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return &Violation{RuleCode: rule.Code(), RuleMessage: rule.Message()}
		}
	}
	return nil
}
