// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package guardrails

import (
	"context"
	"regexp"
	"sync"
	"time"

	"open-swarm/pkg/aidoserr"
)

// ErrorClass is the bucket an observed error is classified into before
// selecting applicable fix strategies.
type ErrorClass string

const (
	ClassSyntax  ErrorClass = "syntax"
	ClassType    ErrorClass = "type"
	ClassRuntime ErrorClass = "runtime"
	ClassTest    ErrorClass = "test"
	ClassUnknown ErrorClass = "unknown"
)

var classifierRules = []struct {
	class   ErrorClass
	pattern *regexp.Regexp
}{
	{ClassSyntax, regexp.MustCompile(`(?i)(syntax error|unexpected token|parse error)`)},
	{ClassType, regexp.MustCompile(`(?i)(type mismatch|cannot use|undefined:|type error)`)},
	{ClassTest, regexp.MustCompile(`(?i)(test failed|assertion|expected .* got|FAIL\b)`)},
	{ClassRuntime, regexp.MustCompile(`(?i)(panic|nil pointer|index out of range|runtime error)`)},
}

// ClassifyError buckets err by name and message pattern into one of
// syntax|type|runtime|test|unknown, per §4.7's self-healing loop.
func ClassifyError(name, message string) ErrorClass {
	haystack := name + ": " + message
	for _, rule := range classifierRules {
		if rule.pattern.MatchString(haystack) {
			return rule.class
		}
	}
	return ClassUnknown
}

// FixStrategy is one candidate remediation the healing loop may apply.
type FixStrategy struct {
	Name             string
	ApplicableErrors map[ErrorClass]bool
	GenerateFix      func(ctx context.Context, errMessage, content string) (string, error)
}

// Applies reports whether class is in the strategy's applicable set.
func (s FixStrategy) Applies(class ErrorClass) bool { return s.ApplicableErrors[class] }

// HealResult is the outcome of one Heal call.
type HealResult struct {
	Healed     bool
	Content    string
	Attempts   int
	StrategyID string
}

// SelfHealLoop iterates bounded fix strategies until verify succeeds
// or the strategy set is exhausted, then escalates. At most one run
// executes at a time; a concurrent second call is rejected
// synchronously rather than queued.
type SelfHealLoop struct {
	strategies    []FixStrategy
	maxAttempts   int
	verifyTimeout time.Duration
	escalate      func(ctx context.Context, class ErrorClass, lastErr error)
	mu            sync.Mutex
	running       bool
}

// NewSelfHealLoop builds a loop over strategies, bounding each run to
// maxAttempts iterations and verifyTimeout per verification call.
func NewSelfHealLoop(strategies []FixStrategy, maxAttempts int, verifyTimeout time.Duration, escalate func(ctx context.Context, class ErrorClass, lastErr error)) *SelfHealLoop {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if verifyTimeout <= 0 {
		verifyTimeout = 30 * time.Second
	}
	return &SelfHealLoop{strategies: strategies, maxAttempts: maxAttempts, verifyTimeout: verifyTimeout, escalate: escalate}
}

// Heal classifies errMessage, then applies up to maxAttempts applicable
// strategies' GenerateFix, running verify(newContent) under
// verifyTimeout after each attempt; it stops at the first verify
// success. On exhaustion it invokes escalate and returns Healed=false.
func (l *SelfHealLoop) Heal(ctx context.Context, errName, errMessage, content string, verify func(ctx context.Context, content string) bool) (HealResult, error) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return HealResult{}, &aidoserr.InvalidStateError{Operation: "selfHeal", State: "already running"}
	}
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	class := ClassifyError(errName, errMessage)
	applicable := filterStrategies(l.strategies, class)

	attempts := 0
	var lastErr error
	for _, strategy := range applicable {
		if attempts >= l.maxAttempts {
			break
		}
		attempts++

		newContent, err := strategy.GenerateFix(ctx, errMessage, content)
		if err != nil {
			lastErr = err
			continue
		}

		verifyCtx, cancel := context.WithTimeout(ctx, l.verifyTimeout)
		ok := verify(verifyCtx, newContent)
		cancel()
		if ok {
			return HealResult{Healed: true, Content: newContent, Attempts: attempts, StrategyID: strategy.Name}, nil
		}
		lastErr = errNoFix(strategy.Name)
	}

	if l.escalate != nil {
		l.escalate(ctx, class, lastErr)
	}
	return HealResult{Healed: false, Attempts: attempts}, nil
}

func filterStrategies(strategies []FixStrategy, class ErrorClass) []FixStrategy {
	var out []FixStrategy
	for _, s := range strategies {
		if s.Applies(class) {
			out = append(out, s)
		}
	}
	return out
}

type healError struct{ msg string }

func (e *healError) Error() string { return e.msg }

func errNoFix(strategy string) error {
	return &healError{msg: "strategy " + strategy + " did not produce a verifying fix"}
}

// BuiltinStrategies returns the syntax/type/runtime/test strategies
// named in the Open Question decision: each declares the error classes
// it applies to; GenerateFix is supplied by the caller since the actual
// remediation is domain-specific (re-parse, re-type, retry, re-test).
func BuiltinStrategies(
	syntaxFix, typeFix, runtimeFix, testFix func(ctx context.Context, errMessage, content string) (string, error),
) []FixStrategy {
	return []FixStrategy{
		{Name: "syntax", ApplicableErrors: map[ErrorClass]bool{ClassSyntax: true}, GenerateFix: syntaxFix},
		{Name: "type", ApplicableErrors: map[ErrorClass]bool{ClassType: true}, GenerateFix: typeFix},
		{Name: "runtime", ApplicableErrors: map[ErrorClass]bool{ClassRuntime: true}, GenerateFix: runtimeFix},
		{Name: "test", ApplicableErrors: map[ErrorClass]bool{ClassTest: true}, GenerateFix: testFix},
	}
}
