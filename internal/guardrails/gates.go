// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package guardrails

import (
	"context"
	"fmt"

	"open-swarm/pkg/aidoserr"
)

// GateKind identifies which guardrail gate failed.
type GateKind string

const (
	GateSecretScan    GateKind = "secret_scan"
	GateDangerousScan GateKind = "dangerous_pattern_scan"
	GateFileBlock     GateKind = "file_block"
	GateApproval      GateKind = "approval"
)

// GateError reports a single gate failure. Implements aidoserr.AIDOSError
// by delegating to a SafetyVetoError.
type GateError struct {
	Kind    GateKind
	Subject string
	Message string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Subject, e.Message)
}

func (e *GateError) AsVeto() *aidoserr.SafetyVetoError {
	return &aidoserr.SafetyVetoError{Subject: e.Subject, Reason: e.Message}
}

// Gate is one Check(ctx) error unit, generalized from
// internal/gates/gates.go's anti-cheat Gate interface to the
// scan/block/approval family this package implements.
type Gate interface {
	Check(ctx context.Context) error
	Kind() GateKind
	Name() string
}

// GateChain runs gates in sequence, per internal/gates/gates.go.
type GateChain struct {
	gates []Gate
}

// NewGateChain builds a chain over gates.
func NewGateChain(gates ...Gate) *GateChain {
	return &GateChain{gates: gates}
}

// Execute runs every gate in order, returning the first failure.
func (gc *GateChain) Execute(ctx context.Context) error {
	for _, g := range gc.gates {
		if err := g.Check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteParallel runs every gate concurrently and collects all
// failures, for independent checks like secret+dangerous-pattern scans.
func (gc *GateChain) ExecuteParallel(ctx context.Context) []error {
	errCh := make(chan error, len(gc.gates))
	for _, g := range gc.gates {
		go func(gate Gate) { errCh <- gate.Check(ctx) }(g)
	}
	var errs []error
	for range gc.gates {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// GateBuilder is a fluent builder for a GateChain.
type GateBuilder struct {
	gates []Gate
}

// NewGateBuilder creates an empty builder.
func NewGateBuilder() *GateBuilder { return &GateBuilder{} }

// Add appends a gate and returns the builder for chaining.
func (gb *GateBuilder) Add(g Gate) *GateBuilder {
	gb.gates = append(gb.gates, g)
	return gb
}

// Build returns the assembled chain.
func (gb *GateBuilder) Build() *GateChain { return NewGateChain(gb.gates...) }

// secretScanGate fails if scanning content surfaces a match at or
// above the configured minimum severity.
type secretScanGate struct {
	scanner     *Scanner
	content     string
	subject     string
	minSeverity Severity
}

// NewSecretScanGate builds a Gate that fails the content against the
// secret-scan rule set.
func NewSecretScanGate(scanner *Scanner, subject, content string, minSeverity Severity) Gate {
	return &secretScanGate{scanner: scanner, content: content, subject: subject, minSeverity: minSeverity}
}

func (g *secretScanGate) Kind() GateKind { return GateSecretScan }
func (g *secretScanGate) Name() string   { return "secret scan" }

func (g *secretScanGate) Check(ctx context.Context) error {
	for _, m := range g.scanner.ScanSecrets(g.content) {
		if severityAtLeast(m.Severity, g.minSeverity) {
			return &GateError{Kind: GateSecretScan, Subject: g.subject, Message: fmt.Sprintf("%s at %d:%d", m.Rule, m.Line, m.Column)}
		}
	}
	return nil
}

// dangerousPatternGate fails if scanning content surfaces a dangerous
// pattern match at or above the configured minimum severity.
type dangerousPatternGate struct {
	scanner     *Scanner
	content     string
	subject     string
	minSeverity Severity
}

// NewDangerousPatternGate builds a Gate over the dangerous-pattern
// rule set.
func NewDangerousPatternGate(scanner *Scanner, subject, content string, minSeverity Severity) Gate {
	return &dangerousPatternGate{scanner: scanner, content: content, subject: subject, minSeverity: minSeverity}
}

func (g *dangerousPatternGate) Kind() GateKind { return GateDangerousScan }
func (g *dangerousPatternGate) Name() string   { return "dangerous pattern scan" }

func (g *dangerousPatternGate) Check(ctx context.Context) error {
	for _, m := range g.scanner.ScanDangerousPatterns(g.content) {
		if severityAtLeast(m.Severity, g.minSeverity) {
			return &GateError{Kind: GateDangerousScan, Subject: g.subject, Message: fmt.Sprintf("%s at %d:%d", m.Rule, m.Line, m.Column)}
		}
	}
	return nil
}

// fileBlockGate fails if path matches the file blocklist.
type fileBlockGate struct {
	blocklist *FileBlocklist
	path      string
}

// NewFileBlockGate builds a Gate testing path against blocklist.
func NewFileBlockGate(blocklist *FileBlocklist, path string) Gate {
	return &fileBlockGate{blocklist: blocklist, path: path}
}

func (g *fileBlockGate) Kind() GateKind { return GateFileBlock }
func (g *fileBlockGate) Name() string   { return "file block" }

func (g *fileBlockGate) Check(ctx context.Context) error {
	if g.blocklist.IsBlocked(g.path) {
		return &GateError{Kind: GateFileBlock, Subject: g.path, Message: "path matches the file block-list"}
	}
	return nil
}

// approvalGate fails unless approvalID has been recorded as approved
// in the given ApprovalStore.
type approvalGate struct {
	store      *ApprovalStore
	approvalID string
}

// NewApprovalGate builds a Gate requiring a prior human approval event
// keyed by approvalID.
func NewApprovalGate(store *ApprovalStore, approvalID string) Gate {
	return &approvalGate{store: store, approvalID: approvalID}
}

func (g *approvalGate) Kind() GateKind { return GateApproval }
func (g *approvalGate) Name() string   { return "approval" }

func (g *approvalGate) Check(ctx context.Context) error {
	if !g.store.IsApproved(g.approvalID) {
		return &GateError{Kind: GateApproval, Subject: g.approvalID, Message: "awaiting human approval"}
	}
	return nil
}

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

func severityAtLeast(s, min Severity) bool {
	return severityRank[s] >= severityRank[min]
}
