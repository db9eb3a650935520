// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package guardrails

import (
	"sync"
	"time"

	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// ApprovalStore tracks pending and granted human approvals, keyed by
// approval id. A SafeExecutor consults it before running a command
// that only an allowlist/sandbox gate rejected.
type ApprovalStore struct {
	mu       sync.Mutex
	approved map[string]bool
	events   *pubsub.Bus[types.InterventionEvent]
}

// NewApprovalStore creates an empty store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{approved: make(map[string]bool), events: pubsub.New[types.InterventionEvent]()}
}

// Events returns the approval-request/approval-granted bus.
func (s *ApprovalStore) Events() *pubsub.Bus[types.InterventionEvent] { return s.events }

// RequestApproval records that approvalID is awaiting a human decision
// and emits an InterventionEvent so a UI can surface it.
func (s *ApprovalStore) RequestApproval(approvalID, reason string) {
	s.mu.Lock()
	if _, exists := s.approved[approvalID]; !exists {
		s.approved[approvalID] = false
	}
	s.mu.Unlock()
	s.events.Publish(types.InterventionEvent{Kind: "approval_requested", Reason: reason, Timestamp: time.Now()})
}

// Approve grants approvalID, allowing a pending execution to proceed.
func (s *ApprovalStore) Approve(approvalID string) {
	s.mu.Lock()
	s.approved[approvalID] = true
	s.mu.Unlock()
	s.events.Publish(types.InterventionEvent{Kind: "approval_granted"})
}

// IsApproved reports whether approvalID has been granted.
func (s *ApprovalStore) IsApproved(approvalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approved[approvalID]
}
