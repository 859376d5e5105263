// Copyright 2026 Sipconf Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conference

import (
	"context"

	"github.com/looplab/fsm"
)

// State is the conference lifecycle state.
type State int

const (
	StateNone = State(iota)
	StateInstantiated
	StateCreationPending
	StateCreationFailed
	StateCreated
	StateTerminationPending
	StateTerminationFailed
	StateTerminated
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateInstantiated:
		return "instantiated"
	case StateCreationPending:
		return "creation-pending"
	case StateCreationFailed:
		return "creation-failed"
	case StateCreated:
		return "created"
	case StateTerminationPending:
		return "termination-pending"
	case StateTerminationFailed:
		return "termination-failed"
	case StateTerminated:
		return "terminated"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

func stateFromString(s string) State {
	switch s {
	case "instantiated":
		return StateInstantiated
	case "creation-pending":
		return StateCreationPending
	case "creation-failed":
		return StateCreationFailed
	case "created":
		return StateCreated
	case "termination-pending":
		return StateTerminationPending
	case "termination-failed":
		return StateTerminationFailed
	case "terminated":
		return StateTerminated
	case "deleted":
		return StateDeleted
	}
	return StateNone
}

// enterEvent names the FSM event that lands in the given state. Callers pick
// a destination state; the transition table below decides whether the move
// is legal from the current one.
func enterEvent(dst State) string {
	switch dst {
	case StateInstantiated:
		return "instantiate"
	case StateCreationPending:
		return "create"
	case StateCreationFailed:
		return "fail-creation"
	case StateCreated:
		return "created"
	case StateTerminationPending:
		return "terminating"
	case StateTerminationFailed:
		return "fail-termination"
	case StateTerminated:
		return "terminated"
	case StateDeleted:
		return "delete"
	}
	return ""
}

func newLifecycleFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateNone.String(),
		fsm.Events{
			{Name: "instantiate", Src: []string{StateNone.String()}, Dst: StateInstantiated.String()},
			{Name: "create", Src: []string{
				StateNone.String(), StateInstantiated.String(), StateCreationFailed.String(),
			}, Dst: StateCreationPending.String()},
			{Name: "created", Src: []string{StateCreationPending.String()}, Dst: StateCreated.String()},
			{Name: "fail-creation", Src: []string{
				StateNone.String(), StateInstantiated.String(), StateCreationPending.String(), StateCreated.String(),
			}, Dst: StateCreationFailed.String()},
			{Name: "terminating", Src: []string{
				StateNone.String(), StateInstantiated.String(), StateCreationPending.String(),
				StateCreationFailed.String(), StateCreated.String(), StateTerminationFailed.String(),
			}, Dst: StateTerminationPending.String()},
			{Name: "fail-termination", Src: []string{StateTerminationPending.String()}, Dst: StateTerminationFailed.String()},
			{Name: "terminated", Src: []string{
				StateTerminationPending.String(), StateTerminationFailed.String(),
			}, Dst: StateTerminated.String()},
			{Name: "delete", Src: []string{
				StateTerminated.String(), StateTerminationFailed.String(),
			}, Dst: StateDeleted.String()},
		}, nil,
	)
}

func fsmEvent(m *fsm.FSM, dst State) error {
	return m.Event(context.Background(), enterEvent(dst))
}
