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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecycleHappyPath(t *testing.T) {
	m := newLifecycleFSM()
	for _, st := range []State{
		StateInstantiated,
		StateCreationPending,
		StateCreated,
		StateTerminationPending,
		StateTerminated,
		StateDeleted,
	} {
		require.NoError(t, fsmEvent(m, st), "entering %s", st)
		require.Equal(t, st.String(), m.Current())
	}
}

func TestLifecycleCreationRetry(t *testing.T) {
	m := newLifecycleFSM()
	require.NoError(t, fsmEvent(m, StateInstantiated))
	require.NoError(t, fsmEvent(m, StateCreationPending))
	require.NoError(t, fsmEvent(m, StateCreationFailed))

	// A failed creation can be retried or the conference torn down.
	require.NoError(t, fsmEvent(m, StateCreationPending))
	require.NoError(t, fsmEvent(m, StateCreationFailed))
	require.NoError(t, fsmEvent(m, StateTerminationPending))
	require.NoError(t, fsmEvent(m, StateTerminated))
}

func TestLifecycleTerminationFailure(t *testing.T) {
	m := newLifecycleFSM()
	require.NoError(t, fsmEvent(m, StateInstantiated))
	require.NoError(t, fsmEvent(m, StateTerminationPending))
	require.NoError(t, fsmEvent(m, StateTerminationFailed))

	// Termination can be retried, finished or the record dropped outright.
	require.NoError(t, fsmEvent(m, StateTerminationPending))
	require.NoError(t, fsmEvent(m, StateTerminationFailed))
	require.NoError(t, fsmEvent(m, StateTerminated))
	require.NoError(t, fsmEvent(m, StateDeleted))
}

func TestLifecycleRejectsIllegalMoves(t *testing.T) {
	for _, tc := range []struct {
		name string
		path []State
		to   State
	}{
		{"none to created", nil, StateCreated},
		{"instantiated to created", []State{StateInstantiated}, StateCreated},
		{"instantiated to terminated", []State{StateInstantiated}, StateTerminated},
		{"created back to pending", []State{StateInstantiated, StateCreationPending, StateCreated}, StateCreationPending},
		{"created to deleted", []State{StateInstantiated, StateCreationPending, StateCreated}, StateDeleted},
		{"terminated to created", []State{StateInstantiated, StateTerminationPending, StateTerminated}, StateCreated},
		{"deleted is final", []State{StateInstantiated, StateTerminationPending, StateTerminated, StateDeleted}, StateInstantiated},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := newLifecycleFSM()
			for _, st := range tc.path {
				require.NoError(t, fsmEvent(m, st))
			}
			require.Error(t, fsmEvent(m, tc.to))
		})
	}
}

func TestStateStrings(t *testing.T) {
	for _, st := range []State{
		StateInstantiated, StateCreationPending, StateCreationFailed, StateCreated,
		StateTerminationPending, StateTerminationFailed, StateTerminated, StateDeleted,
	} {
		require.Equal(t, st, stateFromString(st.String()))
	}
	require.Equal(t, StateNone, stateFromString("bogus"))
}
