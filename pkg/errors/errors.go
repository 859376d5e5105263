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

package errors

import (
	"github.com/livekit/psrpc"
)

var (
	ErrNoConfig = psrpc.NewErrorf(psrpc.InvalidArgument, "missing config")

	// ErrNotAdmin rejects admin-gated membership operations before any SIP
	// traffic is produced.
	ErrNotAdmin = psrpc.NewErrorf(psrpc.PermissionDenied, "local participant is not an administrator")

	// ErrNoFocusSession means the conference has no dialog with the focus yet.
	ErrNoFocusSession = psrpc.NewErrorf(psrpc.FailedPrecondition, "no focus session bound to the conference")

	// ErrSessionBusy is transient: the dialog cannot carry a re-INVITE right
	// now. Callers defer and retry, they never fail on it.
	ErrSessionBusy = psrpc.NewErrorf(psrpc.Unavailable, "session is busy renegotiating")

	ErrAlreadyPending = psrpc.NewErrorf(psrpc.AlreadyExists, "call is already pending on this conference")

	// ErrNotAccepting rejects new conferences while the service is starting
	// up or draining.
	ErrNotAccepting = psrpc.NewErrorf(psrpc.Unavailable, "service is not accepting new conferences")
)

func ErrCouldNotParseConfig(err error) psrpc.Error {
	return psrpc.NewErrorf(psrpc.InvalidArgument, "could not parse config: %v", err)
}

func ErrBadState(op, state string) psrpc.Error {
	return psrpc.NewErrorf(psrpc.FailedPrecondition, "%s is not allowed in state %s", op, state)
}

func ErrNotParticipant(addr string) psrpc.Error {
	return psrpc.NewErrorf(psrpc.NotFound, "%s is not a participant of this conference", addr)
}
