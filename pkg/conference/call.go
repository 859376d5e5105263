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
	"github.com/emiago/sipgo/sip"

	"github.com/averku/sipconf/pkg/sipfocus"
)

// CallState mirrors the SIP dialog state of a call session as reported by
// the call engine.
type CallState int

const (
	CallIdle = CallState(iota)
	CallOutgoingInit
	CallOutgoingProgress
	CallOutgoingRinging
	CallIncomingReceived
	CallConnected
	CallMediaEstablished
	CallPaused
	CallPausedByRemote
	CallUpdating
	CallRemoteUpdated
	CallError
	CallEnded
	CallReleased
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallOutgoingInit:
		return "outgoing-init"
	case CallOutgoingProgress:
		return "outgoing-progress"
	case CallOutgoingRinging:
		return "outgoing-ringing"
	case CallIncomingReceived:
		return "incoming-received"
	case CallConnected:
		return "connected"
	case CallMediaEstablished:
		return "media-established"
	case CallPaused:
		return "paused"
	case CallPausedByRemote:
		return "paused-by-remote"
	case CallUpdating:
		return "updating"
	case CallRemoteUpdated:
		return "remote-updated"
	case CallError:
		return "error"
	case CallEnded:
		return "ended"
	case CallReleased:
		return "released"
	}
	return "unknown"
}

// Ready reports whether a call can be transferred into the conference.
func (s CallState) Ready() bool {
	return s == CallMediaEstablished || s == CallPaused
}

// Live reports whether the dialog still exists on the wire.
func (s CallState) Live() bool {
	switch s {
	case CallIdle, CallError, CallEnded, CallReleased:
		return false
	}
	return true
}

// MediaRequest describes the re-negotiation the conference wants from its
// focus session. The call engine turns it into a re-INVITE.
type MediaRequest struct {
	// Subject, when non-empty, asks the focus to adopt a new conference
	// subject alongside the SDP update.
	Subject string
	// FetchConference requests the conference media streams (first join).
	FetchConference bool
	Audio           bool
	Video           bool
}

// Session is the call engine's view of one SIP call. All methods are invoked
// from the engine's event loop; implementations never need to be safe for
// concurrent use by the conference core.
//
// Every SIP action is fire-and-forget: the returned error only reports
// whether the attempt to send was possible. Outcomes arrive later through
// the conference's state-change handlers.
type Session interface {
	ID() string
	State() CallState
	RemoteAddress() *sip.Uri
	// RemoteContactAddress is the contact the peer advertised on the dialog;
	// nil until the dialog is established.
	RemoteContactAddress() *sip.Uri

	// Update sends a re-INVITE. Returns errors.ErrSessionBusy when the
	// dialog cannot carry one right now.
	Update(req MediaRequest) error
	Pause() error
	Resume() error
	Terminate() error
	// Transfer issues a REFER moving this call to the target address.
	Transfer(target *sip.Uri) error
	// AddPendingAction queues a retryable action to run when the dialog
	// frees up.
	AddPendingAction(fn func() error)

	// NegotiationInFlight reports whether an SDP offer/answer (or ICE
	// gathering, when the engine waits for it) is still running.
	NegotiationInFlight() bool

	// Conference back-reference, set and cleared only by the conference
	// itself. A non-owning link: the call engine owns the session.
	Conference() *RemoteConference
	SetConference(c *RemoteConference)
}

// Core is the directory service owning every call of the client, plus the
// bootstrap operations the conference cannot perform itself.
type Core interface {
	Calls() []Session
	CallByID(id string) Session
	CallByRemoteAddress(addr *sip.Uri) Session

	// CreateConferenceOnServer asks the server to allocate a conference for
	// the given participant list. The owning core later acknowledges by
	// moving the conference to StateCreationPending.
	CreateConferenceOnServer(params Params, localAddr *sip.Uri, participants []*sip.Uri) error

	// InviteFocus places the outbound call that becomes the focus session.
	// When admin is set the INVITE carries the admin marker.
	InviteFocus(to *sip.Uri, admin bool) (Session, error)

	// NewRefer builds a membership-request sender bound to the session's
	// SIP context.
	NewRefer(s Session) ReferSender

	// AudioRoute returns the input/output devices currently selected by the
	// user, and reapplies them after a conference transition.
	AudioRoute() (in, out string, ok bool)
	ApplyAudioRoute(in, out string)

	// LocalMuted reports the client's microphone mute state, broadcast when
	// the conference learns about our own device.
	LocalMuted() bool
}

// ReferSender sends REFER-style membership requests through the focus
// dialog.
type ReferSender interface {
	SendRefer(target *sip.Uri, opts sipfocus.ReferOpts) error
}
