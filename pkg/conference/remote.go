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
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/frostbyte73/core"
	"github.com/google/uuid"

	"github.com/livekit/protocol/logger"

	"github.com/averku/sipconf/pkg/config"
	"github.com/averku/sipconf/pkg/errors"
	"github.com/averku/sipconf/pkg/sipfocus"
	"github.com/averku/sipconf/pkg/stats"
)

// RemoteConference is this client's participation in a server-hosted
// conference. It owns exactly one focus participant whose bound call session
// is the SIP dialog with the conference server, tracks calls waiting to be
// merged, and reconciles call-state transitions, REFER results and
// event-package notifications into the lifecycle machine.
type RemoteConference struct {
	Conference

	core Core
	cfg  config.Conference

	subs SubscriberFactory
	sub  Subscriber

	focus          *Participant
	pendingSubject string

	finalized core.Fuse
	fullState core.Fuse

	// scheduleUpdate marks a re-negotiation owed to the server. A single
	// slot: it is retried opportunistically on every relevant event until
	// it succeeds or the conference terminates.
	scheduleUpdate bool

	pendingCalls     []Session
	transferingCalls []Session
	invited          []*sip.Uri

	lastFocusState CallState

	// Active-speaker bookkeeping, driven by media-layer notifications.
	displayedSpeaker uint32
	louderSpeaker    uint32
	lastNotifiedSsrc uint32

	createDur func() time.Duration
}

// Options bundles the collaborators a remote conference is built from.
type Options struct {
	Core    Core
	Conf    config.Conference
	Log     logger.Logger
	Monitor *stats.ConfMonitor
	Store   InfoStore
	// Subscribers is nil when the event package feature is absent.
	Subscribers SubscriberFactory
}

// NewRemoteConference binds the focus participant (with an optional
// pre-existing session, for the case where the focus call already exists)
// and moves the conference to StateInstantiated.
func NewRemoteConference(opts Options, localAddr, focusAddr *sip.Uri, focusSession Session, params Params, invited []*sip.Uri) *RemoteConference {
	log := opts.Log
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithValues("conferenceID", uuid.NewString(), "focus", addressKey(focusAddr))
	r := &RemoteConference{
		Conference: newConference(log, opts.Monitor, opts.Store, ID{Local: localAddr, Remote: focusAddr}, localAddr, params),
		core:       opts.Core,
		cfg:        opts.Conf,
		subs:       opts.Subscribers,
		invited:    invited,
	}
	r.pendingSubject = params.Subject
	r.onState = r.onStateChanged
	r.createFocus(focusAddr, focusSession)
	_ = r.SetState(StateInstantiated)
	r.mon.ConfStart()
	return r
}

// createFocus constructs the focus participant, optionally bound to a
// pre-existing session.
func (r *RemoteConference) createFocus(addr *sip.Uri, session Session) {
	r.focus = NewParticipant(addr)
	if session != nil {
		r.BindFocusSession(session)
	}
}

// BindFocusSession attaches an established dialog as the focus session.
func (r *RemoteConference) BindFocusSession(s Session) {
	r.focus.setSession(s)
	s.SetConference(r)
}

// Focus returns the participant representing the conference server.
func (r *RemoteConference) Focus() *Participant { return r.focus }

// FocusSession returns the call session bound to the focus, or nil before an
// outbound INVITE completed.
func (r *RemoteConference) FocusSession() Session {
	if r.focus == nil {
		return nil
	}
	return r.focus.Session()
}

func (r *RemoteConference) PendingSubject() string { return r.pendingSubject }

func (r *RemoteConference) Finalized() bool { return r.finalized.IsBroken() }

func (r *RemoteConference) FullStateReceived() bool { return r.fullState.IsBroken() }

func (r *RemoteConference) UpdateScheduled() bool { return r.scheduleUpdate }

func (r *RemoteConference) PendingCalls() []Session { return r.pendingCalls }

func (r *RemoteConference) TransferingCalls() []Session { return r.transferingCalls }

func (r *RemoteConference) InvitedParticipants() []*sip.Uri { return r.invited }

// focusContact returns the contact the focus advertised, or nil.
func (r *RemoteConference) focusContact() *sip.Uri {
	s := r.FocusSession()
	if s == nil {
		return nil
	}
	return s.RemoteContactAddress()
}

// FinalizeCreation runs the creation handshake: it marks the conference
// finalized and, when the event package feature is enabled, starts the
// membership subscription. Idempotent.
func (r *RemoteConference) FinalizeCreation() error {
	if st := r.State(); st != StateCreationPending {
		r.log.Warnw("cannot finalize conference creation", nil, "state", st)
		return errors.ErrBadState("finalizeCreation", st.String())
	}
	if r.finalized.IsBroken() {
		r.log.Infow("conference creation already finalized")
		return nil
	}
	r.finalized.Once(r.startSubscription)
	return nil
}

// OnFullStateReceived consumes the complete membership snapshot delivered by
// the event package. It requests the media-fetching re-negotiation
// immediately when the dialog is free, and defers it otherwise.
func (r *RemoteConference) OnFullStateReceived() {
	r.persistSnapshot()
	if s := r.FocusSession(); s != nil && !s.NegotiationInFlight() {
		r.tryUpdate("fetch-media", true)
	} else {
		r.deferUpdate("full-state")
	}
	r.fullState.Break()
}

// onStateChanged is the internal lifecycle hook, dispatched after every
// transition of the state machine.
func (r *RemoteConference) onStateChanged(st State) {
	switch st {
	case StateCreationPending:
		r.createDur = r.mon.CreateDur()
	case StateCreationFailed:
		r.detachFocusSession()
		r.clearRegistries()
		r.finishTermination("creation-failed")
	case StateCreated:
		if r.createDur != nil {
			r.createDur()
			r.createDur = nil
		}
		if s := r.FocusSession(); s != nil && r.me.Admin() &&
			r.pendingSubject != "" && r.pendingSubject != r.params.Subject {
			r.tryUpdate("subject", false)
		}
	case StateTerminationPending:
		if r.sub != nil {
			r.sub.Unsubscribe()
			r.sub = nil
		}
		r.lastNotifiedSsrc = 0
		// The focus call is detached, not terminated: a local conference
		// may keep using the same dialog as another participant's call.
		r.detachFocusSession()
		r.finishTermination("terminated")
		_ = r.SetState(StateTerminated)
	case StateDeleted:
		r.clearRegistries()
		r.detachFocusSession()
		r.focus = nil
	}
}

// Terminate commits to tearing the conference down. With a live focus call
// the SIP dialog is terminated first and destruction completes
// asynchronously when that call ends; otherwise the machine moves straight
// to termination. Not cancellable.
func (r *RemoteConference) Terminate() error {
	st := r.State()
	switch st {
	case StateCreated, StateCreationPending, StateCreationFailed:
		if s := r.FocusSession(); s != nil && s.State().Live() {
			r.log.Infow("terminating focus call", "callState", s.State())
			if err := s.Terminate(); err != nil {
				r.log.Warnw("could not terminate focus call", err)
			}
			return nil
		}
	case StateTerminated, StateDeleted:
		return nil
	}
	return r.SetState(StateTerminationPending)
}

// EndConference forces termination, used when the server unilaterally drops
// this client from the conference.
func (r *RemoteConference) EndConference() {
	st := r.State()
	if st == StateTerminated || st == StateDeleted {
		return
	}
	_ = r.SetState(StateTerminationPending)
	if !r.finalized.IsBroken() && r.State() != StateTerminated {
		r.finishTermination("ended")
		_ = r.SetState(StateTerminated)
	}
}

// Delete releases the conference after termination.
func (r *RemoteConference) Delete() {
	_ = r.SetState(StateDeleted)
}

func (r *RemoteConference) detachFocusSession() {
	if r.focus == nil {
		return
	}
	if s := r.focus.Session(); s != nil {
		s.SetConference(nil)
		r.focus.setSession(nil)
	}
}

// clearRegistries detaches every pending and transferring call. The calls
// themselves are left to resolve on their own; only the conference
// back-reference is cleared.
func (r *RemoteConference) clearRegistries() {
	for _, s := range r.pendingCalls {
		s.SetConference(nil)
	}
	for _, s := range r.transferingCalls {
		s.SetConference(nil)
	}
	r.pendingCalls = nil
	r.transferingCalls = nil
}

// mediaRequest builds the re-negotiation request matching the conference's
// current desires.
func (r *RemoteConference) mediaRequest(fetch bool) MediaRequest {
	return MediaRequest{
		Subject:         r.pendingSubject,
		FetchConference: fetch,
		Audio:           r.params.AudioEnabled,
		Video:           r.params.VideoEnabled,
	}
}

// tryUpdate attempts a re-negotiation of the focus session right now. A
// failure is never fatal: it arms the deferred-retry slot instead.
func (r *RemoteConference) tryUpdate(kind string, fetch bool) {
	s := r.FocusSession()
	if s == nil {
		r.deferUpdate(kind)
		return
	}
	r.mon.Reinvite(kind)
	if err := s.Update(r.mediaRequest(fetch)); err != nil {
		r.log.Infow("re-negotiation could not be sent, deferring", "kind", kind, "error", err)
		r.deferUpdate(kind)
		return
	}
	r.scheduleUpdate = false
	if fetch && r.State() == StateCreationPending {
		_ = r.SetState(StateCreated)
	}
}

func (r *RemoteConference) deferUpdate(kind string) {
	r.scheduleUpdate = true
	r.mon.ReinviteDeferred()
	r.log.Debugw("re-negotiation deferred", "kind", kind)
}

// retryDeferredUpdate is the tail step of every focus dispatch: when a
// re-negotiation is owed and the dialog is free, attempt it; on failure the
// flag stays armed for the next state change.
func (r *RemoteConference) retryDeferredUpdate() {
	switch r.State() {
	case StateTerminationPending, StateTerminated, StateDeleted:
		return
	}
	if !r.scheduleUpdate {
		return
	}
	s := r.FocusSession()
	if s == nil || !s.State().Live() || s.NegotiationInFlight() {
		return
	}
	fetch := r.State() == StateCreationPending && r.finalized.IsBroken() && r.fullState.IsBroken()
	r.mon.Reinvite("deferred")
	if err := s.Update(r.mediaRequest(fetch)); err != nil {
		r.log.Debugw("deferred re-negotiation still not possible", "error", err)
		return
	}
	r.scheduleUpdate = false
	if fetch {
		_ = r.SetState(StateCreated)
	}
}

// OnFocusCallStateChanged is the single dispatcher for every SIP transition
// of the focus dialog. It runs as an ordered list of guarded steps; later
// steps depend on the side effects of earlier ones, so the order is a
// correctness requirement.
func (r *RemoteConference) OnFocusCallStateChanged(st CallState) {
	contact := r.focusContact()
	isFocus := sipfocus.ContactIsFocus(contact)

	// Step 1: media established.
	if st == CallMediaEstablished {
		r.persistSnapshot()
		if r.lastFocusState == CallPaused || r.lastFocusState == CallPausedByRemote {
			if r.cb.OnParticipantReJoined != nil {
				r.cb.OnParticipantReJoined(r.me)
			}
		}
		r.refreshDeviceMedia()
		if isFocus {
			s := r.FocusSession()
			negotiationClear := s != nil && (!s.NegotiationInFlight() || !r.cfg.WaitForICEBeforeReinvite)
			if negotiationClear && r.finalized.IsBroken() && r.fullState.IsBroken() &&
				r.State() == StateCreationPending {
				r.tryUpdate("fetch-media", true)
			}
		}
	}

	// Step 2: connected, paused or remote-updated (or fall-through from 1).
	if st == CallMediaEstablished || st == CallConnected || st == CallPaused || st == CallRemoteUpdated {
		if isFocus {
			r.confAddr = sipfocus.StripParam(contact, sipfocus.ParamIsFocus)
			r.transferReadyPendingCalls()
			if !r.finalized.IsBroken() {
				r.id.Remote = r.confAddr
				if s := r.FocusSession(); s != nil && !s.NegotiationInFlight() {
					_ = r.FinalizeCreation()
				}
			}
		}
	}

	// Step 3: the server revoked our membership (or fall-through from 2).
	if st == CallMediaEstablished || st == CallConnected || st == CallPaused ||
		st == CallRemoteUpdated || st == CallPausedByRemote {
		if contact != nil && !isFocus && st != CallConnected {
			r.log.Infow("focus contact lost its marker, conference revoked by server")
			r.EndConference()
		}
	}

	// Step 4: focus call errored.
	if st == CallError {
		_ = r.SetState(StateCreationFailed)
	}

	// Step 5: focus call ended.
	if st == CallEnded {
		r.EndConference()
	}

	// Tail step: always give the deferred re-negotiation a chance.
	r.retryDeferredUpdate()
	r.lastFocusState = st
}

// transferReadyPendingCalls moves every pending call that reached a
// transferable state into the conference.
func (r *RemoteConference) transferReadyPendingCalls() {
	if r.focusContact() == nil {
		return
	}
	// Collect first: removePendingCall compacts the registry in place, so
	// transferring while ranging over it would skip entries.
	var ready []Session
	for _, call := range r.pendingCalls {
		if call.State().Ready() {
			ready = append(ready, call)
		}
	}
	for _, call := range ready {
		r.removePendingCall(call)
		if err := r.transferToFocus(call); err != nil {
			r.log.Warnw("could not transfer pending call", err, "call", call.ID())
		}
	}
}

// refreshDeviceMedia recomputes every known device's stream availability
// from the current conference capabilities.
func (r *RemoteConference) refreshDeviceMedia() {
	for _, p := range r.participants {
		for _, d := range p.Devices() {
			d.SetMediaAvailable(MediaAudio, r.params.AudioEnabled)
			d.SetMediaAvailable(MediaVideo, r.params.VideoEnabled)
			d.SetMediaAvailable(MediaText, r.params.ChatEnabled)
		}
	}
}

// OnPendingCallStateChanged tracks a call waiting to be merged. Once both
// the call and the focus session are ready it is transferred; on failure it
// is dropped and the conference auto-terminates when nothing is left.
func (r *RemoteConference) OnPendingCallStateChanged(call Session, st CallState) {
	if !r.pendingContains(call) {
		r.log.Debugw("ignoring state change for unknown pending call", "call", call.ID(), "callState", st)
		return
	}
	focusReady := false
	if s := r.FocusSession(); s != nil {
		switch s.State() {
		case CallConnected, CallMediaEstablished, CallRemoteUpdated:
			focusReady = true
		}
	}
	confState := r.State()
	if st.Ready() && focusReady &&
		(confState == StateCreationPending || confState == StateCreated) &&
		r.focusContact() != nil {
		r.removePendingCall(call)
		if err := r.transferToFocus(call); err != nil {
			r.log.Warnw("could not transfer pending call", err, "call", call.ID())
		}
		return
	}
	if st == CallError || st == CallEnded {
		r.removePendingCall(call)
		call.SetConference(nil)
		r.removeParticipant(call.RemoteAddress())
		r.terminateIfEmpty()
	}
}

// OnTransferingCallStateChanged tracks the REFER progress of a call being
// merged into the conference.
func (r *RemoteConference) OnTransferingCallStateChanged(call Session, st CallState) {
	switch st {
	case CallConnected:
		if !r.transferingContains(call) {
			r.transferingCalls = append(r.transferingCalls, call)
		}
	case CallError:
		r.removeTransferingCall(call)
		call.SetConference(nil)
		r.removeParticipant(call.RemoteAddress())
		r.terminateIfEmpty()
	}
}

// terminateIfEmpty terminates the conference once participants and both call
// registries are all empty.
func (r *RemoteConference) terminateIfEmpty() {
	if len(r.participants) == 0 && len(r.pendingCalls) == 0 && len(r.transferingCalls) == 0 {
		r.log.Infow("conference is empty, terminating")
		_ = r.Terminate()
	}
}

func (r *RemoteConference) pendingContains(call Session) bool {
	for _, s := range r.pendingCalls {
		if s == call {
			return true
		}
	}
	return false
}

func (r *RemoteConference) removePendingCall(call Session) {
	for i, s := range r.pendingCalls {
		if s == call {
			r.pendingCalls = append(r.pendingCalls[:i], r.pendingCalls[i+1:]...)
			return
		}
	}
}

func (r *RemoteConference) transferingContains(call Session) bool {
	for _, s := range r.transferingCalls {
		if s == call {
			return true
		}
	}
	return false
}

func (r *RemoteConference) removeTransferingCall(call Session) {
	for i, s := range r.transferingCalls {
		if s == call {
			r.transferingCalls = append(r.transferingCalls[:i], r.transferingCalls[i+1:]...)
			return
		}
	}
}

// OnActiveSpeakerSsrc records the media layer's active speaker notification.
func (r *RemoteConference) OnActiveSpeakerSsrc(ssrc uint32) {
	r.louderSpeaker = ssrc
	if ssrc != r.lastNotifiedSsrc {
		r.displayedSpeaker = ssrc
		r.lastNotifiedSsrc = ssrc
	}
}
