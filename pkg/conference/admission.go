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
	"sort"

	"github.com/emiago/sipgo/sip"

	"github.com/averku/sipconf/pkg/errors"
	"github.com/averku/sipconf/pkg/sipfocus"
)

// Every operation in this file is admin-gated: membership of a server-hosted
// conference can only be changed by an administrator, so the gate runs before
// any SIP traffic is generated.

func (r *RemoteConference) gateAdmin(op string) error {
	if r.me.Admin() {
		return nil
	}
	r.log.Warnw("membership operation requires admin", nil, "op", op)
	return errors.ErrNotAdmin
}

// AddParticipantCall admits an existing call into the conference. Depending
// on the lifecycle state this either bootstraps the focus dialog first or
// transfers the call right away; the merge itself always completes
// asynchronously through the call-state callbacks.
func (r *RemoteConference) AddParticipantCall(call Session) error {
	if err := r.gateAdmin("addParticipant"); err != nil {
		return err
	}
	st := r.State()
	switch st {
	case StateNone, StateInstantiated, StateCreationFailed:
		if err := r.bootstrapFocus(); err != nil {
			return err
		}
		if err := r.enqueuePending(call); err != nil {
			return err
		}
		r.addParticipant(call.RemoteAddress())
		return nil
	case StateCreationPending, StateCreated:
		s := r.FocusSession()
		if s == nil {
			if err := r.bootstrapFocus(); err != nil {
				return err
			}
			return r.enqueuePending(call)
		}
		if s.State().Ready() {
			if err := r.transferToFocus(call); err != nil {
				return err
			}
			r.addParticipant(call.RemoteAddress())
			return nil
		}
		return r.enqueuePending(call)
	default:
		return errors.ErrBadState("addParticipant", st.String())
	}
}

// AddParticipantByAddress resolves an address to a local call when one
// exists, and falls back to the address-list path otherwise.
func (r *RemoteConference) AddParticipantByAddress(addr *sip.Uri) error {
	if err := r.gateAdmin("addParticipant"); err != nil {
		return err
	}
	if s := r.core.CallByRemoteAddress(addr); s != nil {
		return r.AddParticipantCall(s)
	}
	return r.AddParticipants([]*sip.Uri{addr})
}

// AddParticipants invites a list of addresses. Before the conference exists
// on the server the whole list is delegated to the core's server-side
// creation; afterwards each address gets its own membership-add REFER.
func (r *RemoteConference) AddParticipants(addrs []*sip.Uri) error {
	if err := r.gateAdmin("addParticipants"); err != nil {
		return err
	}
	addrs = r.CleanAddressesList(addrs)
	st := r.State()
	if st == StateInstantiated || st == StateCreationPending {
		r.invited = append(r.invited, addrs...)
		return r.core.CreateConferenceOnServer(r.params, r.me.Address(), addrs)
	}
	var last error
	for _, addr := range addrs {
		if err := r.referAdd(addr); err != nil {
			last = err
			continue
		}
		r.addParticipant(addr)
	}
	return last
}

// AddParticipantCalls is the bulk call variant. When admission succeeds while
// the conference is still being created, the user's audio-route choice is
// re-applied so the device selection survives the transition.
func (r *RemoteConference) AddParticipantCalls(calls []Session) error {
	if err := r.gateAdmin("addParticipants"); err != nil {
		return err
	}
	var last error
	for _, call := range calls {
		if err := r.AddParticipantCall(call); err != nil {
			last = err
		}
	}
	if last == nil && r.State() == StateCreationPending {
		if in, out, ok := r.core.AudioRoute(); ok {
			r.core.ApplyAudioRoute(in, out)
		}
	}
	return last
}

// RemoveParticipantByAddress ejects a current participant by sending the
// focus a membership-remove REFER (method override BYE).
func (r *RemoteConference) RemoveParticipantByAddress(addr *sip.Uri) error {
	if err := r.gateAdmin("removeParticipant"); err != nil {
		return err
	}
	st := r.State()
	if st != StateCreated && st != StateTerminationPending {
		return errors.ErrBadState("removeParticipant", st.String())
	}
	if r.FindParticipant(addr) == nil {
		return errors.ErrNotParticipant(addressKey(addr))
	}
	s := r.FocusSession()
	if s == nil || s.RemoteContactAddress() == nil {
		return errors.ErrNoFocusSession
	}
	r.mon.ReferSend("remove")
	err := r.core.NewRefer(s).SendRefer(addr, sipfocus.ReferOpts{Method: "BYE"})
	if err != nil {
		r.mon.ReferError("remove", "send")
		r.log.Warnw("could not send membership-remove request", err, "participant", addressKey(addr))
		return err
	}
	return nil
}

func (r *RemoteConference) RemoveParticipantCall(s Session) error {
	return r.RemoveParticipantByAddress(s.RemoteAddress())
}

func (r *RemoteConference) RemoveParticipant(p *Participant) error {
	return r.RemoveParticipantByAddress(p.Address())
}

// SetParticipantAdminStatus toggles a participant's admin flag on the
// server. The local flag is only flipped once the event package confirms the
// change.
func (r *RemoteConference) SetParticipantAdminStatus(p *Participant, isAdmin bool) error {
	if err := r.gateAdmin("setParticipantAdminStatus"); err != nil {
		return err
	}
	if p.Admin() == isAdmin {
		return nil
	}
	s := r.FocusSession()
	if s == nil || s.RemoteContactAddress() == nil {
		return errors.ErrNoFocusSession
	}
	val := "0"
	if isAdmin {
		val = "1"
	}
	target := sipfocus.WithParam(p.Address(), sipfocus.ParamAdmin, val)
	r.mon.ReferSend("admin")
	if err := r.core.NewRefer(s).SendRefer(target, sipfocus.ReferOpts{}); err != nil {
		r.mon.ReferError("admin", "send")
		r.log.Warnw("could not send admin-toggle request", err, "participant", addressKey(p.Address()))
		return err
	}
	return nil
}

// SetSubject changes the conference subject. If the dialog is busy the
// update is queued as a pending action on the session and retried once the
// dialog frees up.
func (r *RemoteConference) SetSubject(subject string) error {
	if err := r.gateAdmin("setSubject"); err != nil {
		return err
	}
	if subject == r.pendingSubject {
		return nil
	}
	r.pendingSubject = subject
	s := r.FocusSession()
	if s == nil {
		return nil
	}
	r.mon.Reinvite("subject")
	err := s.Update(r.mediaRequest(false))
	if err == errors.ErrSessionBusy {
		r.log.Infow("subject update deferred, dialog busy", "subject", subject)
		s.AddPendingAction(func() error {
			return s.Update(r.mediaRequest(false))
		})
		return nil
	}
	return err
}

// Update applies a parameter change to the conference.
func (r *RemoteConference) Update(p Params) error {
	if err := r.gateAdmin("update"); err != nil {
		return err
	}
	r.updateParams(p)
	return nil
}

// CleanAddressesList deduplicates and sorts the input, stripping the local
// identity and every address already in the conference. Side-effect free.
func (r *RemoteConference) CleanAddressesList(addrs []*sip.Uri) []*sip.Uri {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]*sip.Uri, 0, len(addrs))
	for _, addr := range addrs {
		if addr == nil {
			continue
		}
		key := addressKey(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if sameAddress(addr, r.me.Address()) || r.FindParticipant(addr) != nil {
			continue
		}
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return addressKey(out[i]) < addressKey(out[j])
	})
	return out
}

// bootstrapFocus places the outbound call that becomes the focus session,
// asserting this client's admin role on the INVITE.
func (r *RemoteConference) bootstrapFocus() error {
	if r.FocusSession() != nil {
		return nil
	}
	s, err := r.core.InviteFocus(r.id.Remote, true)
	if err != nil {
		r.log.Warnw("could not invite focus", err)
		return err
	}
	r.BindFocusSession(s)
	return nil
}

// enqueuePending registers a call waiting for the focus dialog. Duplicate
// enqueues are rejected, not silently ignored.
func (r *RemoteConference) enqueuePending(call Session) error {
	if r.pendingContains(call) {
		r.log.Warnw("call already pending on this conference", nil, "call", call.ID())
		return errors.ErrAlreadyPending
	}
	r.pendingCalls = append(r.pendingCalls, call)
	call.SetConference(r)
	return nil
}

// referAdd sends a single membership-add REFER to the focus.
func (r *RemoteConference) referAdd(addr *sip.Uri) error {
	s := r.FocusSession()
	if s == nil || s.RemoteContactAddress() == nil {
		return errors.ErrNoFocusSession
	}
	target := sipfocus.WithParam(addr, sipfocus.ParamIsFocus, "")
	r.mon.ReferSend("add")
	if err := r.core.NewRefer(s).SendRefer(target, sipfocus.ReferOpts{}); err != nil {
		r.mon.ReferError("add", "send")
		r.log.Warnw("could not send membership-add request", err, "participant", addressKey(addr))
		return err
	}
	return nil
}

// transferToFocus moves a call into the conference by transferring it to the
// focus contact, carrying the candidate's admin flag. Registry bookkeeping is
// the caller's responsibility.
func (r *RemoteConference) transferToFocus(call Session) error {
	target := r.focusContact()
	if target == nil {
		return errors.ErrNoFocusSession
	}
	admin := "0"
	if p := r.FindParticipant(call.RemoteAddress()); p != nil && p.Admin() {
		admin = "1"
	}
	target = sipfocus.WithParam(target, sipfocus.ParamAdmin, admin)
	r.persistSnapshot()
	r.mon.ReferSend("transfer")
	if err := call.Transfer(target); err != nil {
		r.mon.ReferError("transfer", "send")
		r.log.Warnw("could not transfer call to focus", err, "call", call.ID())
		return err
	}
	call.SetConference(r)
	return nil
}
