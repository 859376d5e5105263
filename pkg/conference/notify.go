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
)

// Event-notification reactor. The event-package subscriber decodes NOTIFY
// bodies and feeds the resulting membership, subject and device changes in
// here; all handlers run on the same cooperative callback loop as the rest
// of the conference.

// NotifyParticipantAdded records a participant the server admitted.
func (r *RemoteConference) NotifyParticipantAdded(addr *sip.Uri) {
	defer r.persistSnapshot()
	if sameAddress(addr, r.me.Address()) {
		if r.State() == StateCreationPending {
			r.startSubscription()
		}
		return
	}
	if p := r.addParticipant(addr); p != nil {
		r.log.Infow("participant admitted by server", "participant", addressKey(addr))
	} else {
		r.log.Warnw("server admitted an unusable participant address", nil, "participant", addressKey(addr))
	}
}

// NotifyParticipantRemoved records a participant the server dropped. When it
// is the local participant the event subscription is torn down; the
// conference itself ends through the focus dialog, not through this path.
func (r *RemoteConference) NotifyParticipantRemoved(addr *sip.Uri) {
	if sameAddress(addr, r.me.Address()) {
		if r.sub != nil {
			r.sub.Unsubscribe()
			r.sub = nil
		}
		return
	}
	if p := r.removeParticipant(addr); p != nil {
		r.log.Infow("participant removed by server", "participant", addressKey(addr))
	} else {
		r.log.Debugw("server removed an unknown participant", "participant", addressKey(addr))
	}
}

// NotifySubjectChanged applies the server-confirmed subject.
func (r *RemoteConference) NotifySubjectChanged(subject string) {
	p := r.params
	p.Subject = subject
	r.updateParams(p)
	r.persistSnapshot()
}

// NotifyParticipantRoleChanged applies a server-confirmed admin toggle.
func (r *RemoteConference) NotifyParticipantRoleChanged(addr *sip.Uri, admin bool) {
	if sameAddress(addr, r.me.Address()) {
		r.me.SetAdmin(admin)
	} else if p := r.FindParticipant(addr); p != nil {
		p.SetAdmin(admin)
	}
	r.persistSnapshot()
}

// NotifyDeviceAdded records a new endpoint of a participant. For our own
// device the current mute state is broadcast so other clients see it.
func (r *RemoteConference) NotifyDeviceAdded(participant, device *sip.Uri) {
	p := r.participantOrMe(participant)
	if p == nil {
		return
	}
	d := p.addDevice(device)
	if p == r.me && r.cb.OnDeviceMuteState != nil {
		r.cb.OnDeviceMuteState(d, r.core.LocalMuted())
	}
}

// NotifyDeviceRemoved drops an endpoint of a participant.
func (r *RemoteConference) NotifyDeviceRemoved(participant, device *sip.Uri) {
	p := r.participantOrMe(participant)
	if p == nil {
		return
	}
	p.removeDevice(device)
}

// NotifyDeviceStateChanged applies an endpoint state change and, when the
// change affects what we should be receiving, renegotiates the focus
// session.
func (r *RemoteConference) NotifyDeviceStateChanged(participant, device *sip.Uri, st DeviceState) {
	p := r.participantOrMe(participant)
	if p == nil {
		return
	}
	d := p.Device(device)
	if d == nil {
		return
	}
	d.SetState(st)
	r.maybeRenegotiateForDevice(p, d, true)
}

// NotifyDeviceMediaChanged applies a stream-availability change for an
// endpoint.
func (r *RemoteConference) NotifyDeviceMediaChanged(participant, device *sip.Uri, kind MediaKind, available bool) {
	p := r.participantOrMe(participant)
	if p == nil {
		return
	}
	d := p.Device(device)
	if d == nil {
		return
	}
	d.SetMediaAvailable(kind, available)
	r.maybeRenegotiateForDevice(p, d, false)
}

// NotifyAvailableMediaChanged applies a change of the capability set the
// conference advertises. Losing video while we still send it triggers a
// re-negotiation to drop the stream.
func (r *RemoteConference) NotifyAvailableMediaChanged(avail map[MediaKind]bool) {
	if r.params.VideoEnabled && !avail[MediaVideo] && r.isIn() {
		r.params.VideoEnabled = false
		r.tryUpdate("drop-video", false)
	}
}

// NotifyParticipantsCleared resets the local membership view.
func (r *RemoteConference) NotifyParticipantsCleared() {
	r.clearParticipants()
}

// startSubscription starts the event-package subscription, lazily creating
// the subscriber. Proceeds without one when the feature is absent.
func (r *RemoteConference) startSubscription() {
	if !r.cfg.EnableEventPackage || r.subs == nil {
		r.log.Infow("conference event package disabled, proceeding without subscription")
		return
	}
	if r.sub == nil {
		r.sub = r.subs(r)
	}
	if err := r.sub.Subscribe(r.id); err != nil {
		r.log.Warnw("could not subscribe to conference event package", err)
	}
}

func (r *RemoteConference) participantOrMe(addr *sip.Uri) *Participant {
	if sameAddress(addr, r.me.Address()) {
		return r.me
	}
	return r.FindParticipant(addr)
}

// isIn reports whether the client currently takes part in the conference
// media session.
func (r *RemoteConference) isIn() bool {
	s := r.FocusSession()
	if s == nil {
		return false
	}
	switch s.State() {
	case CallConnected, CallMediaEstablished, CallRemoteUpdated:
		return true
	}
	return false
}

// maybeRenegotiateForDevice decides from the security level, the media
// enablement flags and the device's stream availability whether the focus
// session must be renegotiated, and attempts it when the conference is
// established.
func (r *RemoteConference) maybeRenegotiateForDevice(p *Participant, d *Device, skipPending bool) {
	if r.State() != StateCreated || p == r.me || !r.isIn() {
		return
	}
	if skipPending && r.devicePending(d) {
		return
	}
	if !r.deviceNeedsRenegotiation(d) {
		return
	}
	r.tryUpdate("device", false)
}

func (r *RemoteConference) devicePending(d *Device) bool {
	for _, s := range r.pendingCalls {
		if sameAddress(s.RemoteAddress(), d.Address()) {
			return true
		}
	}
	return false
}

// deviceNeedsRenegotiation reports whether the streams we receive no longer
// match what the device offers.
func (r *RemoteConference) deviceNeedsRenegotiation(d *Device) bool {
	if r.params.Security == SecurityEndToEnd {
		return true
	}
	if r.params.VideoEnabled && d.MediaAvailable(MediaVideo) != (d.Ssrc(MediaVideo) != 0) {
		return true
	}
	if r.params.AudioEnabled && d.MediaAvailable(MediaAudio) != (d.Ssrc(MediaAudio) != 0) {
		return true
	}
	return false
}
