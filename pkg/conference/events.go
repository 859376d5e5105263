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

// ID identifies a conference by its local/remote address pair; the remote
// side doubles as the event-package resource.
type ID struct {
	Local  *sip.Uri
	Remote *sip.Uri
}

// Subscriber is the conference event-package collaborator. It delivers
// parsed NOTIFY events back into the conference's Notify* handlers.
type Subscriber interface {
	Subscribe(id ID) error
	Unsubscribe()
}

// SubscriberFactory creates an event-package subscription bound to one
// conference. A nil factory means the feature is absent from this build;
// conferences then proceed without membership notifications.
type SubscriberFactory func(conf *RemoteConference) Subscriber

// Callbacks are the application-facing notifications a conference emits.
// Nil members are skipped.
type Callbacks struct {
	OnStateChanged       func(st State)
	OnParticipantAdded   func(p *Participant)
	OnParticipantRemoved func(p *Participant)
	// OnParticipantReJoined fires when the local participant re-enters the
	// conference media after a pause.
	OnParticipantReJoined func(p *Participant)
	OnSubjectChanged      func(subject string)
	// OnDeviceMuteState broadcasts the local mute state when the server
	// learns about one of our own devices.
	OnDeviceMuteState func(d *Device, muted bool)
}
