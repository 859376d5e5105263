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

	"github.com/averku/sipconf/pkg/errors"
)

func TestNotifyParticipantLifecycle(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}}
	conf, _ := establishedConference(t, core, &fakeSubscriber{})

	var added, removed []*Participant
	conf.SetCallbacks(Callbacks{
		OnParticipantAdded:   func(p *Participant) { added = append(added, p) },
		OnParticipantRemoved: func(p *Participant) { removed = append(removed, p) },
	})

	conf.NotifyParticipantAdded(uri("bob"))
	require.NotNil(t, conf.FindParticipant(uri("bob")))
	require.Len(t, added, 1)

	// Duplicates do not produce a second participant.
	conf.NotifyParticipantAdded(uri("bob"))
	require.Equal(t, 1, conf.ParticipantCount())
	require.Len(t, added, 1)

	conf.NotifyParticipantRemoved(uri("bob"))
	require.Nil(t, conf.FindParticipant(uri("bob")))
	require.Len(t, removed, 1)

	// Removing an unknown participant is tolerated.
	conf.NotifyParticipantRemoved(uri("bob"))
	require.Len(t, removed, 1)
}

func TestNotifyOwnAdmissionStartsSubscription(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}}
	sub := &fakeSubscriber{}
	conf := newTestConference(t, core, sub)
	fs := &fakeSession{id: "focus", state: CallMediaEstablished, contact: focusContactURI("conf42")}
	conf.BindFocusSession(fs)
	require.NoError(t, conf.SetState(StateCreationPending))

	conf.NotifyParticipantAdded(uri("alice"))
	require.Equal(t, 1, sub.subscribed)
	// Our own admission never creates a participant entry.
	require.Equal(t, 0, conf.ParticipantCount())
}

func TestNotifyOwnRemovalUnsubscribes(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}}
	sub := &fakeSubscriber{}
	conf, _ := establishedConference(t, core, sub)

	conf.NotifyParticipantRemoved(uri("alice"))
	require.Equal(t, 1, sub.unsubscribed)
	// The conference itself ends through the focus dialog, not here.
	require.Equal(t, StateCreated, conf.State())
}

func TestNotifySubjectChanged(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}}
	conf, _ := establishedConference(t, core, &fakeSubscriber{})

	var subjects []string
	conf.SetCallbacks(Callbacks{
		OnSubjectChanged: func(s string) { subjects = append(subjects, s) },
	})

	conf.NotifySubjectChanged("retro")
	require.Equal(t, "retro", conf.Params().Subject)
	require.Equal(t, []string{"retro"}, subjects)

	conf.NotifySubjectChanged("retro")
	require.Len(t, subjects, 1)
}

func TestNotifyRoleChanged(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}}
	conf, _ := establishedConference(t, core, &fakeSubscriber{})
	conf.NotifyParticipantAdded(uri("bob"))

	conf.NotifyParticipantRoleChanged(uri("bob"), true)
	require.True(t, conf.FindParticipant(uri("bob")).Admin())

	conf.NotifyParticipantRoleChanged(uri("alice"), false)
	require.False(t, conf.Me().Admin())
}

func TestNotifyOwnDeviceBroadcastsMuteState(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}, muted: true}
	conf, _ := establishedConference(t, core, &fakeSubscriber{})

	var muted []bool
	conf.SetCallbacks(Callbacks{
		OnDeviceMuteState: func(d *Device, m bool) { muted = append(muted, m) },
	})

	conf.NotifyDeviceAdded(uri("alice"), uri("alice-desk"))
	require.Equal(t, []bool{true}, muted)

	// Other participants' devices do not trigger the broadcast.
	conf.NotifyParticipantAdded(uri("bob"))
	conf.NotifyDeviceAdded(uri("bob"), uri("bob-desk"))
	require.Len(t, muted, 1)
}

func TestNotifyDeviceMediaTriggersRenegotiation(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}}
	conf, fs := establishedConference(t, core, &fakeSubscriber{})
	conf.NotifyParticipantAdded(uri("bob"))
	conf.NotifyDeviceAdded(uri("bob"), uri("bob-desk"))

	p := conf.Params()
	p.VideoEnabled = true
	require.NoError(t, conf.Update(p))

	updates := len(fs.updates)
	// Video became available on the device but we receive no stream yet.
	conf.NotifyDeviceMediaChanged(uri("bob"), uri("bob-desk"), MediaVideo, true)
	require.Len(t, fs.updates, updates+1)
}

func TestNotifyDeviceMediaDefersWhenBusy(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}}
	conf, fs := establishedConference(t, core, &fakeSubscriber{})
	conf.NotifyParticipantAdded(uri("bob"))
	conf.NotifyDeviceAdded(uri("bob"), uri("bob-desk"))

	p := conf.Params()
	p.VideoEnabled = true
	require.NoError(t, conf.Update(p))

	fs.updateErr = errors.ErrSessionBusy
	conf.NotifyDeviceMediaChanged(uri("bob"), uri("bob-desk"), MediaVideo, true)
	require.True(t, conf.UpdateScheduled())
}

func TestNotifyDeviceStateSkipsPendingCalls(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}}
	conf, fs := establishedConference(t, core, &fakeSubscriber{})

	fs.state = CallConnected
	call := &fakeSession{id: "bob-call", remote: uri("bob"), state: CallOutgoingProgress}
	require.NoError(t, conf.AddParticipantCall(call))
	fs.state = CallMediaEstablished

	conf.NotifyParticipantAdded(uri("bob"))
	conf.NotifyDeviceAdded(uri("bob"), uri("bob"))

	p := conf.Params()
	p.Security = SecurityEndToEnd
	require.NoError(t, conf.Update(p))

	updates := len(fs.updates)
	conf.NotifyDeviceStateChanged(uri("bob"), uri("bob"), DevicePresent)
	require.Len(t, fs.updates, updates)
}

func TestNotifyAvailableMediaDropsVideo(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}}
	conf, fs := establishedConference(t, core, &fakeSubscriber{})

	p := conf.Params()
	p.VideoEnabled = true
	require.NoError(t, conf.Update(p))

	updates := len(fs.updates)
	conf.NotifyAvailableMediaChanged(map[MediaKind]bool{MediaAudio: true})
	require.Len(t, fs.updates, updates+1)
	require.False(t, fs.updates[updates].Video)
	require.False(t, conf.Params().VideoEnabled)
}

func TestNotifyParticipantsCleared(t *testing.T) {
	core := &fakeCore{refer: &fakeRefer{}}
	conf, _ := establishedConference(t, core, &fakeSubscriber{})
	conf.NotifyParticipantAdded(uri("bob"))
	conf.NotifyParticipantAdded(uri("carol"))
	require.Equal(t, 2, conf.ParticipantCount())

	conf.NotifyParticipantsCleared()
	require.Equal(t, 0, conf.ParticipantCount())
}
