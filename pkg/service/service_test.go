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

package service

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"

	"github.com/averku/sipconf/pkg/conference"
	"github.com/averku/sipconf/pkg/config"
	"github.com/averku/sipconf/pkg/errors"
)

type fakeInfoStore struct {
	infos map[string]*conference.ConferenceInfo
}

func (s *fakeInfoStore) ConferenceInfoByURI(uri *sip.Uri) (*conference.ConferenceInfo, bool) {
	info, ok := s.infos[uri.User+"@"+uri.Host]
	return info, ok
}

func (s *fakeInfoStore) InsertConferenceInfo(info *conference.ConferenceInfo) (int64, error) {
	return 1, nil
}

func testServiceConfig() *config.Config {
	return &config.Config{
		SIPUser:   "alice",
		SIPHost:   "client.example.com",
		UserAgent: "sipconf-test",
		NodeID:    "CO_test",
	}
}

func focusURI(user string) *sip.Uri {
	return &sip.Uri{User: user, Host: "focus.example.com"}
}

func TestCreateConferenceAdminBootstrap(t *testing.T) {
	store := &fakeInfoStore{infos: map[string]*conference.ConferenceInfo{
		"standup@focus.example.com": {
			URI:       focusURI("standup"),
			Organizer: &sip.Uri{User: "alice", Host: "client.example.com"},
		},
		"retro@focus.example.com": {
			URI:       focusURI("retro"),
			Organizer: &sip.Uri{User: "bob", Host: "client.example.com"},
		},
	}}
	s := NewService(testServiceConfig(), nil, store)
	require.NoError(t, s.mon.Start())
	defer s.mon.Stop()

	// No snapshot: this client is creating the conference, so it is admin.
	conf, err := s.CreateConference(focusURI("fresh"), conference.Params{})
	require.NoError(t, err)
	require.True(t, conf.Me().Admin())

	// Recorded conference organized by us.
	conf, err = s.CreateConference(focusURI("standup"), conference.Params{})
	require.NoError(t, err)
	require.True(t, conf.Me().Admin())

	// Recorded conference organized by someone else: rejoin as plain member.
	conf, err = s.CreateConference(focusURI("retro"), conference.Params{})
	require.NoError(t, err)
	require.False(t, conf.Me().Admin())

	require.Len(t, s.Registry().Conferences(), 3)
}

func TestCreateConferenceWithoutStoreDefaultsToAdmin(t *testing.T) {
	s := NewService(testServiceConfig(), nil, nil)
	require.NoError(t, s.mon.Start())
	defer s.mon.Stop()

	conf, err := s.CreateConference(focusURI("standup"), conference.Params{})
	require.NoError(t, err)
	require.True(t, conf.Me().Admin())
}

func TestCreateConferenceRejectedUnlessAccepting(t *testing.T) {
	s := NewService(testServiceConfig(), nil, nil)

	// Not started yet.
	_, err := s.CreateConference(focusURI("standup"), conference.Params{})
	require.ErrorIs(t, err, errors.ErrNotAccepting)

	require.NoError(t, s.mon.Start())
	defer s.mon.Stop()
	_, err = s.CreateConference(focusURI("standup"), conference.Params{})
	require.NoError(t, err)

	// Draining.
	s.mon.Shutdown()
	_, err = s.CreateConference(focusURI("standup"), conference.Params{})
	require.ErrorIs(t, err, errors.ErrNotAccepting)
}
