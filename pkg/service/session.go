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
	"sync"

	"github.com/emiago/sipgo/sip"

	"github.com/livekit/protocol/logger"

	"github.com/averku/sipconf/pkg/conference"
	"github.com/averku/sipconf/pkg/errors"
	"github.com/averku/sipconf/pkg/sipfocus"
)

// callSession adapts one outbound SIP dialog to the conference core's
// session contract. The conference side of it runs on the engine's event
// loop; the mutex only covers the fields the SIP side touches.
type callSession struct {
	e   *Engine
	log logger.Logger
	id  string
	out *sipfocus.Outbound

	remote *sip.Uri

	mu          sync.Mutex
	state       conference.CallState
	negotiating bool
	pending     []func() error

	conf *conference.RemoteConference
}

var _ conference.Session = (*callSession)(nil)

func (s *callSession) ID() string { return s.id }

func (s *callSession) State() conference.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *callSession) RemoteAddress() *sip.Uri { return s.remote }

func (s *callSession) RemoteContactAddress() *sip.Uri { return s.out.RemoteContact() }

// setState records the SIP transition and schedules its dispatch into the
// conference layer on the engine's event loop.
func (s *callSession) setState(st conference.CallState) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	s.log.Debugw("call state changed", "callState", st)
	s.e.Post(func() {
		s.e.reg.OnCallStateChanged(s, st)
		if st.Ready() {
			s.runPendingActions()
		}
	})
}

func (s *callSession) Update(req conference.MediaRequest) error {
	s.mu.Lock()
	if s.negotiating {
		s.mu.Unlock()
		return errors.ErrSessionBusy
	}
	s.negotiating = true
	s.mu.Unlock()

	offer, err := sipfocus.GenerateOffer(s.e.conf.MediaIP, s.e.conf.RTPPort, req.Video)
	if err != nil {
		s.endNegotiation()
		return err
	}
	if _, err = s.out.Update(offer, req.Subject); err != nil {
		s.endNegotiation()
		s.log.Warnw("re-INVITE failed", err)
		return err
	}
	s.endNegotiation()
	s.setState(conference.CallMediaEstablished)
	return nil
}

func (s *callSession) endNegotiation() {
	s.mu.Lock()
	s.negotiating = false
	s.mu.Unlock()
}

func (s *callSession) NegotiationInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiating
}

func (s *callSession) Pause() error {
	offer, err := sipfocus.GenerateOffer(s.e.conf.MediaIP, s.e.conf.RTPPort, false)
	if err != nil {
		return err
	}
	if _, err = s.out.Update(offer, ""); err != nil {
		return err
	}
	s.setState(conference.CallPaused)
	return nil
}

func (s *callSession) Resume() error {
	offer, err := sipfocus.GenerateOffer(s.e.conf.MediaIP, s.e.conf.RTPPort, false)
	if err != nil {
		return err
	}
	if _, err = s.out.Update(offer, ""); err != nil {
		return err
	}
	s.setState(conference.CallMediaEstablished)
	return nil
}

func (s *callSession) Terminate() error {
	s.out.Close()
	s.e.forget(s)
	s.setState(conference.CallEnded)
	return nil
}

// Transfer sends the REFER moving this dialog to the target and reports the
// transfer progress back through the registry.
func (s *callSession) Transfer(target *sip.Uri) error {
	if err := s.out.SendRefer(target, sipfocus.ReferOpts{}); err != nil {
		return err
	}
	s.e.Post(func() {
		s.e.reg.OnTransferStateChanged(s, conference.CallConnected)
	})
	return nil
}

// SendRefer exposes the dialog as a membership-request sender for the
// conference core.
func (s *callSession) SendRefer(target *sip.Uri, opts sipfocus.ReferOpts) error {
	return s.out.SendRefer(target, opts)
}

func (s *callSession) AddPendingAction(fn func() error) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
}

// runPendingActions retries queued actions once the dialog frees up. Actions
// that still fail with a busy dialog are requeued.
func (s *callSession) runPendingActions() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range pending {
		if err := fn(); err == errors.ErrSessionBusy {
			s.AddPendingAction(fn)
		} else if err != nil {
			s.log.Warnw("pending action failed", err)
		}
	}
}

func (s *callSession) Conference() *conference.RemoteConference { return s.conf }

func (s *callSession) SetConference(c *conference.RemoteConference) { s.conf = c }
