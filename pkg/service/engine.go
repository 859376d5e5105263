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
	"fmt"
	"sync"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/livekit/protocol/logger"

	"github.com/averku/sipconf/pkg/conference"
	"github.com/averku/sipconf/pkg/config"
	"github.com/averku/sipconf/pkg/sipfocus"
	"github.com/averku/sipconf/pkg/stats"
)

// Engine is the call directory backing every conference. SIP work happens on
// the caller's goroutine; everything that mutates conference state is posted
// to the event loop, which the service drains one callback at a time. That
// serialization is what lets the conference core run without locks.
type Engine struct {
	conf *config.Config
	log  logger.Logger
	mon  *stats.Monitor
	cli  *sipfocus.Client
	reg  *conference.Registry

	events chan func()

	mu    sync.Mutex
	calls map[string]*callSession

	audioIn  string
	audioOut string
	muted    bool
}

var _ conference.Core = (*Engine)(nil)

func NewEngine(conf *config.Config, log logger.Logger, mon *stats.Monitor, cli *sipfocus.Client, reg *conference.Registry) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		conf:   conf,
		log:    log,
		mon:    mon,
		cli:    cli,
		reg:    reg,
		events: make(chan func(), 64),
		calls:  make(map[string]*callSession),
	}
}

// Post schedules a callback on the event loop.
func (e *Engine) Post(fn func()) {
	e.events <- fn
}

func (e *Engine) Events() <-chan func() { return e.events }

func (e *Engine) Calls() []conference.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]conference.Session, 0, len(e.calls))
	for _, s := range e.calls {
		out = append(out, s)
	}
	return out
}

func (e *Engine) CallByID(id string) conference.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.calls[id]; ok {
		return s
	}
	return nil
}

func (e *Engine) CallByRemoteAddress(addr *sip.Uri) conference.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.calls {
		if addr != nil && s.remote != nil &&
			s.remote.User == addr.User && s.remote.Host == addr.Host {
			return s
		}
	}
	return nil
}

func (e *Engine) forget(s *callSession) {
	e.mu.Lock()
	delete(e.calls, s.id)
	e.mu.Unlock()
}

// InviteFocus places the outbound INVITE that becomes a focus session. The
// dialog is established synchronously; the media-established transition is
// delivered to the conference asynchronously via the event loop, after the
// caller had a chance to bind the session.
func (e *Engine) InviteFocus(to *sip.Uri, admin bool) (conference.Session, error) {
	id := uuid.NewString()
	out := e.cli.NewOutbound(sipfocus.LocalTag(id), sipfocus.URI{
		User: e.conf.SIPUser,
		Host: e.conf.SIPHost,
	})
	offer, err := sipfocus.GenerateOffer(e.conf.MediaIP, e.conf.RTPPort, false)
	if err != nil {
		out.Close()
		return nil, err
	}
	destHost := to.Host
	if to.Port != 0 {
		destHost = fmt.Sprintf("%s:%d", to.Host, to.Port)
	}
	dest := sipfocus.URI{User: to.User, Host: destHost}
	if _, err = out.Invite(sipfocus.TransportUDP, dest, e.conf.AuthUser, e.conf.AuthPass, offer, admin); err != nil {
		out.Close()
		return nil, err
	}
	if err = out.AckInvite(); err != nil {
		out.Close()
		return nil, err
	}

	remote := *to
	s := &callSession{
		e:      e,
		log:    sipfocus.LoggerWithSignaling(e.log.WithValues("callID", id), out),
		id:     id,
		out:    out,
		remote: &remote,
		state:  conference.CallConnected,
	}
	e.mu.Lock()
	e.calls[id] = s
	e.mu.Unlock()
	s.log.Infow("focus dialog established", "to", to.String(), "admin", admin)
	s.setState(conference.CallMediaEstablished)
	return s, nil
}

// CreateConferenceOnServer asks the conference factory to allocate a new
// conference for a participant list, then acknowledges the owning
// conference by moving it to CreationPending.
func (e *Engine) CreateConferenceOnServer(params conference.Params, localAddr *sip.Uri, participants []*sip.Uri) error {
	var conf *conference.RemoteConference
	for _, c := range e.reg.Conferences() {
		local := c.ID().Local
		if local != nil && localAddr != nil &&
			local.User == localAddr.User && local.Host == localAddr.Host &&
			c.FocusSession() == nil {
			conf = c
			break
		}
	}
	if conf == nil {
		e.log.Warnw("no conference waiting for server-side creation", nil, "local", localAddr)
		return nil
	}
	s, err := e.InviteFocus(conf.ID().Remote, true)
	if err != nil {
		e.Post(func() { _ = conf.SetState(conference.StateCreationFailed) })
		return err
	}
	cs := s.(*callSession)
	for _, addr := range participants {
		target := sipfocus.WithParam(addr, sipfocus.ParamIsFocus, "")
		if err := cs.SendRefer(target, sipfocus.ReferOpts{}); err != nil {
			e.log.Warnw("could not invite initial participant", err, "participant", addr.String())
		}
	}
	e.Post(func() {
		conf.BindFocusSession(s)
		_ = conf.SetState(conference.StateCreationPending)
		// The dialog reached media-established before the conference was
		// bound; replay the transition so the creation cascade runs.
		e.reg.OnCallStateChanged(s, s.State())
	})
	return nil
}

// NewRefer builds a membership-request sender bound to the session's dialog.
func (e *Engine) NewRefer(s conference.Session) conference.ReferSender {
	if cs, ok := s.(*callSession); ok {
		return cs
	}
	return referFunc(func(target *sip.Uri, opts sipfocus.ReferOpts) error {
		return s.Transfer(target)
	})
}

type referFunc func(target *sip.Uri, opts sipfocus.ReferOpts) error

func (f referFunc) SendRefer(target *sip.Uri, opts sipfocus.ReferOpts) error {
	return f(target, opts)
}

func (e *Engine) AudioRoute() (in, out string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioIn, e.audioOut, e.audioIn != "" || e.audioOut != ""
}

func (e *Engine) ApplyAudioRoute(in, out string) {
	e.mu.Lock()
	e.audioIn, e.audioOut = in, out
	e.mu.Unlock()
	e.log.Infow("audio route applied", "input", in, "output", out)
}

func (e *Engine) LocalMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *Engine) SetLocalMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}
