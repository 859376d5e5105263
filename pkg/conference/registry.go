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
	"sync"

	"github.com/emiago/sipgo/sip"

	"github.com/livekit/protocol/logger"
)

// Registry is the boundary between the call engine and the conferences. It
// tracks every live conference and resolves which one an engine-level
// callback belongs to before dispatching into its single-threaded handlers.
// Unlike the conferences themselves it is safe for concurrent use; the lock
// covers only the lookup, never a handler.
type Registry struct {
	log logger.Logger

	mu    sync.Mutex
	confs map[*RemoteConference]struct{}
}

func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Registry{
		log:   log,
		confs: make(map[*RemoteConference]struct{}),
	}
}

func (g *Registry) Add(c *RemoteConference) {
	g.mu.Lock()
	g.confs[c] = struct{}{}
	g.mu.Unlock()
}

func (g *Registry) Remove(c *RemoteConference) {
	g.mu.Lock()
	delete(g.confs, c)
	g.mu.Unlock()
}

func (g *Registry) Conferences() []*RemoteConference {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*RemoteConference, 0, len(g.confs))
	for c := range g.confs {
		out = append(out, c)
	}
	return out
}

// ConferenceByAddress finds the conference whose server address matches.
// Matches the live conference identity, the focus contact, and the address
// the conference was originally dialed at: once creation finalizes, the
// identity is rebound to the focus contact, but callbacks may still carry
// the factory address.
func (g *Registry) ConferenceByAddress(addr *sip.Uri) *RemoteConference {
	g.mu.Lock()
	defer g.mu.Unlock()
	for c := range g.confs {
		if sameAddress(c.id.Remote, addr) || (c.confAddr != nil && sameAddress(c.confAddr, addr)) {
			return c
		}
		if f := c.Focus(); f != nil && sameAddress(f.Address(), addr) {
			return c
		}
	}
	return nil
}

// OnCallStateChanged is the engine's call-state callback. The conference is
// resolved through the call's back-reference; calls not attached to any
// conference are ignored here.
func (g *Registry) OnCallStateChanged(call Session, st CallState) {
	conf := call.Conference()
	if conf == nil {
		return
	}
	// Hold a local reference: the handler may terminate and unregister the
	// conference mid-dispatch.
	switch {
	case conf.FocusSession() == call:
		conf.OnFocusCallStateChanged(st)
	default:
		conf.OnPendingCallStateChanged(call, st)
	}
	g.reapTerminated(conf)
}

// OnTransferStateChanged is the engine's transfer-progress callback,
// reporting REFER outcomes for calls being merged.
func (g *Registry) OnTransferStateChanged(call Session, st CallState) {
	conf := call.Conference()
	if conf == nil {
		return
	}
	conf.OnTransferingCallStateChanged(call, st)
	g.reapTerminated(conf)
}

// reapTerminated unregisters a conference once it reached a terminal state.
func (g *Registry) reapTerminated(conf *RemoteConference) {
	switch conf.State() {
	case StateTerminated, StateDeleted:
		g.Remove(conf)
		g.log.Infow("conference unregistered", "state", conf.State())
	}
}
