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

// Package conference implements the client side of a server-hosted
// multi-party conference: the lifecycle state machine binding a focus call
// to a local membership model, REFER-based admission, and the reactor that
// folds event-package notifications back into one consistent state.
//
// Everything here runs on the call engine's event loop: handlers are invoked
// synchronously from SIP callbacks and never block, so no locking is done or
// needed as long as that contract holds.
package conference

import (
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/looplab/fsm"

	"github.com/livekit/protocol/logger"

	"github.com/averku/sipconf/pkg/stats"
)

// Conference is the state shared by every conference flavor: identity,
// parameters, the participant list and the lifecycle machine.
type Conference struct {
	log logger.Logger
	mon *stats.ConfMonitor

	id       ID
	confAddr *sip.Uri
	params   Params

	me           *Participant
	participants []*Participant

	machine *fsm.FSM
	// onState is the internal lifecycle hook, dispatched explicitly after
	// every transition. The remote conference installs itself here.
	onState func(st State)
	cb      Callbacks

	store     InfoStore
	createdAt time.Time
	confDur   func() time.Duration
}

func newConference(log logger.Logger, mon *stats.ConfMonitor, store InfoStore, id ID, me *sip.Uri, params Params) Conference {
	if log == nil {
		log = logger.GetLogger()
	}
	return Conference{
		log:       log,
		mon:       mon,
		id:        id,
		params:    params,
		me:        NewParticipant(me),
		machine:   newLifecycleFSM(),
		store:     store,
		createdAt: time.Now(),
		confDur:   mon.ConfDur(),
	}
}

func (c *Conference) Log() logger.Logger { return c.log }

func (c *Conference) ID() ID { return c.id }

// Address is the conference address adopted from the focus contact.
func (c *Conference) Address() *sip.Uri { return c.confAddr }

func (c *Conference) Params() Params { return c.params }

func (c *Conference) Me() *Participant { return c.me }

func (c *Conference) State() State {
	return stateFromString(c.machine.Current())
}

func (c *Conference) SetCallbacks(cb Callbacks) { c.cb = cb }

// SetState drives the lifecycle machine and dispatches the internal state
// hook, then the application callback. Illegal transitions are rejected and
// logged, never applied partially.
func (c *Conference) SetState(st State) error {
	cur := c.State()
	if cur == st {
		return nil
	}
	if err := fsmEvent(c.machine, st); err != nil {
		c.log.Warnw("rejected conference state transition", err, "from", cur, "to", st)
		return err
	}
	c.log.Infow("conference state changed", "from", cur, "to", st)
	if c.onState != nil {
		c.onState(st)
	}
	if c.cb.OnStateChanged != nil {
		c.cb.OnStateChanged(st)
	}
	return nil
}

func (c *Conference) Participants() []*Participant { return c.participants }

func (c *Conference) ParticipantCount() int { return len(c.participants) }

func (c *Conference) FindParticipant(addr *sip.Uri) *Participant {
	for _, p := range c.participants {
		if sameAddress(p.addr, addr) {
			return p
		}
	}
	return nil
}

// addParticipant creates the participant for an address unless it is already
// known or collides with the local identity.
func (c *Conference) addParticipant(addr *sip.Uri) *Participant {
	if addr == nil || sameAddress(addr, c.me.addr) {
		return nil
	}
	if p := c.FindParticipant(addr); p != nil {
		return p
	}
	p := NewParticipant(addr)
	c.participants = append(c.participants, p)
	c.mon.ParticipantAdded()
	if c.cb.OnParticipantAdded != nil {
		c.cb.OnParticipantAdded(p)
	}
	return p
}

func (c *Conference) removeParticipant(addr *sip.Uri) *Participant {
	for i, p := range c.participants {
		if sameAddress(p.addr, addr) {
			c.participants = append(c.participants[:i], c.participants[i+1:]...)
			c.mon.ParticipantRemoved()
			if c.cb.OnParticipantRemoved != nil {
				c.cb.OnParticipantRemoved(p)
			}
			return p
		}
	}
	return nil
}

func (c *Conference) clearParticipants() {
	c.participants = nil
}

// updateParams applies a parameter update confirmed for the conference.
func (c *Conference) updateParams(p Params) {
	subjectChanged := p.Subject != c.params.Subject
	c.params = p
	if subjectChanged && c.cb.OnSubjectChanged != nil {
		c.cb.OnSubjectChanged(p.Subject)
	}
}

// finishTermination is the shared termination bookkeeping: participants are
// dropped and the duration is observed. Safe to run more than once.
func (c *Conference) finishTermination(reason string) {
	c.clearParticipants()
	c.mon.ConfEnd(reason)
	if c.confDur != nil {
		c.confDur()
		c.confDur = nil
	}
}

// snapshot captures the current membership for persistence.
func (c *Conference) snapshot() *ConferenceInfo {
	info := &ConferenceInfo{
		URI:       c.confAddr,
		Subject:   c.params.Subject,
		Organizer: c.me.addr,
		UpdatedAt: time.Now(),
	}
	if c.confAddr == nil {
		info.URI = c.id.Remote
	}
	for _, p := range c.participants {
		info.Members = append(info.Members, MemberInfo{Address: p.addr, Admin: p.admin})
	}
	return info
}

// persistSnapshot stores the membership snapshot when a store is available.
func (c *Conference) persistSnapshot() {
	if c.store == nil {
		return
	}
	if _, err := c.store.InsertConferenceInfo(c.snapshot()); err != nil {
		c.log.Warnw("could not persist conference info", err)
	}
}
