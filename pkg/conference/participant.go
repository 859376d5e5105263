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

// MediaKind is a stream type within the conference.
type MediaKind int

const (
	MediaAudio = MediaKind(iota)
	MediaVideo
	MediaText
)

func (k MediaKind) String() string {
	switch k {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	case MediaText:
		return "text"
	}
	return "unknown"
}

// DeviceState tracks a participant device through the conference.
type DeviceState int

const (
	DeviceAlerting = DeviceState(iota)
	DevicePresent
	DeviceLeft
)

func (s DeviceState) String() string {
	switch s {
	case DeviceAlerting:
		return "alerting"
	case DevicePresent:
		return "present"
	case DeviceLeft:
		return "left"
	}
	return "unknown"
}

// Device is one endpoint of a participant. For a remote conference no local
// call is bound to non-focus devices; membership is known only through the
// event package metadata.
type Device struct {
	addr      *sip.Uri
	state     DeviceState
	available map[MediaKind]bool
	ssrc      map[MediaKind]uint32
}

func newDevice(addr *sip.Uri) *Device {
	return &Device{
		addr:      addr,
		state:     DeviceAlerting,
		available: make(map[MediaKind]bool),
		ssrc:      make(map[MediaKind]uint32),
	}
}

func (d *Device) Address() *sip.Uri { return d.addr }

func (d *Device) State() DeviceState { return d.state }

func (d *Device) SetState(s DeviceState) { d.state = s }

func (d *Device) MediaAvailable(k MediaKind) bool { return d.available[k] }

func (d *Device) SetMediaAvailable(k MediaKind, ok bool) { d.available[k] = ok }

func (d *Device) Ssrc(k MediaKind) uint32 { return d.ssrc[k] }

func (d *Device) SetSsrc(k MediaKind, v uint32) { d.ssrc[k] = v }

// Participant is one member of the conference: an identity address, an admin
// flag and the ordered set of devices it joined with.
type Participant struct {
	addr    *sip.Uri
	admin   bool
	devices []*Device
	session Session // bound call; only ever set on the focus participant
}

func NewParticipant(addr *sip.Uri) *Participant {
	return &Participant{addr: addr}
}

func (p *Participant) Address() *sip.Uri { return p.addr }

func (p *Participant) Admin() bool { return p.admin }

func (p *Participant) SetAdmin(admin bool) { p.admin = admin }

func (p *Participant) Session() Session { return p.session }

func (p *Participant) setSession(s Session) { p.session = s }

func (p *Participant) Devices() []*Device { return p.devices }

func (p *Participant) Device(addr *sip.Uri) *Device {
	for _, d := range p.devices {
		if sameAddress(d.addr, addr) {
			return d
		}
	}
	return nil
}

func (p *Participant) addDevice(addr *sip.Uri) *Device {
	if d := p.Device(addr); d != nil {
		return d
	}
	d := newDevice(addr)
	p.devices = append(p.devices, d)
	return d
}

func (p *Participant) removeDevice(addr *sip.Uri) bool {
	for i, d := range p.devices {
		if sameAddress(d.addr, addr) {
			p.devices = append(p.devices[:i], p.devices[i+1:]...)
			return true
		}
	}
	return false
}

// sameAddress compares SIP identities by user and host, ignoring transport
// and display parameters.
func sameAddress(a, b *sip.Uri) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.User == b.User && a.Host == b.Host
}

func addressKey(a *sip.Uri) string {
	if a == nil {
		return ""
	}
	return a.User + "@" + a.Host
}
