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

package sipfocus

import (
	"errors"
	"net"
	"net/netip"
	"strconv"

	"github.com/emiago/sipgo/sip"

	"github.com/livekit/protocol/logger"
)

const (
	// ParamIsFocus marks a contact address as conference-aware (RFC 4579).
	ParamIsFocus = "isfocus"
	// ParamAdmin asserts the administrator role on a referred address.
	ParamAdmin = "admin"
)

type Headers []sip.Header

func (h Headers) GetHeader(name string) sip.Header {
	name = sip.HeaderToLower(name)
	for _, kv := range h {
		if sip.HeaderToLower(kv.Name()) == name {
			return kv
		}
	}
	return nil
}

type Transport string

const (
	TransportUDP = Transport("udp")
	TransportTCP = Transport("tcp")
	TransportTLS = Transport("tls")
)

type URI struct {
	User      string
	Host      string
	Addr      netip.AddrPort
	Transport Transport
}

func (u URI) Normalize() URI {
	if addr, sport, err := net.SplitHostPort(u.Host); err == nil {
		if port, err := strconv.Atoi(sport); err == nil {
			u.Host = addr
			if u.Addr.Addr().IsValid() {
				u.Addr = netip.AddrPortFrom(u.Addr.Addr(), uint16(port))
			}
		}
	}
	return u
}

func (u URI) GetHost() string {
	host := u.Host
	if host == "" {
		host = u.Addr.Addr().String()
	}
	return host
}

func (u URI) GetPort() int {
	port := int(u.Addr.Port())
	if port == 0 {
		port = 5060
	}
	return port
}

func (u URI) GetDest() string {
	host := u.Host
	if u.Addr.Addr().IsValid() {
		host = u.Addr.Addr().String()
	}
	host += ":" + strconv.Itoa(u.GetPort())
	return host
}

func (u URI) GetURI() *sip.Uri {
	su := &sip.Uri{
		User: u.User,
		Host: u.GetHost(),
	}
	if port := u.Addr.Port(); port != 0 {
		su.Port = int(port)
	}
	if u.Transport != "" {
		if su.UriParams == nil {
			su.UriParams = make(sip.HeaderParams)
		}
		su.UriParams.Add("transport", string(u.Transport))
	}
	return su
}

type LocalTag string
type RemoteTag string

func getToTag(r *sip.Response) (RemoteTag, error) {
	to := r.To()
	if to == nil {
		return "", errors.New("no To on Response")
	}
	tag, ok := getTagFrom(to.Params)
	if !ok {
		return "", errors.New("no tag in To on Response")
	}
	return tag, nil
}

func getTagFrom(params sip.HeaderParams) (RemoteTag, bool) {
	tag, ok := params["tag"]
	if !ok {
		return "", false
	}
	return RemoteTag(tag), true
}

// ContactIsFocus reports whether a contact address carries the "isfocus"
// marker on its URI or header parameters.
func ContactIsFocus(u *sip.Uri) bool {
	if u == nil {
		return false
	}
	if u.UriParams != nil {
		if _, ok := u.UriParams[ParamIsFocus]; ok {
			return true
		}
	}
	if u.Headers != nil {
		if _, ok := u.Headers[ParamIsFocus]; ok {
			return true
		}
	}
	return false
}

// WithParam returns a copy of the address with one URI parameter set.
func WithParam(u *sip.Uri, key, value string) *sip.Uri {
	cp := *u
	params := make(sip.HeaderParams, len(u.UriParams)+1)
	for k, v := range u.UriParams {
		params[k] = v
	}
	params[key] = value
	cp.UriParams = params
	return &cp
}

// StripParam returns a copy of the address without the given URI parameter.
func StripParam(u *sip.Uri, key string) *sip.Uri {
	cp := *u
	if u.UriParams == nil {
		return &cp
	}
	params := make(sip.HeaderParams, len(u.UriParams))
	for k, v := range u.UriParams {
		if k == key {
			continue
		}
		params[k] = v
	}
	cp.UriParams = params
	return &cp
}

func LoggerWithSignaling(log logger.Logger, c Signaling) logger.Logger {
	if a := c.From(); a.Host != "" {
		log = log.WithValues("fromHost", a.Host, "fromUser", a.User)
	}
	if a := c.To(); a.Host != "" {
		log = log.WithValues("toHost", a.Host, "toUser", a.User)
	}
	if tag := c.Tag(); tag != "" {
		log = log.WithValues("sipTag", tag)
	}
	return log
}
