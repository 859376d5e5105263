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
	"net/netip"
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"
)

func TestURINormalize(t *testing.T) {
	u := URI{
		Host: "example.com:5080",
		Addr: netip.AddrPortFrom(netip.MustParseAddr("10.0.0.1"), 0),
	}.Normalize()
	require.Equal(t, "example.com", u.Host)
	require.Equal(t, 5080, u.GetPort())
	require.Equal(t, "10.0.0.1:5080", u.GetDest())

	u = URI{Host: "example.com"}.Normalize()
	require.Equal(t, "example.com", u.Host)
	require.Equal(t, 5060, u.GetPort())
}

func TestURIGetURI(t *testing.T) {
	u := URI{
		User:      "alice",
		Host:      "example.com",
		Transport: TransportUDP,
	}
	su := u.GetURI()
	require.Equal(t, "alice", su.User)
	require.Equal(t, "example.com", su.Host)
	require.Equal(t, "udp", su.UriParams["transport"])
}

func TestContactIsFocus(t *testing.T) {
	require.False(t, ContactIsFocus(nil))
	require.False(t, ContactIsFocus(&sip.Uri{User: "conf42", Host: "example.com"}))

	withURIParam := &sip.Uri{
		User:      "conf42",
		Host:      "example.com",
		UriParams: sip.HeaderParams{ParamIsFocus: ""},
	}
	require.True(t, ContactIsFocus(withURIParam))

	withHeader := &sip.Uri{
		User:    "conf42",
		Host:    "example.com",
		Headers: sip.HeaderParams{ParamIsFocus: ""},
	}
	require.True(t, ContactIsFocus(withHeader))
}

func TestWithParamCopies(t *testing.T) {
	orig := &sip.Uri{User: "bob", Host: "example.com"}
	marked := WithParam(orig, ParamAdmin, "1")
	require.Equal(t, "1", marked.UriParams[ParamAdmin])
	require.Nil(t, orig.UriParams)

	// Chaining keeps earlier parameters.
	both := WithParam(marked, ParamIsFocus, "")
	require.Equal(t, "1", both.UriParams[ParamAdmin])
	_, ok := both.UriParams[ParamIsFocus]
	require.True(t, ok)
	_, ok = marked.UriParams[ParamIsFocus]
	require.False(t, ok)
}

func TestStripParamCopies(t *testing.T) {
	orig := WithParam(&sip.Uri{User: "conf42", Host: "example.com"}, ParamIsFocus, "")
	stripped := StripParam(orig, ParamIsFocus)
	_, ok := stripped.UriParams[ParamIsFocus]
	require.False(t, ok)
	_, ok = orig.UriParams[ParamIsFocus]
	require.True(t, ok)

	// Stripping a missing parameter is a plain copy.
	plain := StripParam(&sip.Uri{User: "bob", Host: "example.com"}, ParamAdmin)
	require.Equal(t, "bob", plain.User)
}
