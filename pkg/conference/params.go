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

// SecurityLevel is the media protection requested for the conference.
type SecurityLevel int

const (
	SecurityNone = SecurityLevel(iota)
	SecurityPointToPoint
	SecurityEndToEnd
)

func (l SecurityLevel) String() string {
	switch l {
	case SecurityPointToPoint:
		return "point-to-point"
	case SecurityEndToEnd:
		return "end-to-end"
	}
	return "none"
}

// Params are the conference parameters negotiated with the server.
type Params struct {
	Subject string

	AudioEnabled bool
	VideoEnabled bool
	ChatEnabled  bool

	Security SecurityLevel

	// LocalParticipantEnabled is false when this client only observes the
	// conference without joining its media.
	LocalParticipantEnabled bool
}
