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
	"math/rand"

	"github.com/pion/sdp/v3"
)

func sdpMediaDesc(rtpListenerPort int, video bool) []*sdp.MediaDescription {
	list := []*sdp.MediaDescription{
		{
			MediaName: sdp.MediaName{
				Media:   "audio",
				Port:    sdp.RangedPort{Value: rtpListenerPort},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{"0", "101"},
			},
			Attributes: []sdp.Attribute{
				{Key: "rtpmap", Value: "0 PCMU/8000"},
				{Key: "rtpmap", Value: "101 telephone-event/8000"},
				{Key: "fmtp", Value: "101 0-16"},
				{Key: "ptime", Value: "20"},
				{Key: "sendrecv"},
			},
		},
	}
	if video {
		list = append(list, &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   "video",
				Port:    sdp.RangedPort{Value: rtpListenerPort + 2},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{"96"},
			},
			Attributes: []sdp.Attribute{
				{Key: "rtpmap", Value: "96 VP8/90000"},
				{Key: "sendrecv"},
			},
		})
	}
	return list
}

// GenerateOffer builds the SDP body carried by the focus INVITE and by every
// re-INVITE of the conference media session.
func GenerateOffer(publicIp string, rtpListenerPort int, video bool) ([]byte, error) {
	sessId := rand.Uint64()

	offer := sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessId,
			SessionVersion: sessId,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: publicIp,
		},
		SessionName: "sipconf",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: publicIp},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{
				Timing: sdp.Timing{
					StartTime: 0,
					StopTime:  0,
				},
			},
		},
		MediaDescriptions: sdpMediaDesc(rtpListenerPort, video),
	}

	return offer.Marshal()
}

// OfferHasVideo reports whether an SDP body advertises a video stream.
func OfferHasVideo(data []byte) bool {
	desc := sdp.SessionDescription{}
	if err := desc.Unmarshal(data); err != nil {
		return false
	}
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media == "video" && m.MediaName.Port.Value != 0 {
			return true
		}
	}
	return false
}
