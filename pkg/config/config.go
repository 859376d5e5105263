// Copyright 2026 Sipconf Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"

	"github.com/averku/sipconf/pkg/errors"
)

// Conference carries the orchestration options injected into every
// conference at construction. They correspond to process-wide feature
// flags of the embedding application.
type Conference struct {
	// EnableEventPackage starts a conference event-package subscription when
	// the creation handshake runs. When false, conferences are created
	// without membership notifications.
	EnableEventPackage bool `yaml:"enable_conference_event_package"`
	// WaitForICEBeforeReinvite delays the media-fetching re-INVITE until the
	// focus session finished its ICE negotiation.
	WaitForICEBeforeReinvite bool `yaml:"wait_for_ice_before_reinvite"`
}

type Config struct {
	SIPUser   string `yaml:"sip_user"`   // local SIP identity user part (env SIPCONF_USER)
	SIPHost   string `yaml:"sip_host"`   // local SIP identity host (env SIPCONF_HOST)
	SIPPort   int    `yaml:"sip_port"`   // local signaling port
	AuthUser  string `yaml:"auth_user"`  // credentials for focus digest challenges
	AuthPass  string `yaml:"auth_pass"`  // (env SIPCONF_AUTH_PASS)
	MediaIP   string `yaml:"media_ip"`   // advertised media address for SDP offers
	RTPPort   int    `yaml:"rtp_port"`   // advertised media port for SDP offers
	PromPort  int    `yaml:"prom_port"`  // Prometheus listener; 0 disables
	UserAgent string `yaml:"user_agent"` // User-Agent header value

	Conference Conference `yaml:"conference"`

	Logging logger.Config `yaml:"logging"`

	// internal
	ServiceName string `yaml:"-"`
	NodeID      string // Do not provide, will be overwritten
}

func NewConfig(confString string) (*Config, error) {
	conf := &Config{
		SIPUser:     os.Getenv("SIPCONF_USER"),
		SIPHost:     os.Getenv("SIPCONF_HOST"),
		AuthPass:    os.Getenv("SIPCONF_AUTH_PASS"),
		ServiceName: "sipconf",
		UserAgent:   "sipconf",
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}
	if conf.SIPPort == 0 {
		conf.SIPPort = 5060
	}
	if conf.RTPPort == 0 {
		conf.RTPPort = 10000
	}
	return conf, nil
}

func (conf *Config) Init() error {
	conf.NodeID = "CO_" + uuid.NewString()

	if err := conf.InitLogger(); err != nil {
		return err
	}

	return nil
}

func (c *Config) InitLogger(values ...interface{}) error {
	zl, err := logger.NewZapLogger(&c.Logging)
	if err != nil {
		return err
	}

	values = append(c.GetLoggerValues(), values...)
	l := zl.WithValues(values...)
	logger.SetLogger(l, c.ServiceName)

	return nil
}

// To use with zap logger
func (c *Config) GetLoggerValues() []interface{} {
	return []interface{}{"nodeID", c.NodeID}
}

// To use with logrus
func (c *Config) GetLoggerFields() logrus.Fields {
	fields := logrus.Fields{
		"logger": c.ServiceName,
	}
	v := c.GetLoggerValues()
	for i := 0; i < len(v); i += 2 {
		fields[v[i].(string)] = v[i+1]
	}

	return fields
}
