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
	"context"
	"log/slog"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/frostbyte73/core"

	"github.com/livekit/protocol/logger"

	"github.com/averku/sipconf/pkg/config"
)

// Client owns the sipgo user agent used for every focus dialog of this
// process.
type Client struct {
	conf *config.Config
	log  logger.Logger

	sipCli *sipgo.Client

	// ctx bounds every client transaction; cancelled on Stop so in-flight
	// requests unblock during shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	closing core.Fuse
	cmu     sync.Mutex
	active  map[LocalTag]*Outbound
}

func NewClient(conf *config.Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conf:   conf,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[LocalTag]*Outbound),
	}
}

func (c *Client) Start(agent *sipgo.UserAgent) error {
	if agent == nil {
		ua, err := sipgo.NewUA(
			sipgo.WithUserAgent(c.conf.UserAgent),
		)
		if err != nil {
			return err
		}
		agent = ua
	}

	var err error
	c.sipCli, err = sipgo.NewClient(agent,
		sipgo.WithClientHostname(c.conf.SIPHost),
		sipgo.WithClientLogger(slog.New(logger.ToSlogHandler(c.log))),
	)
	if err != nil {
		return err
	}
	c.log.Infow("focus client started", "host", c.conf.SIPHost, "port", c.conf.SIPPort)
	return nil
}

func (c *Client) Stop() {
	c.closing.Break()
	c.cmu.Lock()
	active := c.active
	c.active = make(map[LocalTag]*Outbound)
	c.cmu.Unlock()
	for _, out := range active {
		out.Close()
	}
	c.cancel()
	if c.sipCli != nil {
		_ = c.sipCli.Close()
		c.sipCli = nil
	}
}
