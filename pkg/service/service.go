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
	"net/http"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livekit/protocol/logger"

	"github.com/averku/sipconf/pkg/conference"
	"github.com/averku/sipconf/pkg/config"
	"github.com/averku/sipconf/pkg/errors"
	"github.com/averku/sipconf/pkg/sipfocus"
	"github.com/averku/sipconf/pkg/stats"
)

// Service wires the SIP client, the call engine, the conference registry and
// the metrics listener, and runs the cooperative event loop everything
// conference-related executes on.
type Service struct {
	conf *config.Config
	log  logger.Logger
	mon  *stats.Monitor

	cli    *sipfocus.Client
	engine *Engine
	reg    *conference.Registry
	store  conference.InfoStore
	subs   conference.SubscriberFactory

	promSrv *http.Server

	shutdown core.Fuse
}

func NewService(conf *config.Config, log logger.Logger, store conference.InfoStore) *Service {
	if log == nil {
		log = logger.GetLogger()
	}
	mon := stats.NewMonitor(conf.NodeID)
	cli := sipfocus.NewClient(conf, log)
	reg := conference.NewRegistry(log)
	s := &Service{
		conf:   conf,
		log:    log,
		mon:    mon,
		cli:    cli,
		reg:    reg,
		store:  store,
		engine: NewEngine(conf, log, mon, cli, reg),
	}
	return s
}

func (s *Service) Engine() *Engine { return s.engine }

// SetSubscriberFactory installs the conference event-package collaborator.
// Without one, conferences are created without membership notifications.
func (s *Service) SetSubscriberFactory(subs conference.SubscriberFactory) { s.subs = subs }

func (s *Service) Registry() *conference.Registry { return s.reg }

// CreateConference instantiates a conference bound to the focus address and
// registers it with the dispatch boundary. The local participant starts as
// admin unless a persisted snapshot names someone else as organizer.
func (s *Service) CreateConference(focusAddr *sip.Uri, params conference.Params) (*conference.RemoteConference, error) {
	if !s.mon.CanAccept() {
		return nil, errors.ErrNotAccepting
	}
	local := &sip.Uri{User: s.conf.SIPUser, Host: s.conf.SIPHost}
	conf := conference.NewRemoteConference(conference.Options{
		Core:        s.engine,
		Conf:        s.conf.Conference,
		Log:         s.log,
		Monitor:     s.mon.NewConference("remote"),
		Store:       s.store,
		Subscribers: s.subs,
	}, local, focusAddr, nil, params, nil)
	conf.Me().SetAdmin(s.localIsOrganizer(local, focusAddr))
	s.reg.Add(conf)
	return conf, nil
}

// localIsOrganizer derives the admin bootstrap from persistence: rejoining a
// recorded conference keeps admin only for its organizer. A conference with
// no record is one this client is creating, so it starts as admin.
func (s *Service) localIsOrganizer(local, focusAddr *sip.Uri) bool {
	if s.store == nil {
		return true
	}
	info, ok := s.store.ConferenceInfoByURI(focusAddr)
	if !ok || info.Organizer == nil {
		return true
	}
	return info.Organizer.User == local.User && info.Organizer.Host == local.Host
}

func (s *Service) Stop(kill bool) {
	s.shutdown.Break()
	if kill {
		s.cli.Stop()
	}
	if s.promSrv != nil {
		_ = s.promSrv.Close()
	}
	s.mon.Shutdown()
}

func (s *Service) Run() error {
	logger.Debugw("starting service")
	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent(s.conf.UserAgent),
	)
	if err != nil {
		return err
	}
	if err = s.cli.Start(ua); err != nil {
		return err
	}
	if err = s.mon.Start(); err != nil {
		return err
	}
	defer s.mon.Stop()

	if s.conf.PromPort > 0 {
		s.promSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", s.conf.PromPort),
			Handler: promhttp.Handler(),
		}
		go func() {
			if err := s.promSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Errorw("prometheus listener failed", err)
			}
		}()
	}

	logger.Debugw("service ready")

	for {
		select {
		case <-s.shutdown.Watch():
			logger.Infow("shutting down")
			for _, c := range s.reg.Conferences() {
				if err := c.Terminate(); err != nil {
					s.log.Warnw("could not terminate conference", err)
				}
			}
			return nil
		case fn := <-s.engine.Events():
			fn()
		}
	}
}
