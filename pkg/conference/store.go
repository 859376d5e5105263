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
	"time"

	"github.com/emiago/sipgo/sip"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ConferenceInfo is the membership snapshot persisted after state-changing
// events, and the record used to decide the organizer/admin bootstrap.
type ConferenceInfo struct {
	ID        int64
	URI       *sip.Uri
	Subject   string
	Organizer *sip.Uri
	Members   []MemberInfo
	UpdatedAt time.Time
}

type MemberInfo struct {
	Address *sip.Uri
	Admin   bool
}

// InfoStore persists conference snapshots. It is optional: a nil store turns
// every persistence point into a no-op.
type InfoStore interface {
	ConferenceInfoByURI(uri *sip.Uri) (*ConferenceInfo, bool)
	InsertConferenceInfo(info *ConferenceInfo) (int64, error)
}

// CachedStore is a read-through LRU in front of a backing InfoStore, so that
// the organizer lookup done on every conference bootstrap does not hit the
// backing database each time. With a nil backing it degrades to a bounded
// in-memory store.
type CachedStore struct {
	backing InfoStore
	cache   *lru.Cache[string, *ConferenceInfo]
	nextID  int64
}

func NewCachedStore(backing InfoStore, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, *ConferenceInfo](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{backing: backing, cache: cache}, nil
}

func (s *CachedStore) ConferenceInfoByURI(uri *sip.Uri) (*ConferenceInfo, bool) {
	key := addressKey(uri)
	if info, ok := s.cache.Get(key); ok {
		return info, true
	}
	if s.backing == nil {
		return nil, false
	}
	info, ok := s.backing.ConferenceInfoByURI(uri)
	if ok {
		s.cache.Add(key, info)
	}
	return info, ok
}

func (s *CachedStore) InsertConferenceInfo(info *ConferenceInfo) (int64, error) {
	if s.backing == nil {
		s.nextID++
		info.ID = s.nextID
		s.cache.Add(addressKey(info.URI), info)
		return info.ID, nil
	}
	id, err := s.backing.InsertConferenceInfo(info)
	if err != nil {
		return 0, err
	}
	info.ID = id
	s.cache.Add(addressKey(info.URI), info)
	return id, nil
}
