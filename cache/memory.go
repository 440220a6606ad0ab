// SPDX-License-Identifier: ice License 1.0

package cache

import (
	"context"
	"slices"
	"sync"
	stdlibtime "time"

	"github.com/ice-blockchain/flagsync/model"
	"github.com/ice-blockchain/flagsync/time"
)

// NewMemory keeps the entry for the lifetime of the process. A ttl <= 0 never expires the config.
func NewMemory(ttl stdlibtime.Duration) Store {
	return &memory{now: time.Now, mx: new(sync.RWMutex), ttl: ttl}
}

func (m *memory) SaveUser(_ context.Context, user *model.User) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.user = user.Clone()

	return nil
}

func (m *memory) SaveConfig(_ context.Context, config []byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.config = slices.Clone(config)
	m.savedAt = m.now()

	return nil
}

func (m *memory) Load(context.Context) (*Entry, error) {
	m.mx.RLock()
	defer m.mx.RUnlock()
	entry := &Entry{User: m.user.Clone()}
	if m.savedAt.IsNil() || (m.ttl > 0 && m.now().Sub(*m.savedAt.Time) > m.ttl) {
		return entry, nil
	}
	entry.Config = slices.Clone(m.config)
	entry.SavedAt = m.savedAt

	return entry, nil
}

func (*memory) Close() error {
	return nil
}

// Disabled is used when config caching is turned off: nothing is persisted, nothing is restored.
func Disabled() Store {
	return disabled{}
}

func (disabled) SaveUser(context.Context, *model.User) error {
	return nil
}

func (disabled) SaveConfig(context.Context, []byte) error {
	return nil
}

func (disabled) Load(context.Context) (*Entry, error) {
	return new(Entry), nil
}

func (disabled) Close() error {
	return nil
}
