package hass

import (
	"context"
	"sync"
)

// Entity is the contract every platform entity implements. Implementations
// embed EntityBase.
type Entity interface {
	UniqueID() string
	// Name is the entity name. With HasEntityName set, an empty name means
	// the entity is the main feature of its device and takes the device name.
	Name() string
	HasEntityName() bool
	ShouldPoll() bool
	Available() bool
	DeviceInfo() *DeviceInfo

	AddedToHass(ctx context.Context) error
	WillRemoveFromHass(ctx context.Context) error
	Update(ctx context.Context) error

	base() *EntityBase
}

// StateWriter records entity state with the host.
type StateWriter interface {
	WriteState(ctx context.Context, entity Entity) error
}

// EntityBase carries the host-side plumbing of an entity.
type EntityBase struct {
	mu     sync.RWMutex
	self   Entity
	writer StateWriter
	ctx    context.Context
	errs   func(Entity, error)
}

func (b *EntityBase) base() *EntityBase { return b }

func (b *EntityBase) bind(ctx context.Context, self Entity, writer StateWriter, errs func(Entity, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.self = self
	b.writer = writer
	b.ctx = ctx
	b.errs = errs
}

func (b *EntityBase) unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.self = nil
	b.writer = nil
	b.ctx = nil
	b.errs = nil
}

// Added reports whether the entity is currently attached to a host.
func (b *EntityBase) Added() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writer != nil
}

// ScheduleUpdateState writes the entity state. With forceRefresh the entity's
// Update runs first. It is a no-op for entities not attached to a host.
func (b *EntityBase) ScheduleUpdateState(forceRefresh bool) {
	b.mu.RLock()
	self, writer, ctx, errs := b.self, b.writer, b.ctx, b.errs
	b.mu.RUnlock()
	if writer == nil {
		return
	}
	if forceRefresh {
		if err := self.Update(ctx); err != nil {
			if errs != nil {
				errs(self, err)
			}
			return
		}
	}
	if err := writer.WriteState(ctx, self); err != nil && errs != nil {
		errs(self, err)
	}
}

// AddedToHass and WillRemoveFromHass default to no-ops.
func (b *EntityBase) AddedToHass(context.Context) error { return nil }

func (b *EntityBase) WillRemoveFromHass(context.Context) error { return nil }

func (b *EntityBase) Update(context.Context) error { return nil }

func (b *EntityBase) ShouldPoll() bool { return true }

func (b *EntityBase) HasEntityName() bool { return false }

func (b *EntityBase) Available() bool { return true }

func (b *EntityBase) DeviceInfo() *DeviceInfo { return nil }
