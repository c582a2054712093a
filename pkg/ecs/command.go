package ecs

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Target names the entity a buffered command applies to. It is either an entity that already
// exists in the store or one created earlier in the same buffer.
type Target struct {
	id    EntityID
	local bool
	owner uuid.UUID // Buffer that created a local target
}

// Existing targets a live entity of the store the buffer will be played back on.
func Existing(id EntityID) Target {
	return Target{id: id}
}

// Local reports whether the target was created by the buffer.
func (t Target) Local() bool {
	return t.local
}

type commandOp uint8

const (
	opCreate commandOp = iota
	opDelete
	opAddComponent
	opSetComponent
	opRemoveComponent
	opAddTag
	opRemoveTag
)

func (op commandOp) String() string {
	switch op {
	case opCreate:
		return "create"
	case opDelete:
		return "delete"
	case opAddComponent:
		return "add_component"
	case opSetComponent:
		return "set_component"
	case opRemoveComponent:
		return "remove_component"
	case opAddTag:
		return "add_tag"
	case opRemoveTag:
		return "remove_tag"
	default:
		return "unknown"
	}
}

type command struct {
	op     commandOp
	target Target
	sig    *Signature                   // opCreate only
	apply  func(*Store, EntityID) error // Component and tag ops
}

// CommandBuffer records structural and value changes to be applied later, in order, on the goroutine
// that owns the store. Recording is safe from any goroutine; Playback follows the store's single
// writer rule. A buffer is played back at most once.
type CommandBuffer struct {
	mu       sync.Mutex
	id       uuid.UUID
	commands []command
	locals   int // Number of buffer-local entities created so far
	played   bool

	// Filled by Playback.
	resolved []EntityID // Local id -> store id
	deleted  []bool     // Local id -> deleted before the end of playback
	created  int        // Local ids below this were created; locals are created in id order
}

// NewCommandBuffer creates an empty buffer.
func NewCommandBuffer() *CommandBuffer {
	return &CommandBuffer{id: uuid.New()}
}

// ID identifies the buffer in logs.
func (cb *CommandBuffer) ID() uuid.UUID {
	return cb.id
}

// Len returns the number of recorded commands.
func (cb *CommandBuffer) Len() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return len(cb.commands)
}

// CreateEntity records the creation of an entity with no components.
func (cb *CommandBuffer) CreateEntity() (Target, error) {
	return cb.CreateEntityWith(nil)
}

// CreateEntityWith records the creation of an entity with sig. The returned target can be used by
// later commands of the same buffer.
func (cb *CommandBuffer) CreateEntityWith(sig *Signature) (Target, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.played {
		return Target{}, eris.Wrap(ErrInvalidState, "cannot create entity after playback")
	}
	t := Target{id: EntityID(cb.locals), local: true, owner: cb.id} //nolint:gosec // bounded by playback
	cb.locals++
	cb.commands = append(cb.commands, command{op: opCreate, target: t, sig: sig})
	return t, nil
}

// DeleteEntity records the deletion of t. Later commands on t are skipped during playback.
func (cb *CommandBuffer) DeleteEntity(t Target) error {
	return cb.record(command{op: opDelete, target: t})
}

func (cb *CommandBuffer) record(c command) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.played {
		return eris.Wrapf(ErrInvalidState, "cannot record %s after playback", c.op)
	}
	if c.target.local && c.target.owner != cb.id {
		return eris.Errorf("entity target belongs to command buffer %s", c.target.owner)
	}
	if c.target.local && int(c.target.id) >= cb.locals {
		return eris.Errorf("unknown buffer-local entity %d", c.target.id)
	}
	cb.commands = append(cb.commands, c)
	return nil
}

// BufferAddComponent records AddComponent.
func BufferAddComponent[T Component](cb *CommandBuffer, t Target, value T) error {
	return cb.record(command{op: opAddComponent, target: t, apply: func(s *Store, id EntityID) error {
		return AddComponent(s, id, value)
	}})
}

// BufferSetComponent records SetComponent.
func BufferSetComponent[T Component](cb *CommandBuffer, t Target, value T) error {
	return cb.record(command{op: opSetComponent, target: t, apply: func(s *Store, id EntityID) error {
		return SetComponent(s, id, value)
	}})
}

// BufferRemoveComponent records RemoveComponent.
func BufferRemoveComponent[T Component](cb *CommandBuffer, t Target) error {
	return cb.record(command{op: opRemoveComponent, target: t, apply: func(s *Store, id EntityID) error {
		return RemoveComponent[T](s, id)
	}})
}

// BufferAddTag records AddTag.
func BufferAddTag[T Tag](cb *CommandBuffer, t Target) error {
	return cb.record(command{op: opAddTag, target: t, apply: func(s *Store, id EntityID) error {
		return AddTag[T](s, id)
	}})
}

// BufferRemoveTag records RemoveTag.
func BufferRemoveTag[T Tag](cb *CommandBuffer, t Target) error {
	return cb.record(command{op: opRemoveTag, target: t, apply: func(s *Store, id EntityID) error {
		return RemoveTag[T](s, id)
	}})
}

// Playback applies the recorded commands to s in recording order. Commands that target an entity
// deleted earlier in the same buffer are skipped. Playback stops at the first failing command and
// returns its error; commands applied before it stay applied. The buffer cannot be used again
// afterwards, whatever the outcome.
func (cb *CommandBuffer) Playback(s *Store) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.played {
		return eris.Wrap(ErrInvalidState, "command buffer already played back")
	}
	cb.played = true

	logger := s.logger.With().Str("trace_id", cb.id.String()).Logger()
	cb.resolved = make([]EntityID, cb.locals)
	cb.deleted = make([]bool, cb.locals)
	deletedExisting := make(map[EntityID]struct{})

	skipped := 0
	for i, c := range cb.commands {
		if c.op == opCreate {
			id, err := s.CreateEntity(c.sig)
			if err != nil {
				return eris.Wrapf(err, "command %d (%s)", i, c.op)
			}
			cb.resolved[c.target.id] = id
			cb.created++
			continue
		}

		var id EntityID
		if c.target.local {
			if cb.deleted[c.target.id] {
				skipped++
				continue
			}
			id = cb.resolved[c.target.id]
		} else {
			if _, gone := deletedExisting[c.target.id]; gone {
				skipped++
				continue
			}
			id = c.target.id
		}

		if c.op == opDelete {
			s.DeleteEntity(id)
			if c.target.local {
				cb.deleted[c.target.id] = true
			} else {
				deletedExisting[id] = struct{}{}
			}
			continue
		}
		if err := c.apply(s, id); err != nil {
			logger.Debug().Err(err).Int("command", i).Stringer("op", c.op).Msg("playback failed")
			return eris.Wrapf(err, "command %d (%s) on entity %d", i, c.op, id)
		}
	}

	logger.Debug().
		Int("commands", len(cb.commands)).
		Int("created", cb.locals).
		Int("skipped", skipped).
		Msg("command buffer played back")
	return nil
}

// Resolve returns the store id a buffer-local target was given during playback. Existing targets
// resolve to themselves. It reports false before playback, for local targets of another buffer, and
// for local entities that were deleted by the buffer or never created because playback stopped early.
func (cb *CommandBuffer) Resolve(t Target) (EntityID, bool) {
	if !t.local {
		return t.id, true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.played || t.owner != cb.id || int(t.id) >= len(cb.resolved) || cb.deleted[t.id] {
		return 0, false
	}
	if int(t.id) >= cb.created {
		return 0, false
	}
	return cb.resolved[t.id], true
}
