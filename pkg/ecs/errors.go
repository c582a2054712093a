package ecs

import "github.com/rotisserie/eris"

var (
	// ErrEntityNotFound is returned when operating on an id that is not alive.
	ErrEntityNotFound = eris.New("entity does not exist")

	// ErrComponentNotOnEntity is returned when reading or writing a component the entity lacks.
	ErrComponentNotOnEntity = eris.New("entity does not have the component")

	// ErrTypeNotRegistered is returned when a type was never registered with the store's registry.
	ErrTypeNotRegistered = eris.New("type is not registered")

	// ErrRegistration is the parent of every registration failure.
	ErrRegistration = eris.New("registration error")

	// ErrKindConflict is returned when a type is registered under two different kinds.
	ErrKindConflict = eris.Wrap(ErrRegistration, "type already registered under another kind")

	// ErrRegistrySealed is returned when registering a new type after the first archetype exists.
	ErrRegistrySealed = eris.Wrap(ErrRegistration, "registry is sealed")

	// ErrDuplicateName is returned when two distinct types share a name.
	ErrDuplicateName = eris.Wrap(ErrRegistration, "name already registered")

	// ErrInvalidState is returned when a command buffer is used after playback, or a system manager
	// is changed after it started.
	ErrInvalidState = eris.New("invalid state")

	// ErrReentrantMutation is returned when the store is mutated from inside a change observer.
	ErrReentrantMutation = eris.New("store mutated from inside a change observer")

	// ErrMaxEntities is returned when the entity id space is exhausted.
	ErrMaxEntities = eris.New("max number of entities exceeded")
)
