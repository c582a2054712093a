package ecs

// Action is what happened to an entity in a ChangeEvent.
type Action uint8

const (
	ActionAdded Action = iota + 1
	ActionRemoved
	ActionChanged
	ActionCreated
	ActionDeleted
)

func (a Action) String() string {
	switch a {
	case ActionAdded:
		return "added"
	case ActionRemoved:
		return "removed"
	case ActionChanged:
		return "changed"
	case ActionCreated:
		return "created"
	case ActionDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ChangeEvent is emitted after a committed change. Kind and Type identify the component, tag or
// relation kind; they are zero for entity creation and deletion.
//
// Deleting an entity emits ActionRemoved for each relation kind it held and for each entity
// reference component dropped from its referrers, then ActionDeleted. Its own components and tags
// are covered by ActionDeleted.
type ChangeEvent struct {
	Entity   EntityID
	Action   Action
	Kind     Kind
	Type     uint32
	Relation bool
}

// Observer receives change events. Observers run synchronously inside the mutating call and must
// not mutate the store; doing so returns ErrReentrantMutation.
type Observer func(ChangeEvent)

type subscription struct {
	id uint64
	fn Observer
}

// observerList is copy on write so observers can unsubscribe while events are being delivered.
type observerList struct {
	nextID uint64
	subs   []subscription
}

// Subscribe registers an observer and returns the function that removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	ol := &s.observers
	ol.nextID++
	id := ol.nextID

	subs := make([]subscription, len(ol.subs), len(ol.subs)+1)
	copy(subs, ol.subs)
	ol.subs = append(subs, subscription{id: id, fn: fn})

	return func() {
		for i, sub := range ol.subs {
			if sub.id != id {
				continue
			}
			subs := make([]subscription, 0, len(ol.subs)-1)
			subs = append(subs, ol.subs[:i]...)
			ol.subs = append(subs, ol.subs[i+1:]...)
			return
		}
	}
}

// emit delivers ev to every observer. The store rejects mutation while observers run.
func (s *Store) emit(ev ChangeEvent) {
	subs := s.observers.subs
	if len(subs) == 0 {
		return
	}
	s.notifying = true
	defer func() { s.notifying = false }()
	for _, sub := range subs {
		sub.fn(ev)
	}
}
