package testutils

// -------------------------------------------------------------------------------------------------
// Components
// -------------------------------------------------------------------------------------------------

type Position struct{ X, Y, Z float64 }

func (Position) Name() string { return "position" }

type Velocity struct{ X, Y, Z float64 }

func (Velocity) Name() string { return "velocity" }

type Health struct {
	HP int `json:"hp"`
}

func (Health) Name() string { return "health" }

// Team is registered as an indexed scalar component.
type Team int

func (Team) Name() string { return "team" }

// Label is registered as an indexed user value component.
type Label struct {
	Text  string
	Color uint8
}

func (Label) Name() string { return "label" }

// Parent points at another entity. Set is false for a parent that points nowhere.
type Parent struct {
	Entity uint32
	Set    bool
}

func (Parent) Name() string { return "parent" }

type MapComponent struct {
	Items map[string]int `json:"items"`
}

func (MapComponent) Name() string { return "map_component" }

// -------------------------------------------------------------------------------------------------
// Tags and scripts
// -------------------------------------------------------------------------------------------------

type Frozen struct{}

func (Frozen) Name() string { return "frozen" }

type Player struct{}

func (Player) Name() string { return "player" }

type AI struct{}

func (AI) Name() string { return "ai" }

// -------------------------------------------------------------------------------------------------
// Relations
// -------------------------------------------------------------------------------------------------

// Item is registered as a relation keyed by the item name.
type Item struct{ Count int }

func (Item) Name() string { return "item" }
