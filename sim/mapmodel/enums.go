package mapmodel

import "fmt"

// LaneType classifies what may travel on a lane.
type LaneType uint8

const (
	LaneDriving LaneType = iota
	LaneParking
	LaneBike
	LaneTransit
	LaneSidewalk
)

var laneTypeNames = [...]string{"driving", "parking", "bike", "transit", "sidewalk"}

func (t LaneType) String() string {
	if int(t) < len(laneTypeNames) {
		return laneTypeNames[t]
	}
	return fmt.Sprintf("LaneType(%d)", uint8(t))
}

func (t LaneType) MarshalText() ([]byte, error) { return marshalEnum(t.String(), int(t), len(laneTypeNames)) }

func (t *LaneType) UnmarshalText(b []byte) error {
	v, err := parseEnum("lane type", string(b), laneTypeNames[:])
	*t = LaneType(v)
	return err
}

// AllLaneTypes lists every LaneType, in declaration order.
func AllLaneTypes() []LaneType {
	return []LaneType{LaneDriving, LaneParking, LaneBike, LaneTransit, LaneSidewalk}
}

// Direction says whether a lane travels along its road (from -> to) or against it.
type Direction uint8

const (
	Forward Direction = iota
	Backward
)

var directionNames = [...]string{"forward", "backward"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

func (d Direction) MarshalText() ([]byte, error) { return marshalEnum(d.String(), int(d), len(directionNames)) }

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := parseEnum("direction", string(b), directionNames[:])
	*d = Direction(v)
	return err
}

// ControlType is the intersection control policy.
type ControlType uint8

const (
	ControlStopSign ControlType = iota
	ControlSignal
	ControlUncontrolled
)

var controlTypeNames = [...]string{"stop_sign", "signal", "uncontrolled"}

func (c ControlType) String() string {
	if int(c) < len(controlTypeNames) {
		return controlTypeNames[c]
	}
	return fmt.Sprintf("ControlType(%d)", uint8(c))
}

func (c ControlType) MarshalText() ([]byte, error) {
	return marshalEnum(c.String(), int(c), len(controlTypeNames))
}

func (c *ControlType) UnmarshalText(b []byte) error {
	v, err := parseEnum("control type", string(b), controlTypeNames[:])
	*c = ControlType(v)
	return err
}

// AllControlTypes lists every ControlType.
func AllControlTypes() []ControlType {
	return []ControlType{ControlStopSign, ControlSignal, ControlUncontrolled}
}

// TurnType is the geometric class of a movement through an intersection.
// Crosswalk and SidewalkCorner are pedestrian movements.
type TurnType uint8

const (
	TurnStraight TurnType = iota
	TurnRight
	TurnLeft
	TurnUTurn
	TurnCrosswalk
	TurnSidewalkCorner
)

var turnTypeNames = [...]string{"straight", "right", "left", "u_turn", "crosswalk", "sidewalk_corner"}

func (t TurnType) String() string {
	if int(t) < len(turnTypeNames) {
		return turnTypeNames[t]
	}
	return fmt.Sprintf("TurnType(%d)", uint8(t))
}

func (t TurnType) MarshalText() ([]byte, error) { return marshalEnum(t.String(), int(t), len(turnTypeNames)) }

func (t *TurnType) UnmarshalText(b []byte) error {
	v, err := parseEnum("turn type", string(b), turnTypeNames[:])
	*t = TurnType(v)
	return err
}

// IsPedestrian reports whether the movement is walked rather than driven.
func (t TurnType) IsPedestrian() bool {
	return t == TurnCrosswalk || t == TurnSidewalkCorner
}

// Rank orders turn types for the stop-sign yield rule; lower goes first.
func (t TurnType) Rank() int {
	return int(t)
}

// AllTurnTypes lists every TurnType.
func AllTurnTypes() []TurnType {
	return []TurnType{TurnStraight, TurnRight, TurnLeft, TurnUTurn, TurnCrosswalk, TurnSidewalkCorner}
}

// TurnPriority is the right-of-way class of a turn.
type TurnPriority uint8

const (
	PriorityClass TurnPriority = iota
	YieldClass
	BannedClass
)

var turnPriorityNames = [...]string{"priority", "yield", "banned"}

func (p TurnPriority) String() string {
	if int(p) < len(turnPriorityNames) {
		return turnPriorityNames[p]
	}
	return fmt.Sprintf("TurnPriority(%d)", uint8(p))
}

func (p TurnPriority) MarshalText() ([]byte, error) {
	return marshalEnum(p.String(), int(p), len(turnPriorityNames))
}

func (p *TurnPriority) UnmarshalText(b []byte) error {
	v, err := parseEnum("turn priority", string(b), turnPriorityNames[:])
	*p = TurnPriority(v)
	return err
}

// AllTurnPriorities lists every TurnPriority.
func AllTurnPriorities() []TurnPriority {
	return []TurnPriority{PriorityClass, YieldClass, BannedClass}
}

// SpotKind says which vehicles a parking spot accepts.
type SpotKind uint8

const (
	SpotOnStreet SpotKind = iota
	SpotLot
	SpotBikeRack
)

var spotKindNames = [...]string{"on_street", "lot", "bike_rack"}

func (k SpotKind) String() string {
	if int(k) < len(spotKindNames) {
		return spotKindNames[k]
	}
	return fmt.Sprintf("SpotKind(%d)", uint8(k))
}

func (k SpotKind) MarshalText() ([]byte, error) { return marshalEnum(k.String(), int(k), len(spotKindNames)) }

func (k *SpotKind) UnmarshalText(b []byte) error {
	v, err := parseEnum("spot kind", string(b), spotKindNames[:])
	*k = SpotKind(v)
	return err
}

// RestrictionType is a turn restriction between two roads.
type RestrictionType uint8

const (
	BanTurns RestrictionType = iota
	OnlyAllowTurns
)

var restrictionTypeNames = [...]string{"ban_turns", "only_allow_turns"}

func (r RestrictionType) String() string {
	if int(r) < len(restrictionTypeNames) {
		return restrictionTypeNames[r]
	}
	return fmt.Sprintf("RestrictionType(%d)", uint8(r))
}

func (r RestrictionType) MarshalText() ([]byte, error) {
	return marshalEnum(r.String(), int(r), len(restrictionTypeNames))
}

func (r *RestrictionType) UnmarshalText(b []byte) error {
	v, err := parseEnum("restriction type", string(b), restrictionTypeNames[:])
	*r = RestrictionType(v)
	return err
}

// CoordSystem says how map coordinates are interpreted.
type CoordSystem uint8

const (
	// Planar coordinates are meters on a flat plane.
	Planar CoordSystem = iota
	// WGS84 coordinates are [lon, lat] degrees.
	WGS84
)

var coordSystemNames = [...]string{"planar", "wgs84"}

func (c CoordSystem) String() string {
	if int(c) < len(coordSystemNames) {
		return coordSystemNames[c]
	}
	return fmt.Sprintf("CoordSystem(%d)", uint8(c))
}

func (c CoordSystem) MarshalText() ([]byte, error) {
	return marshalEnum(c.String(), int(c), len(coordSystemNames))
}

func (c *CoordSystem) UnmarshalText(b []byte) error {
	v, err := parseEnum("coordinate system", string(b), coordSystemNames[:])
	*c = CoordSystem(v)
	return err
}

func marshalEnum(name string, v, n int) ([]byte, error) {
	if v < 0 || v >= n {
		return nil, fmt.Errorf("cannot marshal out-of-range enum value %s", name)
	}
	return []byte(name), nil
}

func parseEnum(what, s string, names []string) (int, error) {
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q (want one of %v)", what, s, names)
}
