package world

// Movement describes a Thing going from one parent to another.
type Movement struct {
	Mover     *Thing
	GoingFrom *Thing
	GoingTo   *Thing
}

type MovementRequest struct {
	RequestBase
	Movement
}

type MovementEvent struct {
	EventBase
	Movement
}

func NewMovementRequest(mover, from, to *Thing, msg *SensoryMessage) *MovementRequest {
	r := &MovementRequest{Movement: Movement{Mover: mover, GoingFrom: from, GoingTo: to}}
	r.init(CategoryMovement, "MovementRequest", mover, msg, r)
	r.Movement.stage(msg)
	return r
}

func NewMovementEvent(mover, from, to *Thing, msg *SensoryMessage) *MovementEvent {
	e := &MovementEvent{Movement: Movement{Mover: mover, GoingFrom: from, GoingTo: to}}
	e.init(CategoryMovement, "MovementEvent", mover, msg, e)
	e.Movement.stage(msg)
	return e
}

func (m Movement) stage(msg *SensoryMessage) {
	if msg == nil {
		return
	}
	msg.Context.SetIfAbsent("GoingFrom", m.GoingFrom)
	msg.Context.SetIfAbsent("GoingTo", m.GoingTo)
}

// Combat describes an attack of Aggressor on Target.
type Combat struct {
	Aggressor *Thing
	Target    *Thing
	Damage    int
}

type CombatRequest struct {
	RequestBase
	Combat
}

type CombatEvent struct {
	EventBase
	Combat
}

func NewCombatRequest(aggressor, target *Thing, damage int, msg *SensoryMessage) *CombatRequest {
	r := &CombatRequest{Combat: Combat{Aggressor: aggressor, Target: target, Damage: damage}}
	r.init(CategoryCombat, "CombatRequest", aggressor, msg, r)
	r.Combat.stage(msg)
	return r
}

func NewCombatEvent(aggressor, target *Thing, damage int, msg *SensoryMessage) *CombatEvent {
	e := &CombatEvent{Combat: Combat{Aggressor: aggressor, Target: target, Damage: damage}}
	e.init(CategoryCombat, "CombatEvent", aggressor, msg, e)
	e.Combat.stage(msg)
	return e
}

func (c Combat) stage(msg *SensoryMessage) {
	if msg == nil {
		return
	}
	msg.Context.SetIfAbsent("Aggressor", c.Aggressor)
	msg.Context.SetIfAbsent("Target", c.Target)
	msg.Context.SetIfAbsent(ContextReceiver, c.Target)
	msg.Context.Set("Damage", c.Damage)
}

// Communication describes something said or emoted.
type Communication struct {
	Speaker *Thing
	Text    string
}

type CommunicationRequest struct {
	RequestBase
	Communication
}

type CommunicationEvent struct {
	EventBase
	Communication
}

func NewCommunicationRequest(speaker *Thing, text string, msg *SensoryMessage) *CommunicationRequest {
	r := &CommunicationRequest{Communication: Communication{Speaker: speaker, Text: text}}
	r.init(CategoryCommunication, "CommunicationRequest", speaker, msg, r)
	r.Communication.stage(msg)
	return r
}

func NewCommunicationEvent(speaker *Thing, text string, msg *SensoryMessage) *CommunicationEvent {
	e := &CommunicationEvent{Communication: Communication{Speaker: speaker, Text: text}}
	e.init(CategoryCommunication, "CommunicationEvent", speaker, msg, e)
	e.Communication.stage(msg)
	return e
}

func (c Communication) stage(msg *SensoryMessage) {
	if msg == nil {
		return
	}
	msg.Context.Set("Text", c.Text)
}

// StatChange describes a stat moving between two values.
type StatChange struct {
	Stat     string
	OldValue int
	NewValue int
}

type StatChangeRequest struct {
	RequestBase
	StatChange
}

type StatChangeEvent struct {
	EventBase
	StatChange
}

func NewStatChangeRequest(owner *Thing, stat string, oldValue, newValue int, msg *SensoryMessage) *StatChangeRequest {
	r := &StatChangeRequest{StatChange: StatChange{Stat: stat, OldValue: oldValue, NewValue: newValue}}
	r.init(CategoryMisc, "StatChangeRequest", owner, msg, r)
	return r
}

func NewStatChangeEvent(owner *Thing, stat string, oldValue, newValue int, msg *SensoryMessage) *StatChangeEvent {
	e := &StatChangeEvent{StatChange: StatChange{Stat: stat, OldValue: oldValue, NewValue: newValue}}
	e.init(CategoryMisc, "StatChangeEvent", owner, msg, e)
	return e
}

// MiscRequest and MiscEvent cover named happenings with no extra fields.
type MiscRequest struct {
	RequestBase
	Name string
}

type MiscEvent struct {
	EventBase
	Name string
}

func NewMiscRequest(origin *Thing, name string, msg *SensoryMessage) *MiscRequest {
	r := &MiscRequest{Name: name}
	r.init(CategoryMisc, "MiscRequest", origin, msg, r)
	return r
}

func NewMiscEvent(origin *Thing, name string, msg *SensoryMessage) *MiscEvent {
	e := &MiscEvent{Name: name}
	e.init(CategoryMisc, "MiscEvent", origin, msg, e)
	return e
}
