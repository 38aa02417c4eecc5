package world

// Controller is whatever drives a Thing: a connected session or an AI. The
// core only ever writes text to it or tells it a request was cancelled.
type Controller interface {
	Write(text string)
	NotifyCancelled(reason string)
	Thing() *Thing
}

// ControllerBehavior is the capability of a Thing that has a controller.
type ControllerBehavior interface {
	Controller() Controller
}

// ControllerOf returns the controller of t, or nil.
func ControllerOf(t *Thing) Controller {
	cb, ok := FindBehavior[ControllerBehavior](t)
	if !ok {
		return nil
	}
	return cb.Controller()
}
