// Package control defines the in-band messages a receiver handles about
// itself: registering/unregistering message classes, listening on arbitrary
// queues, tagging, bulk registration, and shutdown. They are registered on
// every receiver exactly like a user message, bound to that receiver's own
// instance (see pkg/receiver), which is why this package only holds plain
// data — it must not import pkg/receiver.
package control

const (
	RegisterClassID              = "rdisq.control.Register"
	UnregisterClassID            = "rdisq.control.Unregister"
	GetRegisteredMessagesClassID = "rdisq.control.GetRegisteredMessages"
	AddQueueClassID               = "rdisq.control.AddQueue"
	RemoveQueueClassID            = "rdisq.control.RemoveQueue"
	SetReceiverTagsClassID        = "rdisq.control.SetReceiverTags"
	RegisterAllClassID            = "rdisq.control.RegisterAll"
	ShutDownClassID               = "rdisq.control.ShutDown"
)

// CoreClassIDs lists every control message class a receiver bootstraps
// itself with at construction.
var CoreClassIDs = []string{
	RegisterClassID,
	UnregisterClassID,
	GetRegisteredMessagesClassID,
	AddQueueClassID,
	RemoveQueueClassID,
	SetReceiverTagsClassID,
	RegisterAllClassID,
	ShutDownClassID,
}

// RegisterMessage asks a receiver to start handling Class, using
// InstanceParam as the handler-instance policy input (nil, a kwargs map, or
// a concrete instance — see pkg/handler.Registry.CreateHandler).
type RegisterMessage struct {
	Class         string
	InstanceParam any
}

func (RegisterMessage) ClassID() string { return RegisterClassID }

// UnregisterMessage asks a receiver to stop handling Class.
type UnregisterMessage struct {
	Class string
}

func (UnregisterMessage) ClassID() string { return UnregisterClassID }

// GetRegisteredMessagesMessage asks a receiver for its currently registered
// message classes.
type GetRegisteredMessagesMessage struct{}

func (GetRegisteredMessagesMessage) ClassID() string { return GetRegisteredMessagesClassID }

// AddQueueMessage asks a receiver to additionally listen on Name as a
// broadcast queue, dispatched generically by the payload's own class id.
type AddQueueMessage struct {
	Name string
}

func (AddQueueMessage) ClassID() string { return AddQueueClassID }

// RemoveQueueMessage asks a receiver to stop listening on Name.
type RemoveQueueMessage struct {
	Name string
}

func (RemoveQueueMessage) ClassID() string { return RemoveQueueClassID }

// SetReceiverTagsMessage replaces a receiver's tag map wholesale.
type SetReceiverTagsMessage struct {
	Tags map[string]string
}

func (SetReceiverTagsMessage) ClassID() string { return SetReceiverTagsClassID }

// RegisterAllMessage asks a receiver to bulk-register every message class
// whose handler belongs to Class, all sharing one instance built from
// InstanceParam.
type RegisterAllMessage struct {
	InstanceParam any
	Class         string
}

func (RegisterAllMessage) ClassID() string { return RegisterAllClassID }

// ShutDownMessage asks a receiver to stop its process loop at the next
// iteration boundary.
type ShutDownMessage struct{}

func (ShutDownMessage) ClassID() string { return ShutDownClassID }
