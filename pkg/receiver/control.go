package receiver

import (
	"reflect"

	"github.com/go-rdisq/rdisq/pkg/control"
	"github.com/go-rdisq/rdisq/pkg/handler"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

var receiverType = reflect.TypeOf((*Receiver)(nil))

// registerControlHandlers binds the eight core control message classes to
// *Receiver in reg, once. Every Receiver built against the same registry
// shares these descriptors; each instance just supplies itself as the bound
// instance when it registers.
func registerControlHandlers(reg *handler.Registry) {
	bind := func(invoke func(r *Receiver, msg rdisq.Message) (any, error)) func(any) (handler.HandlerFunc, error) {
		return func(instance any) (handler.HandlerFunc, error) {
			r, ok := instance.(*Receiver)
			if !ok {
				return nil, &rdisq.InvalidHandlerInstanceError{Reason: "control handler requires a *receiver.Receiver instance"}
			}
			return func(msg rdisq.Message) (any, error) { return invoke(r, msg) }, nil
		}
	}

	registerOne(reg, control.RegisterClassID, func() rdisq.Message { return &control.RegisterMessage{} },
		bind(func(r *Receiver, msg rdisq.Message) (any, error) {
			m := msg.(*control.RegisterMessage)
			return r.RegisterMessage(m.Class, m.InstanceParam)
		}))

	registerOne(reg, control.UnregisterClassID, func() rdisq.Message { return &control.UnregisterMessage{} },
		bind(func(r *Receiver, msg rdisq.Message) (any, error) {
			m := msg.(*control.UnregisterMessage)
			return r.UnregisterMessage(m.Class)
		}))

	registerOne(reg, control.GetRegisteredMessagesClassID, func() rdisq.Message { return &control.GetRegisteredMessagesMessage{} },
		bind(func(r *Receiver, msg rdisq.Message) (any, error) {
			return r.GetRegisteredMessages(), nil
		}))

	registerOne(reg, control.AddQueueClassID, func() rdisq.Message { return &control.AddQueueMessage{} },
		bind(func(r *Receiver, msg rdisq.Message) (any, error) {
			m := msg.(*control.AddQueueMessage)
			return r.AddQueue(m.Name)
		}))

	registerOne(reg, control.RemoveQueueClassID, func() rdisq.Message { return &control.RemoveQueueMessage{} },
		bind(func(r *Receiver, msg rdisq.Message) (any, error) {
			m := msg.(*control.RemoveQueueMessage)
			return r.RemoveQueue(m.Name)
		}))

	registerOne(reg, control.SetReceiverTagsClassID, func() rdisq.Message { return &control.SetReceiverTagsMessage{} },
		bind(func(r *Receiver, msg rdisq.Message) (any, error) {
			m := msg.(*control.SetReceiverTagsMessage)
			return r.SetTags(m.Tags)
		}))

	registerOne(reg, control.RegisterAllClassID, func() rdisq.Message { return &control.RegisterAllMessage{} },
		bind(func(r *Receiver, msg rdisq.Message) (any, error) {
			m := msg.(*control.RegisterAllMessage)
			return r.RegisterAll(m.InstanceParam, m.Class)
		}))

	registerOne(reg, control.ShutDownClassID, func() rdisq.Message { return &control.ShutDownMessage{} },
		bind(func(r *Receiver, msg rdisq.Message) (any, error) {
			return r.Shutdown()
		}))
}

// registerOne is a no-op if classID is already bound, so that repeated
// Receiver construction against a shared registry (the common case, via
// handler.Default) doesn't trip the registry's duplicate-registration guard.
func registerOne(reg *handler.Registry, classID string, newMessage func() rdisq.Message, bind func(any) (handler.HandlerFunc, error)) {
	if reg.Has(classID) {
		return
	}
	_ = reg.SetBoundHandler(classID, newMessage, receiverType, bind, nil)
}
