// Package handler maps a message class id to the code that handles it.
// Registration happens explicitly, once per process, at init time — never by
// reflecting on a function's qualified name at call time. A descriptor is
// either free (stateless, no owning instance) or bound (resolved against a
// constructed or reused instance of some type) per classID.
package handler

import (
	"reflect"
	"sync"

	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

// HandlerFunc invokes a decoded message and returns either a result or an
// error to be captured and surfaced to the caller.
type HandlerFunc func(msg rdisq.Message) (any, error)

// Kind distinguishes a free function from one bound to an instance of some
// owning type.
type Kind int

const (
	KindFree Kind = iota
	KindBound
)

// Descriptor is what Register leaves behind: enough to decode a message of
// this class and, for bound handlers, to produce a live HandlerFunc given an
// instance.
type Descriptor struct {
	ClassID    string
	Kind       Kind
	NewMessage func() rdisq.Message

	// Free is set for KindFree.
	Free HandlerFunc

	// OwningType, Bind and Construct are set for KindBound. Bind adapts a
	// concrete instance into a HandlerFunc; Construct, if set, builds a new
	// instance from caller-supplied keyword-style arguments.
	OwningType reflect.Type
	Bind       func(instance any) (HandlerFunc, error)
	Construct  func(kwargs map[string]any) (any, error)
}

// Handler is a Descriptor bound to a concrete instance (or none, for free
// handlers), ready to invoke.
type Handler struct {
	ClassID  string
	Instance any
	Invoke   HandlerFunc
}

// Registry is the process-wide message-class -> Descriptor table. The core
// keeps one default, global Registry, but nothing requires a single
// instance — tests construct their own to avoid cross-test pollution.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// SetFreeHandler registers a free-function handler for classID. A second
// registration for the same classID is a fatal error for the call, per the
// "at most one handler per message class" invariant.
func (r *Registry) SetFreeHandler(classID string, newMessage func() rdisq.Message, fn HandlerFunc) error {
	return r.set(Descriptor{ClassID: classID, Kind: KindFree, NewMessage: newMessage, Free: fn})
}

// SetBoundHandler registers a method-style handler for classID. construct
// may be nil if the handler never accepts kwargs-style instantiation.
func (r *Registry) SetBoundHandler(classID string, newMessage func() rdisq.Message, owningType reflect.Type, bind func(instance any) (HandlerFunc, error), construct func(kwargs map[string]any) (any, error)) error {
	return r.set(Descriptor{
		ClassID:    classID,
		Kind:       KindBound,
		NewMessage: newMessage,
		OwningType: owningType,
		Bind:       bind,
		Construct:  construct,
	})
}

func (r *Registry) set(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[d.ClassID]; exists {
		return &rdisq.InvalidArgumentError{Reason: "handler already registered for " + d.ClassID}
	}
	r.descriptors[d.ClassID] = d
	return nil
}

// TypeByName finds the owning type of some registered bound handler whose
// type name (reflect.Type.String, e.g. "*ggisimport.Service") equals name.
// This is how a RegisterAll control message's kwargs-construction path
// resolves its target type without either side sharing Go reflect.Type
// values over the wire.
func (r *Registry) TypeByName(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.descriptors {
		if d.Kind == KindBound && d.OwningType != nil && d.OwningType.String() == name {
			return d.OwningType, true
		}
	}
	return nil, false
}

// Has reports whether classID has a registered descriptor.
func (r *Registry) Has(classID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.descriptors[classID]
	return ok
}

// NewMessage returns a fresh zero-value message for classID, ready to be
// decoded into, or false if classID isn't registered.
func (r *Registry) NewMessage(classID string) (rdisq.Message, bool) {
	r.mu.RLock()
	d, ok := r.descriptors[classID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return d.NewMessage(), true
}

// CreateHandler builds a live Handler for classID, resolving instanceParam
// per this policy:
//   - free handler: instanceParam must be nil.
//   - bound handler, instanceParam nil: reuse a sibling's instance of the
//     owning type, or fail with MissingHandlerInstanceError.
//   - bound handler, instanceParam is map[string]any: construct a new
//     instance from it.
//   - bound handler, instanceParam is an instance of the owning type: use it.
//   - anything else: InvalidHandlerInstanceError.
func (r *Registry) CreateHandler(classID string, instanceParam any, siblings []Handler) (Handler, error) {
	r.mu.RLock()
	d, ok := r.descriptors[classID]
	r.mu.RUnlock()
	if !ok {
		return Handler{}, &rdisq.InvalidArgumentError{Reason: "no handler registered for " + classID}
	}

	switch d.Kind {
	case KindFree:
		if instanceParam != nil {
			return Handler{}, &rdisq.InvalidHandlerInstanceError{ClassID: classID, Reason: "free handler does not take an instance"}
		}
		return Handler{ClassID: classID, Invoke: d.Free}, nil

	case KindBound:
		switch v := instanceParam.(type) {
		case nil:
			for _, sib := range siblings {
				if sib.Instance != nil && reflect.TypeOf(sib.Instance) == d.OwningType {
					fn, err := d.Bind(sib.Instance)
					if err != nil {
						return Handler{}, err
					}
					return Handler{ClassID: classID, Instance: sib.Instance, Invoke: fn}, nil
				}
			}
			return Handler{}, &rdisq.MissingHandlerInstanceError{ClassID: classID}

		case map[string]any:
			if d.Construct == nil {
				return Handler{}, &rdisq.InvalidHandlerInstanceError{ClassID: classID, Reason: "handler does not support keyword construction"}
			}
			inst, err := d.Construct(v)
			if err != nil {
				return Handler{}, err
			}
			fn, err := d.Bind(inst)
			if err != nil {
				return Handler{}, err
			}
			return Handler{ClassID: classID, Instance: inst, Invoke: fn}, nil

		default:
			if reflect.TypeOf(instanceParam) != d.OwningType {
				return Handler{}, &rdisq.InvalidHandlerInstanceError{ClassID: classID, Reason: "instance is not a " + d.OwningType.String()}
			}
			fn, err := d.Bind(instanceParam)
			if err != nil {
				return Handler{}, err
			}
			return Handler{ClassID: classID, Instance: instanceParam, Invoke: fn}, nil
		}
	}
	return Handler{}, &rdisq.InvalidArgumentError{Reason: "unknown handler kind for " + classID}
}

// CreateHandlersForObject synthesizes one Handler per message class whose
// owning type matches instance's type, all sharing instance. instance may
// also be a map[string]any kwargs bundle paired with ownerHint, the type to
// construct.
func (r *Registry) CreateHandlersForObject(instanceOrKwargs any, ownerHint reflect.Type) (map[string]Handler, error) {
	var instance any
	var ownerType reflect.Type

	if kwargs, ok := instanceOrKwargs.(map[string]any); ok {
		if ownerHint == nil {
			return nil, &rdisq.InvalidArgumentError{Reason: "kwargs given without a target type"}
		}
		r.mu.RLock()
		var construct func(map[string]any) (any, error)
		for _, d := range r.descriptors {
			if d.Kind == KindBound && d.OwningType == ownerHint {
				construct = d.Construct
				break
			}
		}
		r.mu.RUnlock()
		if construct == nil {
			return nil, &rdisq.InvalidHandlerInstanceError{Reason: "no constructible handler for " + ownerHint.String()}
		}
		built, err := construct(kwargs)
		if err != nil {
			return nil, err
		}
		instance = built
		ownerType = ownerHint
	} else {
		instance = instanceOrKwargs
		ownerType = reflect.TypeOf(instance)
	}

	r.mu.RLock()
	var classIDs []string
	for classID, d := range r.descriptors {
		if d.Kind == KindBound && d.OwningType == ownerType {
			classIDs = append(classIDs, classID)
		}
	}
	r.mu.RUnlock()

	if len(classIDs) == 0 {
		return nil, &rdisq.InvalidArgumentError{Reason: "no registered handlers for type " + ownerType.String()}
	}

	result := make(map[string]Handler, len(classIDs))
	for _, classID := range classIDs {
		h, err := r.CreateHandler(classID, instance, nil)
		if err != nil {
			return nil, err
		}
		result[classID] = h
	}
	return result, nil
}
