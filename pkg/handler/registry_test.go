package handler

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

type sumMsg struct{ A, B int }

func (sumMsg) ClassID() string { return "test.Sum" }

type addMsg struct{ N int }

func (addMsg) ClassID() string { return "test.Add" }

type counter struct {
	sum int
}

func newCounterHandlerFunc(c *counter) HandlerFunc {
	return func(msg rdisq.Message) (any, error) {
		m := msg.(*addMsg)
		c.sum += m.N
		return c.sum, nil
	}
}

var counterType = reflect.TypeOf((*counter)(nil))

func registerSumAndAdd(t *testing.T, r *Registry) {
	t.Helper()
	require.NoError(t, r.SetFreeHandler("test.Sum", func() rdisq.Message { return &sumMsg{} }, func(msg rdisq.Message) (any, error) {
		m := msg.(*sumMsg)
		return m.A + m.B, nil
	}))
	require.NoError(t, r.SetBoundHandler("test.Add", func() rdisq.Message { return &addMsg{} }, counterType,
		func(instance any) (HandlerFunc, error) {
			c, ok := instance.(*counter)
			if !ok {
				return nil, &rdisq.InvalidHandlerInstanceError{ClassID: "test.Add", Reason: "not a *counter"}
			}
			return newCounterHandlerFunc(c), nil
		},
		func(kwargs map[string]any) (any, error) {
			start, _ := kwargs["start"].(int)
			return &counter{sum: start}, nil
		},
	))
}

func TestFreeHandlerRejectsAnInstance(t *testing.T) {
	r := New()
	registerSumAndAdd(t, r)

	h, err := r.CreateHandler("test.Sum", nil, nil)
	require.NoError(t, err)
	result, err := h.Invoke(&sumMsg{A: 1, B: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, result)

	_, err = r.CreateHandler("test.Sum", &counter{}, nil)
	require.Error(t, err)
	assert.IsType(t, &rdisq.InvalidHandlerInstanceError{}, err)
}

func TestBoundHandlerWithConcreteInstance(t *testing.T) {
	r := New()
	registerSumAndAdd(t, r)

	c := &counter{sum: 10}
	h, err := r.CreateHandler("test.Add", c, nil)
	require.NoError(t, err)
	result, err := h.Invoke(&addMsg{N: 5})
	require.NoError(t, err)
	assert.Equal(t, 15, result)
}

func TestBoundHandlerConstructsFromKwargs(t *testing.T) {
	r := New()
	registerSumAndAdd(t, r)

	h, err := r.CreateHandler("test.Add", map[string]any{"start": 100}, nil)
	require.NoError(t, err)
	result, err := h.Invoke(&addMsg{N: 1})
	require.NoError(t, err)
	assert.Equal(t, 101, result)
}

func TestBoundHandlerReusesSiblingInstance(t *testing.T) {
	r := New()
	registerSumAndAdd(t, r)

	c := &counter{sum: 1}
	existing, err := r.CreateHandler("test.Add", c, nil)
	require.NoError(t, err)

	// A second bound handler for a sibling class of the same owning type,
	// registered with no instance param, must reuse c rather than fail.
	require.NoError(t, r.SetBoundHandler("test.AddAgain", func() rdisq.Message { return &addMsg{} }, counterType,
		func(instance any) (HandlerFunc, error) {
			cc := instance.(*counter)
			return newCounterHandlerFunc(cc), nil
		}, nil))

	sibling, err := r.CreateHandler("test.AddAgain", nil, []Handler{existing})
	require.NoError(t, err)
	assert.Same(t, c, sibling.Instance)
}

func TestBoundHandlerMissingInstanceFailsWithNoSiblings(t *testing.T) {
	r := New()
	registerSumAndAdd(t, r)

	_, err := r.CreateHandler("test.Add", nil, nil)
	require.Error(t, err)
	assert.IsType(t, &rdisq.MissingHandlerInstanceError{}, err)
}

func TestBoundHandlerRejectsWrongType(t *testing.T) {
	r := New()
	registerSumAndAdd(t, r)

	_, err := r.CreateHandler("test.Add", &sumMsg{}, nil)
	require.Error(t, err)
	assert.IsType(t, &rdisq.InvalidHandlerInstanceError{}, err)
}

func TestSecondRegistrationOfSameClassFails(t *testing.T) {
	r := New()
	registerSumAndAdd(t, r)

	err := r.SetFreeHandler("test.Sum", func() rdisq.Message { return &sumMsg{} }, func(msg rdisq.Message) (any, error) { return nil, nil })
	require.Error(t, err)
	assert.IsType(t, &rdisq.InvalidArgumentError{}, err)
}

func TestCreateHandlersForObjectSharesOneInstance(t *testing.T) {
	r := New()
	registerSumAndAdd(t, r)
	require.NoError(t, r.SetBoundHandler("test.AddAgain", func() rdisq.Message { return &addMsg{} }, counterType,
		func(instance any) (HandlerFunc, error) {
			cc := instance.(*counter)
			return newCounterHandlerFunc(cc), nil
		}, nil))

	c := &counter{sum: 0}
	handlers, err := r.CreateHandlersForObject(c, counterType)
	require.NoError(t, err)
	require.Len(t, handlers, 2)
	for _, h := range handlers {
		assert.Same(t, c, h.Instance)
	}
}
