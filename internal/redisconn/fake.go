package redisconn

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-memory Conn used by this module's own tests so they don't
// need a live Redis. It implements just enough of list/hash/TTL semantics to
// exercise the dispatcher, receiver, and request packages.
type Fake struct {
	mu      sync.Mutex
	cond    *sync.Cond
	lists   map[string][][]byte
	strings map[string]fakeValue
	hashes  map[string]map[string]string
}

type fakeValue struct {
	data      []byte
	expiresAt time.Time
	hasTTL    bool
}

// NewFake builds an empty Fake.
func NewFake() *Fake {
	f := &Fake{
		lists:   make(map[string][][]byte),
		strings: make(map[string]fakeValue),
		hashes:  make(map[string]map[string]string),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fake) LPush(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.lists[key] = append([][]byte{value}, f.lists[key]...)
	f.mu.Unlock()
	f.cond.Broadcast()
	return nil
}

// BRPop pops the tail of the first non-empty list among keys, blocking until
// one is available, the timeout elapses, or ctx is done. Like Redis, it does
// not define an ordering guarantee across distinct keys when more than one
// is ready.
func (f *Fake) BRPop(ctx context.Context, timeout time.Duration, keys ...string) (string, []byte, error) {
	deadline := time.Now().Add(timeout)
	if timeout <= 0 {
		deadline = time.Now().Add(24 * time.Hour)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		f.cond.Broadcast()
	}()
	defer close(done)

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		for _, k := range keys {
			if lst := f.lists[k]; len(lst) > 0 {
				v := lst[len(lst)-1]
				f.lists[k] = lst[:len(lst)-1]
				return k, v, nil
			}
		}
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		if time.Now().After(deadline) {
			return "", nil, ErrNil
		}
		go func() {
			time.Sleep(10 * time.Millisecond)
			f.cond.Broadcast()
		}()
		f.cond.Wait()
	}
}

func (f *Fake) SetEX(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[key] = fakeValue{data: value, expiresAt: time.Now().Add(ttl), hasTTL: true}
	return nil
}

func (f *Fake) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	if !ok || (v.hasTTL && time.Now().After(v.expiresAt)) {
		delete(f.strings, key)
		return nil, ErrNil
	}
	return v.data, nil
}

func (f *Fake) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.strings, k)
		delete(f.lists, k)
		delete(f.hashes, k)
	}
	return nil
}

func (f *Fake) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.strings[key]; ok {
		v.hasTTL = true
		v.expiresAt = time.Now().Add(ttl)
		f.strings[key] = v
	}
	return nil
}

func (f *Fake) HSet(_ context.Context, key, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (f *Fake) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) HDel(_ context.Context, key string, fields ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.hashes[key]
	for _, field := range fields {
		delete(h, field)
	}
	return nil
}
