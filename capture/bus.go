package capture

import "sync"

// Subscription is the handle returned by every subscribe call. Cancel is
// safe to call more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// bus is a typed fan-out to registered callbacks. Callbacks run on the
// publisher's goroutine, so they must not block.
type bus[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

func (b *bus[T]) subscribe(fn func(T)) *Subscription {
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]func(T))
	}
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return &Subscription{cancel: func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}}
}

func (b *bus[T]) publish(v T) {
	b.mu.Lock()
	fns := make([]func(T), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (b *bus[T]) clear() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}

// feed is the subscription surface shared by both producers: packets, stats,
// interface snapshots and connection status.
type feed struct {
	packets    bus[Packet]
	stats      bus[Stats]
	interfaces bus[[]Interface]
	status     bus[ConnStatus]
}

func (f *feed) OnPacket(fn func(Packet)) *Subscription          { return f.packets.subscribe(fn) }
func (f *feed) OnStats(fn func(Stats)) *Subscription            { return f.stats.subscribe(fn) }
func (f *feed) OnInterfaces(fn func([]Interface)) *Subscription { return f.interfaces.subscribe(fn) }
func (f *feed) OnStatus(fn func(ConnStatus)) *Subscription      { return f.status.subscribe(fn) }

func (f *feed) clearSubscribers() {
	f.packets.clear()
	f.stats.clear()
	f.interfaces.clear()
	f.status.clear()
}

// Producer is a source of capture events: the traffic simulator or the
// remote capture client. Exactly one is authoritative at a time; the
// session coordinator arbitrates.
type Producer interface {
	OnPacket(fn func(Packet)) *Subscription
	OnStats(fn func(Stats)) *Subscription
	OnInterfaces(fn func([]Interface)) *Subscription
	OnStatus(fn func(ConnStatus)) *Subscription
}
