package store

import "sync"

type subscriber[T any] struct {
	id int
	fn func(T)
}

// observers mantiene los suscriptores de un store. Los cambios se encolan
// con publish en orden de commit y flush los entrega de a uno, asi ningun
// suscriptor recibe un estado viejo despues de uno nuevo.
type observers[T any] struct {
	mu         sync.Mutex
	nextID     int
	subs       []subscriber[T]
	pending    []T
	delivering bool
}

func (o *observers[T]) subscribe(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscriber[T]{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// publish se llama con el lock del store tomado; eso fija el orden de entrega.
func (o *observers[T]) publish(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.subs) == 0 {
		return
	}
	o.pending = append(o.pending, v)
}

// flush se llama sin locks del store tomados, asi un suscriptor puede volver
// a leer o mutar el store. Si otro goroutine ya esta entregando, ese mismo
// entrega lo encolado aca.
func (o *observers[T]) flush() {
	o.mu.Lock()
	if o.delivering {
		o.mu.Unlock()
		return
	}
	o.delivering = true
	o.mu.Unlock()

	drained := false
	defer func() {
		// un suscriptor que entra en panic no deja la cola trabada
		if !drained {
			o.mu.Lock()
			o.delivering = false
			o.mu.Unlock()
		}
	}()

	for {
		o.mu.Lock()
		if len(o.pending) == 0 {
			o.delivering = false
			o.pending = nil
			o.mu.Unlock()
			drained = true
			return
		}
		v := o.pending[0]
		var zero T
		o.pending[0] = zero
		o.pending = o.pending[1:]
		subs := make([]subscriber[T], len(o.subs))
		copy(subs, o.subs)
		o.mu.Unlock()

		for _, s := range subs {
			s.fn(v)
		}
	}
}
