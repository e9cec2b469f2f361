package localnotify

// ListFunc receives every scheduled notification the host knows about.
type ListFunc func(records []Record)

// GetFunc receives one notification, or nil when the host reported it missing
// or the lookup failed.
type GetFunc func(record *Record)

// listRegistry holds callbacks waiting on the single in-flight List command.
type listRegistry struct {
	waiters []ListFunc
}

// add appends cb and reports whether a List command must be sent, which is
// only the case when no request was already outstanding.
func (r *listRegistry) add(cb ListFunc) (send bool) {
	send = len(r.waiters) == 0
	r.waiters = append(r.waiters, cb)
	return send
}

// resolve hands records to every waiter in append order and clears the list.
// It returns the number of waiters resolved.
func (r *listRegistry) resolve(records []Record) int {
	waiters := r.waiters
	r.waiters = nil
	for _, cb := range waiters {
		if cb != nil {
			cb(records)
		}
	}
	return len(waiters)
}

func (r *listRegistry) pending() int { return len(r.waiters) }

// getRegistry holds callbacks waiting on Get replies, keyed by name.
type getRegistry struct {
	waiters map[string][]GetFunc
}

func (r *getRegistry) add(name string, cb GetFunc) {
	if r.waiters == nil {
		r.waiters = map[string][]GetFunc{}
	}
	r.waiters[name] = append(r.waiters[name], cb)
}

// resolve answers every waiter for name, in append order, then forgets name.
// Failed lookups resolve with nil.
func (r *getRegistry) resolve(name string, rec *Record, ok bool) int {
	waiters, found := r.waiters[name]
	if !found {
		return 0
	}
	delete(r.waiters, name)

	var out *Record
	if ok {
		out = rec
	}
	for _, cb := range waiters {
		if cb != nil {
			cb(out)
		}
	}
	return len(waiters)
}

func (r *getRegistry) pending(name string) int { return len(r.waiters[name]) }
