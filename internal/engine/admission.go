package engine

// lookup resolves id under the registry read lock.
func (e *Engine) lookup(op, id string) (*record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return nil, ErrNotReady(op)
	}
	rec := e.models[id]
	if rec == nil {
		return nil, ErrModelNotFound(id)
	}
	return rec, nil
}

// beginInference admits one inference against id. Any number of inferences
// may hold a model at once; a pending optimize or unload blocks new
// admissions until it finishes. Returns a release func to be deferred.
func (e *Engine) beginInference(op, id string) (*record, func(), error) {
	rec, err := e.lookup(op, id)
	if err != nil {
		return nil, func() {}, err
	}
	rec.mu.RLock()
	if rec.removed {
		rec.mu.RUnlock()
		return nil, func() {}, ErrModelNotFound(id)
	}
	rec.inflight.Add(1)
	return rec, func() {
		rec.inflight.Add(-1)
		rec.mu.RUnlock()
	}, nil
}

// beginExclusive waits for in-flight inference on id to drain and holds the
// model exclusively until the returned release func runs.
func (e *Engine) beginExclusive(op, id string) (*record, func(), error) {
	rec, err := e.lookup(op, id)
	if err != nil {
		return nil, func() {}, err
	}
	rec.mu.Lock()
	if rec.removed {
		rec.mu.Unlock()
		return nil, func() {}, ErrModelNotFound(id)
	}
	return rec, rec.mu.Unlock, nil
}
