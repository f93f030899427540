package connpool

// EvictIdle runs one eviction sweep synchronously.
func (p *Pool) EvictIdle() int {
	return p.evictIdle()
}
