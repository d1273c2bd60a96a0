package sim

// RedundancyCache keeps copies of recently admitted packets so a packet that
// misses its QoS target can be re-enqueued. Oldest copies are evicted first.
//
// Thread-safety: NOT thread-safe. Owned by a single Engine.
type RedundancyCache struct {
	capacity int
	order    []string
	packets  map[string]Packet
}

// NewRedundancyCache creates a cache holding at most capacity packets.
func NewRedundancyCache(capacity int) *RedundancyCache {
	if capacity < 1 {
		panic("NewRedundancyCache: capacity must be >= 1")
	}
	return &RedundancyCache{capacity: capacity, packets: make(map[string]Packet, capacity)}
}

// Put stores p, replacing any copy with the same id.
func (c *RedundancyCache) Put(p Packet) {
	if _, ok := c.packets[p.ID]; !ok {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.packets, oldest)
		}
		c.order = append(c.order, p.ID)
	}
	c.packets[p.ID] = p
}

// Take removes and returns the copy of id. Each copy is retransmitted at most once.
func (c *RedundancyCache) Take(id string) (Packet, bool) {
	p, ok := c.packets[id]
	if !ok {
		return Packet{}, false
	}
	delete(c.packets, id)
	for i, k := range c.order {
		if k == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return p, true
}

// Len returns the number of cached packets.
func (c *RedundancyCache) Len() int {
	return len(c.packets)
}

// Reset drops every cached packet.
func (c *RedundancyCache) Reset() {
	c.order = nil
	clear(c.packets)
}
