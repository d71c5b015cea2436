package scs

// GroupSyncWrite collects per-device blocks of one fixed width for a single
// broadcast sync write to the same register range.
type GroupSyncWrite struct {
	bus     *Bus
	address byte
	width   int

	ids  []byte
	data map[byte][]byte
}

// NewGroupSyncWrite creates an empty group writing width bytes at address.
func NewGroupSyncWrite(bus *Bus, address byte, width int) *GroupSyncWrite {
	return &GroupSyncWrite{
		bus:     bus,
		address: address,
		width:   width,
		data:    make(map[byte][]byte),
	}
}

// Add appends a block for id. It returns false and leaves the group
// unchanged if id is already present or data has the wrong width.
func (g *GroupSyncWrite) Add(id byte, data []byte) bool {
	if _, exists := g.data[id]; exists {
		return false
	}
	if len(data) != g.width {
		return false
	}

	block := make([]byte, len(data))
	copy(block, data)
	g.ids = append(g.ids, id)
	g.data[id] = block
	return true
}

// Clear removes every entry.
func (g *GroupSyncWrite) Clear() {
	g.ids = nil
	g.data = make(map[byte][]byte)
}

// Len returns the number of entries.
func (g *GroupSyncWrite) Len() int {
	return len(g.ids)
}

// IDs returns the device IDs in insertion order.
func (g *GroupSyncWrite) IDs() []byte {
	out := make([]byte, len(g.ids))
	copy(out, g.ids)
	return out
}

// Payload concatenates id followed by its block, in insertion order.
func (g *GroupSyncWrite) Payload() []byte {
	buf := make([]byte, 0, len(g.ids)*(1+g.width))
	for _, id := range g.ids {
		buf = append(buf, id)
		buf = append(buf, g.data[id]...)
	}
	return buf
}

// Send broadcasts the group. An empty group is a no-op and returns Success.
func (g *GroupSyncWrite) Send() CommResult {
	if len(g.ids) == 0 {
		return Success
	}
	return g.bus.SyncWrite(g.address, g.width, g.Payload())
}
