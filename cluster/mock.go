package cluster

type mockedChannel struct {
	messages [][]byte
}

func (m *mockedChannel) Broadcast(b []byte) {
	m.messages = append(m.messages, b)
}

type mockedMesh struct {
	id      string
	members []NodeMeta
	states  map[string]GossipState
	joined  []string
	onJoin  func(id string, meta NodeMeta)
	onLeave func(id string, meta NodeMeta)
}

func (m *mockedMesh) AddState(key string, state GossipState) (Channel, error) {
	if _, ok := m.states[key]; ok {
		return nil, ErrStateKeyAlreadySet
	}
	m.states[key] = state
	return &mockedChannel{}, nil
}
func (m *mockedMesh) Join(hosts []string) error {
	m.joined = append(m.joined, hosts...)
	return nil
}
func (m *mockedMesh) ID() string {
	return m.id
}
func (m *mockedMesh) Health() string {
	if m.NumMembers() == 1 {
		return "warning"
	}
	return "ok"
}
func (m *mockedMesh) Leave() {}
func (m *mockedMesh) OnNodeJoin(f func(id string, meta NodeMeta)) {
	m.onJoin = f
}
func (m *mockedMesh) OnNodeLeave(f func(id string, meta NodeMeta)) {
	m.onLeave = f
}

// AddMember simulates a node joining the mesh.
func (m *mockedMesh) AddMember(meta NodeMeta) {
	m.members = append(m.members, meta)
	if m.onJoin != nil {
		m.onJoin(meta.ID, meta)
	}
}

// RemoveMember simulates a node leaving the mesh.
func (m *mockedMesh) RemoveMember(id string) {
	for idx, member := range m.members {
		if member.ID == id {
			m.members = append(m.members[:idx:idx], m.members[idx+1:]...)
			if m.onLeave != nil {
				m.onLeave(id, member)
			}
			return
		}
	}
}
func (m *mockedMesh) Members() []NodeMeta {
	return m.members
}
func (m *mockedMesh) NumMembers() int {
	return len(m.members)
}

// SetMembers replaces the member list reported by the mocked mesh.
func (m *mockedMesh) SetMembers(members ...NodeMeta) {
	m.members = members
}

// Joined returns the hosts passed to Join.
func (m *mockedMesh) Joined() []string {
	return m.joined
}

// MockedMesh returns an in-memory Layer whose only member is the local node.
func MockedMesh(id string, rloc16 uint16) *mockedMesh {
	return &mockedMesh{
		id:      id,
		members: []NodeMeta{{ID: id, Rloc16: rloc16}},
		states:  map[string]GossipState{},
	}
}
