package realtime

import "sync"

// Sink receives serialized frames destined for one live connection.
type Sink interface {
	Send(payload []byte) error
}

// Connection is the registry handle for one live socket.
type Connection struct {
	id             int64
	sink           Sink
	userID         string
	conversationID string
}

// ID returns the process-unique connection sequence number.
func (c *Connection) ID() int64 {
	return c.id
}

// Tags is a point-in-time copy of a connection's identity and subscription.
type Tags struct {
	UserID         string
	ConversationID string
}

// Authenticated reports whether an identity has been declared on the connection.
func (t Tags) Authenticated() bool {
	return t.UserID != ""
}

// Registry tracks live connections and the tags attached to each.
type Registry struct {
	mu          sync.RWMutex
	connections map[int64]*Connection
	nextID      int64
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[int64]*Connection),
	}
}

// Register adds a new, untagged connection writing to sink.
func (r *Registry) Register(sink Sink) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	connection := &Connection{id: r.nextID, sink: sink}
	r.connections[connection.id] = connection
	return connection
}

// Identify sets the user tag. Later calls overwrite earlier ones.
func (r *Registry) Identify(connection *Connection, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.registeredLocked(connection) {
		return
	}
	connection.userID = userID
}

// Subscribe scopes the connection to one conversation room, replacing any previous room.
func (r *Registry) Subscribe(connection *Connection, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.registeredLocked(connection) {
		return
	}
	connection.conversationID = conversationID
}

// Unsubscribe clears the room tag.
func (r *Registry) Unsubscribe(connection *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.registeredLocked(connection) {
		return
	}
	connection.conversationID = ""
}

// Remove drops the connection. It is safe to call more than once.
func (r *Registry) Remove(connection *Connection) {
	if connection == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.registeredLocked(connection) {
		return
	}
	delete(r.connections, connection.id)
	connection.conversationID = ""
}

// Tags returns the current tags of connection; a removed connection reports empty tags.
func (r *Registry) Tags(connection *Connection) Tags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.registeredLocked(connection) {
		return Tags{}
	}
	return Tags{UserID: connection.userID, ConversationID: connection.conversationID}
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Snapshot returns the tags of every live connection in no particular order.
func (r *Registry) Snapshot() []Tags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]Tags, 0, len(r.connections))
	for _, connection := range r.connections {
		tags = append(tags, Tags{UserID: connection.userID, ConversationID: connection.conversationID})
	}
	return tags
}

func (r *Registry) registeredLocked(connection *Connection) bool {
	if connection == nil {
		return false
	}
	current, ok := r.connections[connection.id]
	return ok && current == connection
}

// match copies the connections satisfying predicate while holding the read lock.
func (r *Registry) match(predicate func(Tags) bool) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []*Connection
	for _, connection := range r.connections {
		if predicate(Tags{UserID: connection.userID, ConversationID: connection.conversationID}) {
			matches = append(matches, connection)
		}
	}
	return matches
}

// roomPeers returns the other connections in the sender's room accepted by predicate.
// A sender without a room has no peers.
func (r *Registry) roomPeers(sender *Connection, predicate func(Tags) bool) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.registeredLocked(sender) || sender.conversationID == "" {
		return nil
	}
	room := sender.conversationID
	var peers []*Connection
	for _, connection := range r.connections {
		if connection == sender || connection.conversationID != room {
			continue
		}
		if predicate == nil || predicate(Tags{UserID: connection.userID, ConversationID: connection.conversationID}) {
			peers = append(peers, connection)
		}
	}
	return peers
}
