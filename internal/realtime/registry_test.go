package realtime

import "testing"

func TestRegistryTagsLifecycle(t *testing.T) {
	registry := NewRegistry()
	connection := registry.Register(&recordingSink{})

	if registry.Tags(connection).Authenticated() {
		t.Fatalf("new connection must not be authenticated")
	}

	registry.Subscribe(connection, "conv-1")
	tags := registry.Tags(connection)
	if tags.ConversationID != "conv-1" || tags.Authenticated() {
		t.Fatalf("expected subscribed unauthenticated connection, got %+v", tags)
	}

	registry.Identify(connection, "user-1")
	registry.Identify(connection, "user-2")
	if registry.Tags(connection).UserID != "user-2" {
		t.Fatalf("expected repeated identify to overwrite, got %q", registry.Tags(connection).UserID)
	}

	registry.Unsubscribe(connection)
	if registry.Tags(connection).ConversationID != "" {
		t.Fatalf("expected unsubscribe to clear conversation")
	}
	if !registry.Tags(connection).Authenticated() {
		t.Fatalf("unsubscribe must keep identity")
	}
}

func TestRegistryRemoveClearsConnection(t *testing.T) {
	registry := NewRegistry()
	first := registry.Register(&recordingSink{})
	second := registry.Register(&recordingSink{})
	registry.Subscribe(first, "conv-1")

	if first.ID() == second.ID() {
		t.Fatalf("connection ids must be unique")
	}
	if registry.Count() != 2 {
		t.Fatalf("expected 2 connections, got %d", registry.Count())
	}

	registry.Remove(first)
	registry.Remove(first)

	if registry.Count() != 1 {
		t.Fatalf("expected 1 connection after remove, got %d", registry.Count())
	}
	if tags := registry.Tags(first); tags != (Tags{}) {
		t.Fatalf("removed connection must report empty tags, got %+v", tags)
	}

	registry.Subscribe(first, "conv-2")
	if matches := registry.match(func(tags Tags) bool { return tags.ConversationID == "conv-2" }); len(matches) != 0 {
		t.Fatalf("removed connection must not be re-tagged")
	}
}

func TestRegistryRoomPeersExcludesSenderAndOtherRooms(t *testing.T) {
	registry := NewRegistry()
	sender := connect(registry, "user-a", "conv-1")
	peer := connect(registry, "user-b", "conv-1")
	connect(registry, "user-c", "conv-2")
	connect(registry, "user-d", "")

	peers := registry.roomPeers(sender.connection, nil)
	if len(peers) != 1 || peers[0] != peer.connection {
		t.Fatalf("expected only the room peer, got %d peers", len(peers))
	}

	lonely := connect(registry, "user-e", "")
	if peers := registry.roomPeers(lonely.connection, nil); len(peers) != 0 {
		t.Fatalf("connection without a room must have no peers, got %d", len(peers))
	}
}

func TestRegistrySnapshotCopiesLiveTags(t *testing.T) {
	registry := NewRegistry()
	first := registry.Register(&recordingSink{})
	second := registry.Register(&recordingSink{})
	registry.Identify(first, "user-1")
	registry.Subscribe(first, "conv-1")
	registry.Remove(second)

	snapshot := registry.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected one live connection, got %d", len(snapshot))
	}
	if snapshot[0] != (Tags{UserID: "user-1", ConversationID: "conv-1"}) {
		t.Fatalf("unexpected tags %+v", snapshot[0])
	}
}
