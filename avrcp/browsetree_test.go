package avrcp

import "testing"

// buildTree returns a tree with one browsable player holding one
// folder with two items, mirroring a small remote library.
func buildTree(t *testing.T) *BrowseTree {
	t.Helper()

	tree := NewBrowseTree()
	tree.Root().AddPlayers([]PlayerInfo{browsablePlayer(1, "player")})
	tree.Root().SetCached(true)

	player := tree.Find("PLAYER1")
	if player == nil {
		t.Fatal("player node not indexed")
	}
	if !tree.SetBrowsedPlayer(player.ID(), 10, 0) {
		t.Fatal("SetBrowsedPlayer failed for a known node")
	}

	player.AddItems([]BrowseItem{
		{UID: "folder-a", Title: "Folder A", Folder: true},
	})
	folder := tree.Find("folder-a")
	folder.AddItems([]BrowseItem{
		{UID: "track-1", Title: "Track 1", Playable: true},
		{UID: "track-2", Title: "Track 2", Playable: true},
	})

	return tree
}

func TestTreeSingletons(t *testing.T) {
	tree := NewBrowseTree()

	if tree.Find(NodeIDRoot) != tree.Root() {
		t.Fatal("root not indexed under its identifier")
	}
	if tree.Find(NodeIDNowPlaying) != tree.NowPlaying() {
		t.Fatal("now-playing not indexed under its identifier")
	}
	if tree.CurrentFolder() != tree.Root() {
		t.Fatal("browsing cursor does not start at the root")
	}
	if got := tree.Root().Scope(); got != ScopePlayerList {
		t.Fatalf("root scope = %d, want player list", got)
	}
	if got := tree.NowPlaying().Scope(); got != ScopeNowPlaying {
		t.Fatalf("now-playing scope = %d, want now playing", got)
	}
}

func TestAddPlayersIndexesAndFlags(t *testing.T) {
	tree := NewBrowseTree()
	tree.Root().AddPlayers([]PlayerInfo{
		browsablePlayer(3, "deck"),
		{ID: 4, Name: "tuner"},
	})

	deck := tree.Find("PLAYER3")
	if deck == nil || !deck.IsPlayer() || !deck.Browsable() {
		t.Fatalf("deck = %v, want a browsable player node", deck)
	}
	if deck.PlayerID() != 3 {
		t.Fatalf("deck player id = %d, want 3", deck.PlayerID())
	}

	tuner := tree.Find("PLAYER4")
	if tuner == nil || tuner.Browsable() {
		t.Fatalf("tuner = %v, want a non-browsable player node", tuner)
	}
}

func TestNextStepToFolder(t *testing.T) {
	tree := buildTree(t)

	player := tree.Find("PLAYER1")
	folder := tree.Find("folder-a")

	// The current folder is the player itself.
	if got := tree.NextStepToFolder(player); got != player {
		t.Fatalf("next step to current folder = %v, want the folder itself", got)
	}

	// Descending one level hops to the direct child on the path.
	if got := tree.NextStepToFolder(folder); got != folder {
		t.Fatalf("next step to child folder = %v, want %v", got, folder)
	}

	// The now-playing singleton is always directly reachable.
	if got := tree.NextStepToFolder(tree.NowPlaying()); got != tree.NowPlaying() {
		t.Fatalf("next step to now playing = %v, want the now-playing node", got)
	}

	// From a deeper folder, an unrelated target routes up first.
	tree.SetCurrentFolder("folder-a")
	if got := tree.NextStepToFolder(tree.Root()); got != tree.NavigateUp() {
		t.Fatalf("next step to root = %v, want navigate up", got)
	}

	if got := tree.NextStepToFolder(nil); got != nil {
		t.Fatalf("next step to nil = %v, want nil", got)
	}
}

func TestNextStepToPlayerUnwindsDepth(t *testing.T) {
	tree := NewBrowseTree()
	tree.Root().AddPlayers([]PlayerInfo{browsablePlayer(1, "player")})

	player := tree.Find("PLAYER1")
	if !tree.SetBrowsedPlayer(player.ID(), 10, 2) {
		t.Fatal("SetBrowsedPlayer failed")
	}

	// The remote restored a session two levels deep; reaching the
	// player root takes two up-hops before the player is next.
	for range 2 {
		if got := tree.NextStepToFolder(player); got != tree.NavigateUp() {
			t.Fatalf("next step = %v, want navigate up", got)
		}
	}
	if got := tree.NextStepToFolder(player); got != player {
		t.Fatalf("next step after unwinding = %v, want the player", got)
	}
}

func TestSetBrowsedPlayerPlaceholders(t *testing.T) {
	tree := NewBrowseTree()
	tree.Root().AddPlayers([]PlayerInfo{browsablePlayer(1, "player")})

	if !tree.SetBrowsedPlayer("PLAYER1", 30, 2) {
		t.Fatal("SetBrowsedPlayer failed")
	}

	// The cursor sits on the deepest placeholder, which carries the
	// reported item count and chains back to the player.
	current := tree.CurrentFolder()
	if current.ExpectedChildren() != 30 {
		t.Fatalf("expected children = %d, want 30", current.ExpectedChildren())
	}

	depth := 0
	for node := current; node != nil && !node.IsPlayer(); node = node.Parent() {
		depth++
	}
	if depth != 2 {
		t.Fatalf("placeholder depth = %d, want 2", depth)
	}
	if tree.BrowsedPlayer() != tree.Find("PLAYER1") {
		t.Fatal("browsed player not recorded")
	}
}

func TestSetBrowsedPlayerUnknownNode(t *testing.T) {
	tree := NewBrowseTree()

	if tree.SetBrowsedPlayer("PLAYER9", 10, 0) {
		t.Fatal("SetBrowsedPlayer succeeded for an unknown node")
	}
	if tree.BrowsedPlayer() != nil {
		t.Fatal("browsed player set despite the failure")
	}
}

func TestSetCachedFalseEvictsDescendants(t *testing.T) {
	tree := buildTree(t)
	player := tree.Find("PLAYER1")

	player.SetCached(false)

	for _, id := range []string{"folder-a", "track-1", "track-2"} {
		if tree.Find(id) != nil {
			t.Fatalf("node %s still resolvable after eviction", id)
		}
	}
	if player.ChildrenCount() != 0 {
		t.Fatalf("children = %d, want none", player.ChildrenCount())
	}

	// The player itself and its siblings stay indexed.
	if tree.Find("PLAYER1") == nil {
		t.Fatal("player evicted with its descendants")
	}
}

func TestSetAddressedPlayerKnown(t *testing.T) {
	tree := buildTree(t)

	if !tree.SetAddressedPlayer("PLAYER1") {
		t.Fatal("SetAddressedPlayer failed for a known node")
	}
	if tree.AddressedPlayer() != tree.Find("PLAYER1") {
		t.Fatal("addressed player not recorded")
	}
}

func TestSetAddressedPlayerUnknownInvalidatesRoot(t *testing.T) {
	tree := buildTree(t)
	root := tree.Root()

	if tree.SetAddressedPlayer("PLAYER9") {
		t.Fatal("SetAddressedPlayer succeeded for an unknown node")
	}
	if root.Cached() {
		t.Fatal("root still cached after unknown addressed player")
	}

	// The now-playing singleton survives the invalidation so queue
	// browsing keeps working before the player list is refetched.
	if tree.Find(NodeIDNowPlaying) != tree.NowPlaying() {
		t.Fatal("now-playing node lost")
	}
}

func TestAddItemsScopes(t *testing.T) {
	tree := buildTree(t)

	tree.NowPlaying().AddItems([]BrowseItem{{UID: "queued-1", Playable: true}})

	if got := tree.Find("queued-1").Scope(); got != ScopeNowPlaying {
		t.Fatalf("queue item scope = %d, want now playing", got)
	}
	if got := tree.Find("track-1").Scope(); got != ScopeVFS {
		t.Fatalf("folder item scope = %d, want file system", got)
	}
	if !tree.Find("queued-1").Parent().IsNowPlaying() {
		t.Fatal("queue item not parented under the now-playing node")
	}
}

func TestExpectedChildrenCapped(t *testing.T) {
	tree := NewBrowseTree()

	tree.Root().SetExpectedChildren(MaxFolderItems + 500)
	if got := tree.Root().ExpectedChildren(); got != MaxFolderItems {
		t.Fatalf("expected children = %d, want capped at %d", got, MaxFolderItems)
	}
}

func TestPlayerIDFromIdentifier(t *testing.T) {
	node := &BrowseNode{id: "PLAYER12"}
	if got := node.PlayerID(); got != 12 {
		t.Fatalf("player id = %d, want 12", got)
	}

	node = &BrowseNode{id: "folder-a"}
	if got := node.PlayerID(); got != InvalidPlayerID {
		t.Fatalf("player id = %d, want invalid", got)
	}
}
