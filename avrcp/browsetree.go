package avrcp

import (
	"strconv"
	"strings"
)

// Browse scopes, as carried on the wire by browse commands.
const (
	ScopePlayerList = 0x00
	ScopeVFS        = 0x01
	ScopeNowPlaying = 0x03
)

// Well-known node identifiers. Root lists the remote players;
// NavigateUp is a synthetic marker directing navigation one level up.
const (
	NodeIDRoot       = "__ROOT__"
	NodeIDNavigateUp = "__UP__"
	NodeIDNowPlaying = "NOW_PLAYING"

	playerPrefix = "PLAYER"
)

// nowPlayingExpected caps the now-playing queue length requested from
// the remote.
const nowPlayingExpected = 255

// BrowseItem is one element of a folder or now-playing listing, as
// delivered by the link layer. UID is the remote's element identifier
// encoded as a hex string.
type BrowseItem struct {
	UID      string
	Title    string
	Folder   bool
	Playable bool
}

// BrowseNode is one node of the browse hierarchy: a player, a folder or
// a media element. Nodes hold a back-reference to their parent but
// never own it.
type BrowseNode struct {
	id     string
	title  string
	uid    string
	scope  int
	player *PlayerInfo

	browsable bool
	cached    bool

	parent           *BrowseNode
	children         []*BrowseNode
	expectedChildren int

	tree *BrowseTree
}

// BrowseTree indexes the browse hierarchy of one remote device:
//
//	Root
//	  Player1
//	    NowPlaying: item, item, ...
//	    Folder1
//	    Folder2
//	  Player2
//
// The root, navigate-up and now-playing nodes are fixed singletons
// created once per tree. The tree is owned by its machine's mailbox
// goroutine.
type BrowseTree struct {
	nodes map[string]*BrowseNode

	root       *BrowseNode
	navigateUp *BrowseNode
	nowPlaying *BrowseNode

	currentFolder   *BrowseNode
	browsedPlayer   *BrowseNode
	addressedPlayer *BrowseNode

	// depth is the number of folder levels below the browsed player
	// the remote currently has us at.
	depth int
}

// NewBrowseTree builds an empty tree with its singleton nodes.
func NewBrowseTree() *BrowseTree {
	t := &BrowseTree{nodes: make(map[string]*BrowseNode)}

	t.root = &BrowseNode{
		id: NodeIDRoot, title: NodeIDRoot, uid: NodeIDRoot,
		scope: ScopePlayerList, browsable: true, tree: t,
	}
	t.navigateUp = &BrowseNode{
		id: NodeIDNavigateUp, title: NodeIDNavigateUp, uid: NodeIDNavigateUp,
		browsable: true, tree: t,
	}
	t.nowPlaying = &BrowseNode{
		id: NodeIDNowPlaying, title: NodeIDNowPlaying, uid: NodeIDNowPlaying,
		scope: ScopeNowPlaying, browsable: true, tree: t,
		expectedChildren: nowPlayingExpected,
	}

	t.nodes[NodeIDRoot] = t.root
	t.nodes[NodeIDNowPlaying] = t.nowPlaying

	t.currentFolder = t.root

	return t
}

// Root returns the player-list singleton node.
func (t *BrowseTree) Root() *BrowseNode { return t.root }

// NavigateUp returns the synthetic up-navigation marker node.
func (t *BrowseTree) NavigateUp() *BrowseNode { return t.navigateUp }

// NowPlaying returns the now-playing singleton node.
func (t *BrowseTree) NowPlaying() *BrowseNode { return t.nowPlaying }

// Find resolves a node by its tree-wide unique identifier.
func (t *BrowseTree) Find(id string) *BrowseNode {
	return t.nodes[id]
}

// CurrentFolder returns the folder the remote's browsing session is in.
func (t *BrowseTree) CurrentFolder() *BrowseNode { return t.currentFolder }

// BrowsedPlayer returns the current browsed player node, if any.
func (t *BrowseTree) BrowsedPlayer() *BrowseNode { return t.browsedPlayer }

// AddressedPlayer returns the current addressed player node, if any.
func (t *BrowseTree) AddressedPlayer() *BrowseNode { return t.addressedPlayer }

// SetCurrentFolder moves the browsing cursor to a known node. It
// reports whether the node was found.
func (t *BrowseTree) SetCurrentFolder(id string) bool {
	node, ok := t.nodes[id]
	if !ok {
		return false
	}

	t.currentFolder = node

	return true
}

// SetBrowsedPlayer records the remote's browsed player after a
// successful set-browsed-player exchange. The remote reports the item
// count and folder depth of the session it restored; placeholder nodes
// are created per level so up-navigation stays consistent.
func (t *BrowseTree) SetBrowsedPlayer(id string, items, depth int) bool {
	node, ok := t.nodes[id]
	if !ok {
		return false
	}

	t.browsedPlayer = node
	t.currentFolder = node

	for level := 0; level < depth; level++ {
		placeholder := &BrowseNode{
			id:        strconv.Itoa(level),
			title:     strconv.Itoa(level),
			uid:       strconv.Itoa(level),
			scope:     ScopeVFS,
			browsable: true,
			parent:    t.currentFolder,
			tree:      t,
		}
		t.currentFolder = placeholder
	}

	t.currentFolder.expectedChildren = items
	t.depth = depth

	return true
}

// SetAddressedPlayer records the player currently controlling playback.
// An unknown player id invalidates the root so the player list is
// refetched; the now-playing singleton is reattached so queue browsing
// keeps working in the meantime.
func (t *BrowseTree) SetAddressedPlayer(id string) bool {
	node, ok := t.nodes[id]
	if !ok {
		t.root.SetCached(false)
		t.root.children = append(t.root.children, t.nowPlaying)
		t.nodes[NodeIDNowPlaying] = t.nowPlaying
		return false
	}

	t.addressedPlayer = node

	return true
}

// NextStepToFolder computes the next single hop from the current
// browsed folder toward target: the target itself when it is directly
// reachable, the navigate-up marker to ascend, a child folder to
// descend into, or nil when the target is not reachable from here.
func (t *BrowseTree) NextStepToFolder(target *BrowseNode) *BrowseNode {
	switch {
	case target == nil:
		return nil

	case target == t.currentFolder || target == t.nowPlaying:
		return target

	case target.IsPlayer():
		if t.depth > 0 {
			t.depth--
			return t.navigateUp
		}
		return target

	case t.nodes[target.id] == nil:
		return nil
	}

	if child := eldestChild(t.currentFolder, target); child != nil {
		return child
	}

	return t.navigateUp
}

// eldestChild returns the direct child of ancestor on the path to
// target, or nil if target is not a descendant of ancestor.
func eldestChild(ancestor, target *BrowseNode) *BrowseNode {
	descendant := target
	for descendant != nil && descendant.parent != ancestor {
		descendant = descendant.parent
	}

	return descendant
}

// ID returns the tree-wide unique identifier of the node.
func (n *BrowseNode) ID() string { return n.id }

// Title returns the display name of the node.
func (n *BrowseNode) Title() string { return n.title }

// FolderUID returns the identifier used on the wire to address this
// node in browse commands.
func (n *BrowseNode) FolderUID() string { return n.uid }

// Scope returns the browse scope the node's contents live in.
func (n *BrowseNode) Scope() int { return n.scope }

// Parent returns the parent node, nil for the singletons.
func (n *BrowseNode) Parent() *BrowseNode { return n.parent }

// IsPlayer reports whether the node represents a remote player.
func (n *BrowseNode) IsPlayer() bool { return n.player != nil }

// PlayerID returns the remote player identifier of a player node.
func (n *BrowseNode) PlayerID() int {
	if n.player != nil {
		return n.player.ID
	}

	id, err := strconv.Atoi(strings.TrimPrefix(n.id, playerPrefix))
	if err != nil {
		return InvalidPlayerID
	}

	return id
}

// IsNowPlaying reports whether the node belongs to the now-playing scope.
func (n *BrowseNode) IsNowPlaying() bool {
	return strings.HasPrefix(n.id, NodeIDNowPlaying)
}

// Browsable reports whether the node's contents can be listed.
func (n *BrowseNode) Browsable() bool { return n.browsable }

// Cached reports whether the node's contents are complete.
func (n *BrowseNode) Cached() bool { return n.cached }

// SetCached marks the node's contents as complete or stale. Marking a
// node stale evicts all of its descendants from the tree's lookup
// index so no stale identifier can resolve.
func (n *BrowseNode) SetCached(cached bool) {
	n.cached = cached
	if cached {
		return
	}

	for _, child := range n.children {
		child.SetCached(false)
		delete(n.tree.nodes, child.id)
	}
	n.children = nil
}

// SetExpectedChildren records the child count the remote reported for
// the node, capped by the per-folder item limit.
func (n *BrowseNode) SetExpectedChildren(count int) {
	if count > MaxFolderItems {
		count = MaxFolderItems
	}
	n.expectedChildren = count
}

// ExpectedChildren returns the child count the remote reported.
func (n *BrowseNode) ExpectedChildren() int { return n.expectedChildren }

// ChildrenCount returns the number of children fetched so far.
func (n *BrowseNode) ChildrenCount() int { return len(n.children) }

// Children returns the node's fetched children in listing order.
func (n *BrowseNode) Children() []*BrowseNode { return n.children }

// AddItems appends folder/media items to the node and indexes them.
func (n *BrowseNode) AddItems(items []BrowseItem) {
	for _, item := range items {
		child := &BrowseNode{
			id:        item.UID,
			title:     item.Title,
			uid:       item.UID,
			scope:     n.childScope(),
			browsable: item.Folder,
			parent:    n,
			tree:      n.tree,
		}
		n.children = append(n.children, child)
		n.tree.nodes[child.id] = child
	}
}

// AddPlayers appends player entries to the node and indexes them.
func (n *BrowseNode) AddPlayers(players []PlayerInfo) {
	for i := range players {
		player := players[i]
		id := playerPrefix + strconv.Itoa(player.ID)
		child := &BrowseNode{
			id:        id,
			title:     player.Name,
			uid:       id,
			scope:     ScopeVFS,
			player:    &player,
			browsable: player.SupportsFeature(FeatureBrowsing),
			parent:    n,
			tree:      n.tree,
		}
		n.children = append(n.children, child)
		n.tree.nodes[child.id] = child
	}
}

// childScope returns the scope children of this node live in.
func (n *BrowseNode) childScope() int {
	if n.scope == ScopeNowPlaying {
		return ScopeNowPlaying
	}

	return ScopeVFS
}

// String describes the node for logging.
func (n *BrowseNode) String() string { return n.id }
