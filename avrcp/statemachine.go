package avrcp

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
	"github.com/bluetuith-org/btprofiles/internal/timers"
	"go.uber.org/atomic"
)

// Default timeouts for the machine's multi-step exchanges.
const (
	DefaultCommandTimeout   = 5 * time.Second
	DefaultAbsVolumeTimeout = 1 * time.Second
)

// Remote control feature bits reported by RC_FEATURES events.
const (
	featMetadata       = 0x01
	featAbsoluteVolume = 0x02
	featBrowse         = 0x04
)

// Config holds the tunable policy knobs of the AVRCP controller core.
type Config struct {
	// MaxConnections is the maximum number of simultaneously
	// connected devices.
	MaxConnections int

	// VolumeFixed marks the local output as having no adjustable
	// volume; absolute volume commands are then acknowledged at
	// full scale and never applied.
	VolumeFixed bool

	CommandTimeout   time.Duration
	AbsVolumeTimeout time.Duration
}

// withDefaults fills unset fields with their defaults.
func (c Config) withDefaults() Config {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 1
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.AbsVolumeTimeout <= 0 {
		c.AbsVolumeTimeout = DefaultAbsVolumeTimeout
	}

	return c
}

// machineHost is what a state machine needs from its owning registry:
// state change notifications and browse/media/volume fan-out.
type machineHost interface {
	// ConnectionStateChanged is invoked once per connection state
	// broadcast.
	ConnectionStateChanged(device bluetooth.MacAddress, prev, next ConnectionState)

	// FolderListChanged reports that the cached contents of a browse
	// node changed; items is the number of children fetched so far.
	FolderListChanged(device bluetooth.MacAddress, id string, items int)

	// MediaChanged reports a track metadata or playback status change
	// on the addressed player.
	MediaChanged(device bluetooth.MacAddress, data bluetooth.MediaData)

	// VolumeChanged reports an applied absolute volume change, as a
	// fraction of AbsVolBase.
	VolumeChanged(device bluetooth.MacAddress, percent int)
}

// StateMachine is the per-device AVRCP controller state machine. All
// of its mutable fields are owned by the single goroutine draining the
// mailbox; external callers interact with it only through posted
// messages and the atomically published state.
type StateMachine struct {
	device bluetooth.MacAddress
	native NativeInterface
	audio  AudioSystem
	host   machineHost
	cfg    Config
	log    *slog.Logger

	mailbox chan message
	quit    chan struct{}

	published *atomic.Int32

	// Owned by the run goroutine.
	state     State
	prevState State
	deferred  []message

	tree             *BrowseTree
	availablePlayers map[int]*Player
	addressedPlayer  *Player
	addressedID      int
	remoteFeatures   int
	browseConnected  bool

	// Absolute volume bookkeeping. Local volume changes caused by a
	// remote command are ignored until the counter drains or the
	// abs-volume timer fires.
	volumeNotificationsToIgnore int
	prevPercentVolume           int
	absVolNotificationRequested bool
	notificationLabel           int
	firstAbsVolCommandSeen      bool

	// Browse sub-state bookkeeping.
	abort      bool
	browseNode *BrowseNode
	nextStep   *BrowseNode

	// Play sub-state bookkeeping.
	playItemUID    string
	playItemScope  int
	addrPlayerNode string

	// heldKey is a fast-forward or rewind key held down by a
	// pass-through press; it is released before the next command.
	heldKey int

	cmdTimer    timers.Handle
	absVolTimer timers.Handle
}

// newStateMachine creates a state machine for the device. The machine
// processes no messages until start is called.
func newStateMachine(device bluetooth.MacAddress, native NativeInterface,
	audio AudioSystem, host machineHost, cfg Config, log *slog.Logger) *StateMachine {

	sm := &StateMachine{
		device:            device,
		native:            native,
		audio:             audio,
		host:              host,
		cfg:               cfg.withDefaults(),
		log:               log.With("profile", "avrcp", "device", device.String()),
		mailbox:           make(chan message, 64),
		quit:              make(chan struct{}),
		published:         atomic.NewInt32(int32(StateDisconnected)),
		state:             StateDisconnected,
		prevState:         StateDisconnected,
		tree:              NewBrowseTree(),
		availablePlayers:  make(map[int]*Player),
		addressedPlayer:   newDefaultPlayer(),
		addressedID:       InvalidPlayerID,
		prevPercentVolume: -1,
		heldKey:           -1,
	}

	return sm
}

// start launches the mailbox goroutine.
func (sm *StateMachine) start() {
	go sm.run()
}

// stop terminates the run goroutine. Pending mailbox messages are dropped.
func (sm *StateMachine) stop() {
	close(sm.quit)
	sm.cmdTimer.Stop()
	sm.absVolTimer.Stop()
}

func (sm *StateMachine) run() {
	for {
		select {
		case msg := <-sm.mailbox:
			sm.handle(msg)
		case <-sm.quit:
			return
		}
	}
}

// post delivers a message to the mailbox, giving up if the machine
// has been stopped.
func (sm *StateMachine) post(msg message) {
	select {
	case sm.mailbox <- msg:
	case <-sm.quit:
	}
}

// Device returns the remote address this machine tracks.
func (sm *StateMachine) Device() bluetooth.MacAddress {
	return sm.device
}

// ConnectionState returns the externally visible connection state.
func (sm *StateMachine) ConnectionState() ConnectionState {
	return State(sm.published.Load()).connectionState()
}

// Disconnect requests a disconnection from the remote.
func (sm *StateMachine) Disconnect() { sm.post(disconnectMsg{}) }

// SendPassThrough sends a pass-through key event to the remote.
func (sm *StateMachine) SendPassThrough(keyCode, keyState int) {
	sm.post(passThroughMsg{keyCode: keyCode, keyState: keyState})
}

// SendGroupNavigation sends a group navigation key event to the remote.
func (sm *StateMachine) SendGroupNavigation(keyCode, keyState int) {
	sm.post(groupNavigationMsg{keyCode: keyCode, keyState: keyState})
}

// SetPlayerSetting requests a player application setting change, such
// as the repeat or shuffle mode.
func (sm *StateMachine) SetPlayerSetting(setting, value int) {
	sm.post(playerSettingMsg{setting: setting, value: value})
}

// RequestContents requests the contents of a browse node. Results are
// reported through folder list change notifications as pages arrive.
func (sm *StateMachine) RequestContents(id string) {
	sm.post(getFolderListMsg{id: id})
}

// PlayItem requests playback of a browsed item, switching the
// addressed player first when required.
func (sm *StateMachine) PlayItem(uid string) {
	sm.post(playItemMsg{uid: uid, scope: -1})
}

// StackEvent delivers a native stack event for this device.
func (sm *StateMachine) StackEvent(event StackEvent) {
	sm.post(stackEventMsg{event: event})
}

// handle dispatches one mailbox message in the current state.
func (sm *StateMachine) handle(msg message) {
	if ev, ok := msg.(stackEventMsg); ok && ev.event.Device != sm.device {
		// The registry routes events by address; a mismatch here means
		// the bookkeeping is corrupted.
		panic("avrcp: stack event for device " + ev.event.Device.String() +
			" delivered to machine for " + sm.device.String())
	}

	switch sm.state {
	case StateDisconnected:
		sm.disconnectedHandle(msg)
	case StateConnecting:
		sm.connectingHandle(msg)
	case StateConnected:
		sm.connectedHandle(msg)
	case StateGetFolderList:
		sm.getFolderListHandle(msg)
	case StateSetAddressedPlayer:
		sm.setAddressedPlayerHandle(msg)
	case StateDisconnecting:
		sm.disconnectingHandle(msg)
	}
}

// transitionTo moves the machine to next, validating the edge against
// the transition table, broadcasting the resulting delta exactly once
// and replaying deferred messages.
func (sm *StateMachine) transitionTo(next State) {
	sm.exitState()

	sm.prevState = sm.state
	sm.state = next
	sm.published.Store(int32(next))

	assertValidTransition(sm.prevState, next, sm.device.String())
	sm.enterState()

	// Deferred messages are replayed in arrival order once the new
	// state has been entered; a message may be deferred again if the
	// machine lands in another transitional state.
	pending := sm.deferred
	sm.deferred = nil
	for _, msg := range pending {
		sm.handle(msg)
	}
}

func (sm *StateMachine) exitState() {
	switch sm.state {
	case StateGetFolderList:
		sm.cmdTimer.Stop()
		sm.browseNode = nil
		sm.nextStep = nil
	case StateSetAddressedPlayer, StateDisconnecting:
		sm.cmdTimer.Stop()
	}
}

func (sm *StateMachine) enterState() {
	switch sm.state {
	case StateDisconnected:
		sm.heldKey = -1
		sm.browseConnected = false
		sm.broadcastConnectionState()

	case StateConnecting:
		sm.resetSession()
		sm.broadcastConnectionState()

	case StateConnected:
		sm.broadcastConnectionState()
		if sm.prevState == StateConnecting {
			if err := sm.native.GetPlaybackState(sm.device); err != nil {
				sm.log.Warn("playback state query failed", "error", err)
			}
		}

	case StateGetFolderList:
		sm.abort = false
		sm.cmdTimer.Arm(sm.cfg.CommandTimeout, sm.commandTimedOut)
		if sm.browseNode == nil {
			sm.transitionTo(StateConnected)
			return
		}
		sm.navigateToFolderOrRetrieve(sm.browseNode)

	case StateSetAddressedPlayer:
		sm.cmdTimer.Arm(sm.cfg.CommandTimeout, sm.commandTimedOut)

	case StateDisconnecting:
		sm.broadcastConnectionState()
		sm.cmdTimer.Arm(sm.cfg.CommandTimeout, sm.commandTimedOut)
	}
}

// resetSession discards all state learned from a previous connection.
func (sm *StateMachine) resetSession() {
	sm.tree = NewBrowseTree()
	sm.availablePlayers = make(map[int]*Player)
	sm.addressedPlayer = newDefaultPlayer()
	sm.addressedID = InvalidPlayerID
	sm.remoteFeatures = 0
	sm.volumeNotificationsToIgnore = 0
	sm.prevPercentVolume = -1
	sm.absVolNotificationRequested = false
	sm.firstAbsVolCommandSeen = false
	sm.heldKey = -1
}

func (sm *StateMachine) commandTimedOut() {
	sm.post(timeoutMsg{kind: timeoutCommand})
}

func (sm *StateMachine) absVolumeTimedOut() {
	sm.post(timeoutMsg{kind: timeoutAbsVolume})
}

// broadcastConnectionState notifies the host when the externally
// visible connection state changed. Moves between Connected and its
// sub-states are invisible to observers.
func (sm *StateMachine) broadcastConnectionState() {
	prev := sm.prevState.connectionState()
	next := sm.state.connectionState()
	if prev == next {
		return
	}

	sm.log.Info("connection state changed", "previous", prev.String(), "state", next.String())
	sm.host.ConnectionStateChanged(sm.device, prev, next)
}

func (sm *StateMachine) broadcastFolderList(node *BrowseNode) {
	sm.host.FolderListChanged(sm.device, node.ID(), node.ChildrenCount())
}

func (sm *StateMachine) broadcastMedia() {
	sm.host.MediaChanged(sm.device, sm.addressedPlayer.MediaData(sm.device))
}

func (sm *StateMachine) deferMessage(msg message) {
	sm.deferred = append(sm.deferred, msg)
}

// ---- Disconnected ----

func (sm *StateMachine) disconnectedHandle(msg message) {
	switch m := msg.(type) {
	case stackEventMsg:
		if m.event.Kind != StackEventConnectionStateChanged {
			sm.log.Debug("dropping stack event while disconnected", "event", m.event.String())
			return
		}

		switch m.event.Int1 {
		case PeerConnecting:
			sm.transitionTo(StateConnecting)
		case PeerConnected:
			sm.transitionTo(StateConnecting)
			sm.transitionTo(StateConnected)
		}

	case disconnectMsg:
		// Already disconnected.

	default:
		sm.log.Debug("dropping message while disconnected")
	}
}

// ---- Connecting ----

func (sm *StateMachine) connectingHandle(msg message) {
	switch m := msg.(type) {
	case stackEventMsg:
		switch m.event.Kind {
		case StackEventConnectionStateChanged:
			switch m.event.Int1 {
			case PeerConnected:
				sm.transitionTo(StateConnected)
			case PeerDisconnected:
				sm.transitionTo(StateDisconnected)
			}

		case StackEventBrowseConnectionStateChanged:
			sm.browseConnected = m.event.Int1 == 1

		case StackEventRcFeatures:
			sm.remoteFeatures = m.event.Int1

		default:
			sm.deferMessage(msg)
		}

	default:
		sm.deferMessage(msg)
	}
}

// ---- Connected ----

func (sm *StateMachine) connectedHandle(msg message) {
	switch m := msg.(type) {
	case passThroughMsg:
		sm.processPassThrough(m)

	case groupNavigationMsg:
		sm.releaseHeldKey()
		if err := sm.native.SendGroupNavigationCommand(sm.device, m.keyCode, m.keyState); err != nil {
			sm.log.Warn("group navigation failed", "error", err)
		}

	case playerSettingMsg:
		sm.releaseHeldKey()
		if err := sm.native.SetPlayerApplicationSetting(sm.device, m.setting, m.value); err != nil {
			sm.log.Warn("player setting change failed", "error", err)
		}

	case getFolderListMsg:
		sm.releaseHeldKey()
		sm.processGetFolderList(m.id)

	case playItemMsg:
		sm.releaseHeldKey()
		sm.processPlayItem(m)

	case disconnectMsg:
		sm.releaseHeldKey()
		if err := sm.native.Disconnect(sm.device); err != nil {
			sm.log.Warn("disconnect failed", "error", err)
		}
		sm.transitionTo(StateDisconnecting)

	case timeoutMsg:
		if m.kind == timeoutAbsVolume {
			sm.volumeNotificationsToIgnore = 0
		}

	case stackEventMsg:
		sm.connectedStackEvent(m.event)
	}
}

// processGetFolderList starts a browse of the node when its contents
// are stale; cached contents are reported immediately.
func (sm *StateMachine) processGetFolderList(id string) {
	node := sm.tree.Find(id)
	if node == nil {
		sm.log.Warn("browse request for unknown node", "id", id)
		return
	}

	if node.Cached() {
		sm.broadcastFolderList(node)
		return
	}

	sm.browseNode = node
	sm.transitionTo(StateGetFolderList)
}

// processPlayItem plays a browsed item directly when its player is
// already addressed; otherwise the addressed player is switched first.
func (sm *StateMachine) processPlayItem(m playItemMsg) {
	node := sm.tree.Find(m.uid)
	if node == nil {
		sm.log.Warn("play request for unknown node", "uid", m.uid)
		return
	}

	scope := m.scope
	if scope < 0 {
		scope = ScopeVFS
		if parent := node.Parent(); parent != nil && parent.IsNowPlaying() {
			scope = ScopeNowPlaying
		}
	}

	browsed := sm.tree.BrowsedPlayer()
	addressed := sm.tree.AddressedPlayer()

	if browsed == nil || browsed == addressed || scope == ScopeNowPlaying {
		if err := sm.native.PlayItem(sm.device, scope, node.FolderUID()); err != nil {
			sm.log.Warn("play item failed", "error", err)
		}
		return
	}

	if err := sm.native.SetAddressedPlayer(sm.device, browsed.PlayerID()); err != nil {
		sm.log.Warn("set addressed player failed", "error", err)
		return
	}

	sm.addrPlayerNode = browsed.ID()
	sm.playItemUID = node.FolderUID()
	sm.playItemScope = scope
	sm.transitionTo(StateSetAddressedPlayer)
}

// connectedStackEvent handles the stack events the Connected behavior
// owns. The sub-states delegate here so that volume, track and
// connection events are never stalled by an in-flight browse.
func (sm *StateMachine) connectedStackEvent(event StackEvent) {
	switch event.Kind {
	case StackEventConnectionStateChanged:
		if event.Int1 == PeerDisconnected {
			sm.transitionTo(StateDisconnected)
		}

	case StackEventBrowseConnectionStateChanged:
		sm.browseConnected = event.Int1 == 1

	case StackEventRcFeatures:
		sm.remoteFeatures = event.Int1

	case StackEventSetAbsVolume:
		sm.processSetAbsVolume(event.Int1, event.Int2)

	case StackEventRegisterAbsVolNotification:
		sm.processRegisterAbsVolNotification(event.Int1)

	case StackEventVolumeChanged:
		sm.processLocalVolumeChanged()

	case StackEventTrackChanged:
		if event.Track == nil {
			return
		}
		sm.addressedPlayer.UpdateTrack(*event.Track)
		sm.broadcastMedia()

	case StackEventPlayPositionChanged:
		if event.Int1 != bluetooth.PlayTimeUnknown {
			sm.addressedPlayer.SetPlayTime(int64(event.Int1))
		}
		sm.broadcastMedia()

	case StackEventPlayStatusChanged:
		sm.addressedPlayer.SetPlayStatus(event.Int1)
		sm.broadcastMedia()

	case StackEventAddressedPlayerChanged:
		sm.processAddressedPlayerChanged(event.Int1)

	case StackEventNowPlayingContentChanged:
		sm.tree.NowPlaying().SetCached(false)
		sm.handle(getFolderListMsg{id: NodeIDNowPlaying})

	case StackEventSetAddressedPlayer:
		// A set-addressed-player confirmation with no play pending.

	default:
		sm.log.Debug("unhandled stack event", "event", event.String())
	}
}

// processAddressedPlayerChanged updates the addressed player from the
// known player registry. An unknown player id invalidates the player
// list so it is fetched again.
func (sm *StateMachine) processAddressedPlayerChanged(id int) {
	sm.addressedID = id
	if player, ok := sm.availablePlayers[id]; ok {
		sm.addressedPlayer = player
	} else {
		sm.tree.Root().SetCached(false)
		sm.tree.SetAddressedPlayer(playerNodeID(id))
	}

	// A pending play action waiting on the addressed player switch
	// resumes here.
	sm.handle(stackEventMsg{event: StackEvent{
		Kind:   StackEventSetAddressedPlayer,
		Device: sm.device,
	}})
}

// ---- Absolute volume ----

// processSetAbsVolume applies an absolute volume command from the
// remote. The very first command is answered with the current volume
// without applying it, since the remote cannot yet know the local
// scale. Local volume notifications caused by the change are ignored
// until the abs-volume timer drains them.
func (sm *StateMachine) processSetAbsVolume(absVol, label int) {
	if sm.cfg.VolumeFixed {
		if err := sm.native.SendAbsVolumeResponse(sm.device, AbsVolBase, label); err != nil {
			sm.log.Warn("abs volume response failed", "error", err)
		}
		return
	}

	maxVolume := sm.audio.MaxVolume()
	currIndex := sm.audio.Volume()

	if !sm.firstAbsVolCommandSeen {
		sm.firstAbsVolCommandSeen = true
		absVol = currIndex * AbsVolBase / maxVolume
	} else {
		newIndex := (absVol*maxVolume + AbsVolBase/2) / AbsVolBase
		if newIndex != currIndex {
			sm.volumeNotificationsToIgnore++
			sm.absVolTimer.Arm(sm.cfg.AbsVolumeTimeout, sm.absVolumeTimedOut)
			sm.audio.SetVolume(newIndex)
			sm.host.VolumeChanged(sm.device, absVol)
		}
	}

	if err := sm.native.SendAbsVolumeResponse(sm.device, absVol, label); err != nil {
		sm.log.Warn("abs volume response failed", "error", err)
	}
}

// processRegisterAbsVolNotification answers a volume notification
// registration with an interim response carrying the current volume.
func (sm *StateMachine) processRegisterAbsVolNotification(label int) {
	sm.notificationLabel = label
	sm.absVolNotificationRequested = true

	if err := sm.native.SendRegisterAbsVolumeResponse(sm.device,
		NotificationInterim, sm.volumePercentage(), label); err != nil {
		sm.log.Warn("abs volume notification response failed", "error", err)
	}
}

// processLocalVolumeChanged reports a local volume change to the
// remote, unless the change was caused by the remote itself.
func (sm *StateMachine) processLocalVolumeChanged() {
	if sm.volumeNotificationsToIgnore > 0 {
		sm.volumeNotificationsToIgnore--
		if sm.volumeNotificationsToIgnore == 0 {
			sm.absVolTimer.Stop()
		}
		return
	}

	if !sm.absVolNotificationRequested {
		return
	}

	percent := sm.volumePercentage()
	if percent == sm.prevPercentVolume {
		return
	}

	if err := sm.native.SendRegisterAbsVolumeResponse(sm.device,
		NotificationChanged, percent, sm.notificationLabel); err != nil {
		sm.log.Warn("abs volume notification response failed", "error", err)
	}

	sm.prevPercentVolume = percent
	sm.absVolNotificationRequested = false
}

// volumePercentage returns the local volume as a fraction of AbsVolBase.
func (sm *StateMachine) volumePercentage() int {
	if sm.cfg.VolumeFixed {
		return AbsVolBase
	}

	return sm.audio.Volume() * AbsVolBase / sm.audio.MaxVolume()
}

// ---- Pass-through ----

// processPassThrough forwards a key event. A fast-forward or rewind
// press is held down on the remote until its release arrives or any
// other command preempts it.
func (sm *StateMachine) processPassThrough(m passThroughMsg) {
	if sm.heldKey != -1 && !(m.keyCode == sm.heldKey && m.keyState == KeyStateReleased) {
		sm.releaseHeldKey()
	}

	if err := sm.native.SendPassThroughCommand(sm.device, m.keyCode, m.keyState); err != nil {
		sm.log.Warn("pass-through failed", "error", err)
		return
	}

	if m.keyState == KeyStatePressed && (m.keyCode == KeyFastFwd || m.keyCode == KeyRewind) {
		sm.heldKey = m.keyCode
	} else if m.keyState == KeyStateReleased && m.keyCode == sm.heldKey {
		sm.heldKey = -1
	}
}

// releaseHeldKey releases a held fast-forward or rewind key, if any.
func (sm *StateMachine) releaseHeldKey() {
	if sm.heldKey == -1 {
		return
	}

	if err := sm.native.SendPassThroughCommand(sm.device, sm.heldKey, KeyStateReleased); err != nil {
		sm.log.Warn("pass-through release failed", "error", err)
	}
	sm.heldKey = -1
}

// ---- GetFolderList ----

// getFolderListHandle runs the paged retrieval of a browse node.
// Volume, track and connection events are delegated to the Connected
// behavior; new browse or play requests abort the fetch and are
// replayed once it finishes.
func (sm *StateMachine) getFolderListHandle(msg message) {
	switch m := msg.(type) {
	case stackEventMsg:
		switch m.event.Kind {
		case StackEventGetFolderItems:
			sm.processFolderItems(m.event.Items)

		case StackEventGetFolderItemsOutOfRange:
			// The remote has no more items than what was already
			// delivered.
			sm.browseNode.SetCached(true)
			sm.broadcastFolderList(sm.browseNode)
			sm.transitionTo(StateConnected)

		case StackEventFolderPath:
			sm.tree.SetCurrentFolder(sm.nextStep.ID())
			sm.tree.CurrentFolder().SetExpectedChildren(m.event.Int1)

			if sm.abort {
				sm.transitionTo(StateConnected)
				return
			}

			sm.cmdTimer.Arm(sm.cfg.CommandTimeout, sm.commandTimedOut)
			sm.navigateToFolderOrRetrieve(sm.browseNode)

		case StackEventSetBrowsedPlayer:
			sm.tree.SetBrowsedPlayer(sm.nextStep.ID(), m.event.Int1, m.event.Int2)
			sm.cmdTimer.Arm(sm.cfg.CommandTimeout, sm.commandTimedOut)
			sm.navigateToFolderOrRetrieve(sm.browseNode)

		case StackEventGetPlayerItems:
			sm.processPlayerItems(m.event.Players)
			sm.transitionTo(StateConnected)

		default:
			sm.connectedStackEvent(m.event)
		}

	case timeoutMsg:
		switch m.kind {
		case timeoutCommand:
			// Report whatever was fetched so far instead of stalling
			// the requester.
			sm.broadcastFolderList(sm.browseNode)
			sm.transitionTo(StateConnected)
		case timeoutAbsVolume:
			sm.volumeNotificationsToIgnore = 0
		}

	case passThroughMsg:
		sm.processPassThrough(m)

	case groupNavigationMsg:
		if err := sm.native.SendGroupNavigationCommand(sm.device, m.keyCode, m.keyState); err != nil {
			sm.log.Warn("group navigation failed", "error", err)
		}

	case getFolderListMsg:
		if sm.browseNode.ID() == m.id {
			return
		}
		if target := sm.tree.Find(m.id); target != nil &&
			shouldAbort(sm.browseNode.Scope(), target.Scope()) {
			sm.abort = true
		}
		sm.deferMessage(msg)

	case playItemMsg:
		sm.abort = true
		sm.deferMessage(msg)

	default:
		sm.deferMessage(msg)
	}
}

// shouldAbort reports whether a fetch of newScope cannot proceed while
// a fetch in currentScope is still running: the same scope shares
// pagination state, and the player list invalidates any folder fetch.
func shouldAbort(currentScope, newScope int) bool {
	return currentScope == newScope ||
		(currentScope == ScopeVFS && newScope == ScopePlayerList)
}

// processFolderItems accumulates one page of a folder listing and
// fetches the next page until the expected count is reached. An empty
// page terminates the fetch so a misbehaving remote cannot stall it.
func (sm *StateMachine) processFolderItems(items []BrowseItem) {
	// Partial contents are published per page so the requester does
	// not wait for the full listing.
	sm.browseNode.AddItems(items)
	sm.broadcastFolderList(sm.browseNode)

	if sm.browseNode.ChildrenCount() >= sm.browseNode.ExpectedChildren() ||
		len(items) == 0 || sm.abort {
		sm.browseNode.SetCached(true)
		sm.transitionTo(StateConnected)
		return
	}

	sm.fetchContents(sm.browseNode)
	sm.cmdTimer.Arm(sm.cfg.CommandTimeout, sm.commandTimedOut)
}

// processPlayerItems rebuilds the player registry from a player list
// response, unless a valid list is already cached.
func (sm *StateMachine) processPlayerItems(players []PlayerInfo) {
	root := sm.tree.Root()
	if root.Cached() {
		return
	}

	sm.availablePlayers = make(map[int]*Player, len(players))
	for _, info := range players {
		sm.availablePlayers[info.ID] = newPlayer(info)
	}
	if player, ok := sm.availablePlayers[sm.addressedID]; ok {
		sm.addressedPlayer = player
	}

	root.AddPlayers(players)
	sm.tree.SetCurrentFolder(NodeIDRoot)
	root.SetExpectedChildren(len(players))
	root.SetCached(true)
	sm.broadcastFolderList(root)
}

// fetchContents requests the next page of the node's contents from
// the remote.
func (sm *StateMachine) fetchContents(target *BrowseNode) {
	var err error

	switch target.Scope() {
	case ScopePlayerList:
		err = sm.native.GetPlayerList(sm.device, 0, 255)

	case ScopeVFS:
		start, end := nextPageRange(target)
		err = sm.native.GetFolderList(sm.device, start, end)

	case ScopeNowPlaying:
		start, end := nextPageRange(target)
		err = sm.native.GetNowPlayingList(sm.device, start, end)

	default:
		sm.log.Error("cannot fetch contents in scope", "scope", target.Scope())
		return
	}

	if err != nil {
		sm.log.Warn("content fetch failed", "error", err)
	}
}

// nextPageRange computes the inclusive index range of the node's next
// listing page; the last valid index is the expected count minus one.
func nextPageRange(target *BrowseNode) (int, int) {
	start := target.ChildrenCount()
	end := min(target.ExpectedChildren()-1, start+FolderItemsPageSize-1)
	if end < start {
		end = start
	}

	return start, end
}

// navigateToFolderOrRetrieve makes one hop toward the target node:
// fetch its contents when it is directly reachable, otherwise set the
// browsed player or change the folder path and wait for the response.
func (sm *StateMachine) navigateToFolderOrRetrieve(target *BrowseNode) {
	sm.nextStep = sm.tree.NextStepToFolder(target)

	switch {
	case sm.nextStep == nil:
		// The target is no longer reachable; give up with whatever
		// was fetched.
		sm.handle(timeoutMsg{kind: timeoutCommand})

	case target == sm.tree.NowPlaying(), target == sm.tree.Root(),
		sm.nextStep == sm.tree.CurrentFolder():
		sm.fetchContents(target)

	case sm.nextStep.IsPlayer():
		if sm.nextStep.Browsable() {
			if err := sm.native.SetBrowsedPlayer(sm.device, sm.nextStep.PlayerID()); err != nil {
				sm.log.Warn("set browsed player failed", "error", err)
			}
			return
		}

		// The player cannot be browsed; report it empty.
		sm.nextStep.SetCached(true)
		sm.broadcastFolderList(sm.nextStep)
		sm.transitionTo(StateConnected)

	case sm.nextStep == sm.tree.NavigateUp():
		leaving := sm.tree.CurrentFolder()
		sm.nextStep = leaving.Parent()
		leaving.SetCached(false)

		if err := sm.native.ChangeFolderPath(sm.device, FolderUp, ""); err != nil {
			sm.log.Warn("folder path change failed", "error", err)
		}

	default:
		if err := sm.native.ChangeFolderPath(sm.device, FolderDown, sm.nextStep.FolderUID()); err != nil {
			sm.log.Warn("folder path change failed", "error", err)
		}
	}
}

// ---- SetAddressedPlayer ----

// setAddressedPlayerHandle waits for the addressed player switch to
// complete, then plays the pending item.
func (sm *StateMachine) setAddressedPlayerHandle(msg message) {
	switch m := msg.(type) {
	case stackEventMsg:
		if m.event.Kind != StackEventSetAddressedPlayer {
			sm.connectedStackEvent(m.event)
			return
		}

		sm.tree.SetAddressedPlayer(sm.addrPlayerNode)
		if err := sm.native.PlayItem(sm.device, sm.playItemScope, sm.playItemUID); err != nil {
			sm.log.Warn("play item failed", "error", err)
		}
		sm.transitionTo(StateConnected)

	case timeoutMsg:
		switch m.kind {
		case timeoutCommand:
			sm.transitionTo(StateConnected)
		case timeoutAbsVolume:
			sm.volumeNotificationsToIgnore = 0
		}

	case passThroughMsg:
		sm.processPassThrough(m)

	case groupNavigationMsg:
		if err := sm.native.SendGroupNavigationCommand(sm.device, m.keyCode, m.keyState); err != nil {
			sm.log.Warn("group navigation failed", "error", err)
		}

	default:
		sm.deferMessage(msg)
	}
}

// ---- Disconnecting ----

func (sm *StateMachine) disconnectingHandle(msg message) {
	switch m := msg.(type) {
	case stackEventMsg:
		switch m.event.Kind {
		case StackEventConnectionStateChanged:
			if m.event.Int1 == PeerDisconnected {
				sm.transitionTo(StateDisconnected)
			}
		default:
			sm.log.Debug("dropping stack event while disconnecting", "event", m.event.String())
		}

	case timeoutMsg:
		if m.kind == timeoutCommand {
			// The remote never confirmed; consider the link gone.
			sm.transitionTo(StateDisconnected)
		}

	case disconnectMsg:
		// Already disconnecting.

	default:
		sm.deferMessage(msg)
	}
}

// playerNodeID returns the tree node identifier of a player id.
func playerNodeID(id int) string {
	return playerPrefix + strconv.Itoa(id)
}
