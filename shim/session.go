package shim

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
	"github.com/bluetuith-org/btprofiles/api/errorkinds"
	"github.com/bluetuith-org/btprofiles/avrcp"
	"github.com/bluetuith-org/btprofiles/hfp"
)

// HfpSink receives decoded HFP stack events.
type HfpSink interface {
	StackEvent(event hfp.StackEvent)
}

// AvrcpSink receives decoded AVRCP stack events.
type AvrcpSink interface {
	StackEvent(event avrcp.StackEvent)
}

// Config holds the helper process and transport settings.
type Config struct {
	// ExecutablePath is the path of the helper binary to spawn. When
	// empty, an already running helper is expected on the socket.
	ExecutablePath string

	// SocketPath is the unix socket the helper serves on. When empty,
	// a per-user default under the cache directory is used.
	SocketPath string
}

const socketName = "helper.sock"

// dialAttempts paces the wait for a freshly spawned helper to bring
// its socket up.
const (
	dialAttempts = 20
	dialInterval = 100 * time.Millisecond
)

// Session is a connected session with a running helper process. The
// helper owns the native Bluetooth stack; the session exchanges
// JSON-lines commands and events with it over a unix socket and fans
// inbound stack events out to the profile services.
type Session struct {
	cfg Config
	log *slog.Logger

	hfpSink   HfpSink
	avrcpSink AvrcpSink
	mixer     *AudioMixer

	conn   net.Conn
	helper *exec.Cmd

	sessionClosed atomic.Bool
	cancel        context.CancelFunc
	group         *errgroup.Group

	id         *xsync.Counter
	requestMap *xsync.MapOf[int64, chan CommandResponse]

	sync.Mutex
}

// NewSession creates a stopped session. Start must be called before
// any command is issued.
func NewSession(cfg Config, log *slog.Logger) *Session {
	s := &Session{
		cfg: cfg,
		log: log.With("component", "shim"),
	}
	s.sessionClosed.Store(true)

	return s
}

// Start spawns the helper when configured, connects to its socket and
// begins routing inbound events to the provided sinks.
func (s *Session) Start(hfpSink HfpSink, avrcpSink AvrcpSink) error {
	s.hfpSink = hfpSink
	s.avrcpSink = avrcpSink

	socketPath := s.cfg.SocketPath
	if socketPath == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return fault.Wrap(err,
				fctx.With(context.Background(), "error_at", "socket-dir"),
				ftag.With(ftag.Internal),
				fmsg.With("Cannot find socket directory"),
			)
		}

		socketPath = path.Join(dir, "btprofiled", socketName)
	}

	ctx := s.reset(false)

	var initialized bool
	defer func() {
		if !initialized {
			s.Stop()
		}
	}()

	if s.cfg.ExecutablePath != "" {
		if err := s.spawnHelper(socketPath); err != nil {
			return fault.Wrap(err,
				fctx.With(context.Background(), "error_at", "helper-spawn"),
				ftag.With(ftag.Internal),
				fmsg.With("Cannot start the helper process"),
			)
		}
	}

	if err := s.startListener(ctx, socketPath); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "listener-shim"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot start listener on provided socket"),
		)
	}

	version, err := HelperVersion().ExecuteWith(s.executor)
	if err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "helper-version"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot query the helper version"),
		)
	}
	s.log.Info("helper connected", "version", version, "socket", socketPath)

	if s.mixer != nil {
		s.mixer.refresh()
	}

	initialized = true

	return nil
}

// Stop terminates the session with the helper.
func (s *Session) Stop() error {
	if s.sessionClosed.Load() {
		return errorkinds.ErrShimNotStarted
	}

	s.reset(true)

	return nil
}

// Wait blocks until the listener exits.
func (s *Session) Wait() error {
	if s.group == nil {
		return errorkinds.ErrShimNotStarted
	}

	return s.group.Wait()
}

// Hfp returns the HFP command side of the helper link.
func (s *Session) Hfp() hfp.NativeInterface {
	return &hfpNative{s}
}

// Avrcp returns the AVRCP command side of the helper link.
func (s *Session) Avrcp() avrcp.NativeInterface {
	return &avrcpNative{s}
}

// Telephony returns the local telephony collaborator backed by the helper.
func (s *Session) Telephony() hfp.Telephony {
	return &telephony{s}
}

// Audio returns the local audio mixer backed by the helper. The mixer
// reports maxVolume as its top volume index.
func (s *Session) Audio(maxVolume int) *AudioMixer {
	s.Lock()
	defer s.Unlock()

	if s.mixer == nil {
		s.mixer = newAudioMixer(s, maxVolume)
	}

	return s.mixer
}

// spawnHelper launches the helper binary serving the socket.
func (s *Session) spawnHelper(socketPath string) error {
	if err := os.MkdirAll(path.Dir(socketPath), 0o700); err != nil {
		return err
	}

	helper := exec.Command(s.cfg.ExecutablePath, SocketOption.String(), socketPath)
	helper.Stderr = os.Stderr
	if err := helper.Start(); err != nil {
		return err
	}

	s.helper = helper

	return nil
}

// startListener connects to the socket and starts the listener.
func (s *Session) startListener(ctx context.Context, socketPath string) error {
	var socket net.Conn
	var err error

	// A freshly spawned helper needs a moment to bring the socket up.
	for attempt := 0; attempt < dialAttempts; attempt++ {
		socket, err = net.Dial("unix", socketPath)
		if err == nil {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dialInterval):
		}
	}
	if err != nil {
		return err
	}

	s.conn = socket
	s.group.Go(func() error {
		s.listen(ctx)
		return nil
	})

	return nil
}

// listen reads the socket and routes command replies and events.
func (s *Session) listen(ctx context.Context) {
	sendData := func(c chan CommandResponse, m CommandResponse) {
		select {
		case <-ctx.Done():
			close(c)
		case c <- m:
			close(c)
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.sessionClosed.Load() {
			return
		}

		scanner := bufio.NewScanner(s.conn)
		scanner.Split(bufio.ScanLines)

		for scanner.Scan() {
			var response struct {
				CommandResponse
				serverEvent
			}

			if err := unmarshalJSON(scanner.Bytes(), &response); err != nil {
				s.handleListenerError(err, false)
				continue
			}

			if response.EventId > eventNone {
				go s.handleListenerEvent(response.serverEvent)
				continue
			}

			replyChan, ok := s.requestMap.LoadAndDelete(int64(response.RequestId))
			if ok {
				sendData(replyChan, response.CommandResponse)
			}
		}

		s.handleListenerError(scanner.Err(), true)
		return
	}
}

// handleListenerEvent decodes one helper event and fans it out.
func (s *Session) handleListenerEvent(ev serverEvent) {
	switch ev.EventId {
	case eventError:
		var wire CommandError
		if err := unmarshalJSON(ev.Event, &wire); err != nil {
			s.publishError(err)
			return
		}

		s.publishError(wire)

	case eventHfp:
		event, err := decodeHfpEvent(ev.Event)
		if err != nil {
			s.publishError(err)
			return
		}

		s.hfpSink.StackEvent(event)

	case eventAvrcp:
		event, err := decodeAvrcpEvent(ev.Event)
		if err != nil {
			s.publishError(err)
			return
		}

		s.avrcpSink.StackEvent(event)

	case eventVolume:
		wire, address, err := decodeVolumeEvent(ev.Event)
		if err != nil {
			s.publishError(err)
			return
		}

		if s.mixer != nil {
			s.mixer.observe(wire.Volume)
		}

		// The controller core decides whether the change needs to be
		// reported to the remote.
		s.avrcpSink.StackEvent(avrcp.StackEvent{
			Kind:   avrcp.StackEventVolumeChanged,
			Device: address,
		})

	default:
		s.log.Debug("unknown helper event stream", "event_id", ev.EventId)
	}
}

// handleListenerError reports a listener failure. If stop is set, the
// failure is unrecoverable and the session is torn down.
func (s *Session) handleListenerError(err error, stop bool) {
	if err != nil {
		s.publishError(err)
	}

	if stop && !s.sessionClosed.Load() {
		s.Stop()
	}
}

// publishError pushes an error onto the error event stream.
func (s *Session) publishError(err error) {
	s.log.Warn("helper link error", "error", err)
	bluetooth.ErrorEvents().PublishAdded(errorkinds.GenericError{Errors: err})
}

// executor forms a request with a unique request ID and sends it to
// the helper. Responses are routed back by the listener.
func (s *Session) executor(params []string) (chan CommandResponse, error) {
	if s.sessionClosed.Load() {
		return nil, errorkinds.ErrShimNotStarted
	}

	s.Lock()
	defer s.Unlock()

	s.id.Inc()
	replyChan := make(chan CommandResponse, 1)
	s.requestMap.Store(s.id.Value(), replyChan)

	command := map[string]any{
		"command":    params,
		"request_id": s.id.Value(),
	}

	commandBytes, err := marshalJSON(command)
	if err != nil {
		return nil, err
	}

	if _, err = s.conn.Write(commandBytes); err != nil {
		return nil, err
	}
	if _, err = s.conn.Write([]byte("\n")); err != nil {
		return nil, err
	}

	return replyChan, nil
}

// execAsync issues a fire-and-forget command: the native interfaces
// must not block on the helper round-trip, so the reply is drained in
// the background and failures surface on the error event stream.
func (s *Session) execAsync(cmd *Command[NoResult]) error {
	replyChan, err := s.executor(cmd.Slice())
	if err != nil {
		return err
	}

	desc := cmd.String()
	go func() {
		select {
		case response, ok := <-replyChan:
			if ok && response.Status == "error" {
				s.log.Warn("helper command failed", "command", desc, "error", response.Error.Error())
				s.publishError(response.Error)
			}
		case <-time.After(CommandReplyTimeout):
			s.log.Warn("helper command reply timed out", "command", desc)
		}
	}()

	return nil
}

// reset resets the state of the session. With isClosed set the socket
// and helper are torn down; otherwise all session internals are
// initialized for a new connection.
func (s *Session) reset(isClosed bool) context.Context {
	s.Lock()
	defer s.Unlock()

	s.sessionClosed.Store(isClosed)
	if isClosed {
		s.cleanup()

		return context.Background()
	}

	s.id = xsync.NewCounter()
	s.requestMap = xsync.NewMapOf[int64, chan CommandResponse]()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	group, _ := errgroup.WithContext(ctx)
	s.group = group

	return ctx
}

// cleanup closes the socket and stops the helper process.
func (s *Session) cleanup() {
	if s.cancel != nil {
		s.cancel()
	}

	if s.conn != nil {
		s.conn.Close()
	}

	if s.helper != nil && s.helper.Process != nil {
		s.helper.Process.Kill()
		s.helper.Wait()
		s.helper = nil
	}
}
