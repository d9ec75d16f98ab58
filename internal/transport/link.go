package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/mixsync/internal/wire"
)

// Handler receives each inbound message on a link.
type Handler func(ctx context.Context, msg wire.Message)

// Link carries messages over one websocket connection. Each message is one
// binary frame holding wire.MarshalMessage output; an empty binary frame is
// a keepalive.
//
// Enqueue may be called from any goroutine. Run owns the connection.
type Link struct {
	id       string
	ws       *websocket.Conn
	settings *Settings
	out      *Queue
	log      *slog.Logger

	// unsent counts enqueued messages not yet written.
	unsent    atomic.Int64
	closeOnce sync.Once
}

// NewLink wraps an established connection. settings may be nil.
func NewLink(id string, ws *websocket.Conn, settings *Settings, logger *slog.Logger) *Link {
	if settings == nil {
		settings = DefaultSettings()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if settings.MaxMessageSize > 0 {
		ws.SetReadLimit(settings.MaxMessageSize)
	}
	return &Link{
		id:       id,
		ws:       ws,
		settings: settings,
		out:      NewQueue(),
		log:      logger.With("link", id),
	}
}

// ID returns the link identifier.
func (l *Link) ID() string {
	return l.id
}

// Enqueue queues msg for sending.
func (l *Link) Enqueue(msg wire.Message) {
	l.unsent.Add(1)
	if !l.out.Push(msg) {
		l.unsent.Add(-1)
	}
}

// Pending returns the number of queued outbound messages.
func (l *Link) Pending() int {
	return l.out.Len()
}

// Run pumps both directions until the connection fails, Close is called
// or ctx is done. Inbound messages are passed to handle in arrival order on
// a single goroutine.
func (l *Link) Run(ctx context.Context, handle Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() {
		defer cancel()
		errc <- l.writeLoop(ctx)
	}()
	go func() {
		defer cancel()
		errc <- l.readLoop(ctx, handle)
	}()

	<-ctx.Done()
	l.Close()
	// Unblock the reader.
	_ = l.ws.Close()
	err := <-errc
	<-errc
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (l *Link) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.out.Wait():
			for {
				msg, ok := l.out.TryDequeue()
				if !ok {
					break
				}
				err := l.write(wire.MarshalMessage(msg))
				l.unsent.Add(-1)
				if err != nil {
					return fmt.Errorf("write %s: %w", msg.Type, err)
				}
				l.log.Debug("sent frame", "type", msg.Type.String(), "bytes", len(msg.Payload))
			}
			if l.out.Closed() {
				return ErrClosed
			}
		case <-time.After(l.settings.PingInterval):
			if err := l.write(nil); err != nil {
				return fmt.Errorf("keepalive: %w", err)
			}
		}
	}
}

func (l *Link) write(frame []byte) error {
	if err := l.ws.SetWriteDeadline(time.Now().Add(l.settings.WriteTimeout)); err != nil {
		return err
	}
	return l.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (l *Link) readLoop(ctx context.Context, handle Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.ws.SetReadDeadline(time.Now().Add(l.settings.ReadTimeout)); err != nil {
			return err
		}
		typ, frame, err := l.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrClosed
			}
			return fmt.Errorf("read: %w", err)
		}
		if typ != websocket.BinaryMessage {
			l.log.Debug("ignoring non-binary frame", "frame_type", typ)
			continue
		}
		if len(frame) == 0 {
			continue
		}
		msg, err := wire.UnmarshalMessage(frame)
		if err != nil {
			// One bad frame does not take the link down.
			l.log.Warn("dropping malformed frame", "error", err, "bytes", len(frame))
			continue
		}
		handle(ctx, msg)
	}
}

// Flush waits until every queued message has been written to the
// connection. It returns ErrClosed if the link closes first.
func (l *Link) Flush(ctx context.Context) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for l.unsent.Load() > 0 {
		if l.out.Closed() {
			return ErrClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// Close stops the link. Queued messages that were not yet written are lost.
func (l *Link) Close() {
	l.closeOnce.Do(func() {
		l.out.Close()
		deadline := time.Now().Add(time.Second)
		_ = l.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	})
}

// Dial connects to a hub at url (ws:// or wss://).
func Dial(ctx context.Context, url string, settings *Settings, logger *slog.Logger) (*Link, error) {
	if settings == nil {
		settings = DefaultSettings()
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: settings.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewLink(url, ws, settings, logger), nil
}
