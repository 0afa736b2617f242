package datastore

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// dataEvent is the socket.io event carrying datastore envelopes in both
// directions.
const dataEvent = "data"

// socketChannel multiplexes datastore calls over one socket.io connection.
// Each outgoing envelope carries a per-call sequence number; replies are
// correlated back through an ordered response-callback table.
type socketChannel struct {
	rawURL string

	mu      sync.Mutex
	manager *socket.Manager
	io      *socket.Socket
	dialErr error
	dialed  bool
	nextID  int64
	pending map[int64]chan any
	order   []int64
}

func newSocketChannel(rawURL string) *socketChannel {
	return &socketChannel{
		rawURL:  rawURL,
		pending: make(map[int64]chan any),
	}
}

// ensure dials the connection once. Later calls reuse it, failed dials stay
// failed until the channel is closed and recreated.
func (s *socketChannel) ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialed {
		return s.dialErr
	}
	s.dialed = true

	parsed, err := url.Parse(s.rawURL)
	if err != nil {
		s.dialErr = fmt.Errorf("parse socket url: %w", err)
		return s.dialErr
	}

	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	opts := socket.DefaultOptions()
	if parsed.Path != "" {
		opts.SetPath(parsed.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	s.manager = socket.NewManager(baseURL, opts)
	s.io = s.manager.Socket("/", opts)

	s.io.On(types.EventName(dataEvent), func(args ...any) {
		if len(args) > 0 {
			s.deliver(args[0])
		}
	})
	s.io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			s.failAll(fmt.Errorf("socket connect error: %v", errs[0]))
		}
	})

	s.io.Connect()
	return nil
}

// call sends one envelope and blocks until its correlated reply arrives or
// the context ends.
func (s *socketChannel) call(ctx context.Context, env map[string]any) (any, error) {
	if err := s.ensure(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	ch := make(chan any, 1)
	s.pending[id] = ch
	s.order = append(s.order, id)
	s.mu.Unlock()

	env["callback"] = id
	s.io.Emit(dataEvent, env)

	select {
	case <-ctx.Done():
		// No cancellation on the wire; the late reply is simply ignored.
		s.drop(id)
		return nil, ctx.Err()
	case reply := <-ch:
		if err, ok := reply.(error); ok {
			return nil, err
		}
		return reply, nil
	}
}

// deliver routes an incoming payload to the pending call it belongs to.
func (s *socketChannel) deliver(payload any) {
	body, ok := payload.(map[string]any)
	if !ok {
		return
	}
	id, ok := callbackID(body["callback"])
	if !ok {
		return
	}

	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
		for i, queued := range s.order {
			if queued == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	if text, isText := body["error"].(string); isText {
		ch <- RemoteError{Message: text}
		return
	}
	ch <- body["data"]
}

// failAll delivers an error to every pending call in arrival order.
func (s *socketChannel) failAll(err error) {
	s.mu.Lock()
	order := s.order
	pending := s.pending
	s.order = nil
	s.pending = make(map[int64]chan any)
	s.mu.Unlock()

	for _, id := range order {
		if ch, ok := pending[id]; ok {
			ch <- err
		}
	}
}

func (s *socketChannel) drop(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	for i, queued := range s.order {
		if queued == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *socketChannel) close() {
	s.mu.Lock()
	io := s.io
	s.io = nil
	s.manager = nil
	s.dialed = false
	s.dialErr = nil
	s.mu.Unlock()

	if io != nil {
		io.Disconnect()
	}
}

// callbackID normalizes the wire form of a sequence number.
func callbackID(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
