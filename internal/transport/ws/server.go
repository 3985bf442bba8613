// Package ws is the client transport: a HELLO/WELCOME handshake followed by JSON messages in
// both directions over one websocket per player.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"riftgate.ai/internal/affinity"
	"riftgate.ai/internal/protocol"
	"riftgate.ai/internal/sim/engine"
	"riftgate.ai/internal/sim/geom"
)

// Backend is the engine as seen by the transport.
type Backend interface {
	Login(ctx context.Context, player uuid.UUID, name string) (engine.LoginResult, error)
	Logout(player uuid.UUID)
	Submit(a engine.Action) error
}

type Options struct {
	Params   protocol.WorldParams
	Manifest []protocol.RealmRef
	// QueueSize bounds each session's outbound queue; 0 means 32.
	QueueSize int
}

type session struct {
	id  string
	out chan []byte
}

type Server struct {
	backend Backend
	opts    Options
	log     zerolog.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

func NewServer(b Backend, opts Options, logger zerolog.Logger) *Server {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	return &Server{
		backend: b,
		opts:    opts,
		log:     logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: map[uuid.UUID]*session{},
	}
}

func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		player, sess := s.handshake(r.Context(), conn)
		if sess == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-sess.out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "replaced by a newer session"), time.Now().Add(time.Second))
						cancel()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if ctx.Err() != nil {
				break
			}
			s.dispatch(player, msg)
		}
		cancel()

		if s.release(player, sess) {
			s.backend.Logout(player)
		}
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (uuid.UUID, *session) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return uuid.Nil, nil
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return uuid.Nil, nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "bad HELLO")
		return uuid.Nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return uuid.Nil, nil
	}
	player, err := uuid.Parse(strings.TrimSpace(hello.PlayerID))
	if err != nil || player == uuid.Nil {
		closeWith(conn, "bad player_id")
		return uuid.Nil, nil
	}

	// Register before login so notifications sent during login are queued behind WELCOME.
	sess := &session{id: uuid.NewString(), out: make(chan []byte, s.opts.QueueSize)}
	s.attach(player, sess)

	lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := s.backend.Login(lctx, player, hello.PlayerName)
	if err != nil {
		s.log.Warn().Err(err).Str("player", player.String()).Msg("login failed")
		s.release(player, sess)
		closeWith(conn, "login failed")
		return uuid.Nil, nil
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		PlayerID:        player.String(),
		CurrentRealm:    string(res.Realm),
		ServerTick:      res.Tick,
		Params:          s.opts.Params,
		RealmManifest:   s.opts.Manifest,
	}
	if err := writeJSON(conn, welcome); err != nil {
		if s.release(player, sess) {
			s.backend.Logout(player)
		}
		return uuid.Nil, nil
	}
	s.log.Info().Str("player", player.String()).Str("session", sess.id).Msg("session opened")
	return player, sess
}

// attach installs a session, closing any older one for the same player.
func (s *Server) attach(player uuid.UUID, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[player]; ok {
		close(old.out)
	}
	s.sessions[player] = sess
}

// release removes sess if it is still current and reports whether it was.
func (s *Server) release(player uuid.UUID, sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[player]; !ok || cur != sess {
		return false
	}
	delete(s.sessions, player)
	close(sess.out)
	return true
}

func (s *Server) dispatch(player uuid.UUID, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.ProtocolVersion != protocol.Version {
		s.Message(player, protocol.ErrProtoBadRequest, "bad message")
		return
	}
	var a engine.Action
	switch base.Type {
	case protocol.TypeOpenAffinityUI:
		var m protocol.OpenAffinityUIMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.Message(player, protocol.ErrProtoBadRequest, err.Error())
			return
		}
		a = engine.Action{Kind: engine.ActOpenAffinityUI, Player: player, ReqID: m.ReqID}
	case protocol.TypeUseStaff:
		var m protocol.UseStaffMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.Message(player, protocol.ErrProtoBadRequest, err.Error())
			return
		}
		a = engine.Action{Kind: engine.ActUseStaff, Player: player, ReqID: m.ReqID, Facing: m.Facing}
	case protocol.TypeConsumeItem:
		var m protocol.ConsumeItemMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.Message(player, protocol.ErrProtoBadRequest, err.Error())
			return
		}
		a = engine.Action{Kind: engine.ActConsumeItem, Player: player, ReqID: m.ReqID, Item: m.Item, Affinity: m.Affinity}
	case protocol.TypeMove:
		var m protocol.MoveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.Message(player, protocol.ErrProtoBadRequest, err.Error())
			return
		}
		a = engine.Action{Kind: engine.ActMove, Player: player, ReqID: m.ReqID, Pos: geom.Vec3i{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]}}
	default:
		s.Message(player, protocol.ErrProtoBadRequest, "unknown message type "+base.Type)
		return
	}
	if err := s.backend.Submit(a); err != nil {
		s.Message(player, engine.CodeFor(err), err.Error())
	}
}

func (s *Server) AffinityChanged(player uuid.UUID, tick uint64, entries []affinity.Entry) {
	s.send(player, protocol.AffinityChangedMsg{
		Type:            protocol.TypeAffinityChanged,
		ProtocolVersion: protocol.Version,
		ServerTick:      tick,
		Entries:         protocol.EncodeEntries(entries),
	})
}

func (s *Server) AffinityUI(player uuid.UUID, reqID string, entries []affinity.Entry) {
	s.send(player, protocol.AffinityUIMsg{
		Type:            protocol.TypeAffinityUI,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Entries:         protocol.EncodeEntries(entries),
	})
}

func (s *Server) Message(player uuid.UUID, code, text string) {
	s.send(player, protocol.MessageMsg{
		Type:            protocol.TypeMessage,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Text:            text,
	})
}

// send queues a message for player. A full queue drops the message.
func (s *Server) send(player uuid.UUID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("encode message")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[player]
	if !ok {
		return
	}
	select {
	case sess.out <- b:
	default:
		s.log.Warn().Str("player", player.String()).Msg("outbound queue full; dropping message")
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
