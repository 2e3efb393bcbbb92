package player

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mobsim/internal/playerproto"
	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/world"
)

const (
	// A join is applied on the next tick; a stopped loop never answers.
	joinTimeout = 5 * time.Second

	actRate  = rate.Limit(40)
	actBurst = 20
)

// Server runs player sessions: HELLO joins the world, ACT messages become
// world inputs and a disconnect leaves.
type Server struct {
	world *world.World
	log   *zap.Logger

	upgrader websocket.Upgrader

	mu     sync.Mutex
	online map[uuid.UUID]struct{}
}

func NewServer(w *world.World, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		world: w,
		log:   logger.Named("player"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		online: map[uuid.UUID]struct{}{},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		pid, ok := s.handshake(conn)
		if !ok {
			return
		}
		defer s.release(pid)
		s.log.Info("player joined", zap.String("player", pid.String()), zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		replies := make(chan []byte, 16)
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-replies:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		lim := rate.NewLimiter(actRate, actBurst)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			act, err := parseAct(msg)
			if err != nil {
				send(replies, playerproto.NewError(act.Seq, playerproto.ErrProtoBadRequest, err.Error()))
				continue
			}
			if !lim.Allow() {
				send(replies, playerproto.NewError(act.Seq, playerproto.ErrRateLimit, "act too frequent"))
				continue
			}
			if err := s.queue(pid, act); err != nil {
				send(replies, playerproto.NewError(act.Seq, playerproto.ErrWorldBusy, err.Error()))
				continue
			}
			send(replies, playerproto.AckMsg{Type: playerproto.TypeAck, ProtocolVersion: playerproto.Version, Seq: act.Seq})
		}

		cancel()
		select {
		case s.world.Leave() <- pid:
		case <-time.After(time.Second):
			s.log.Warn("leave dropped", zap.String("player", pid.String()))
		}
		s.log.Info("player left", zap.String("player", pid.String()))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (uuid.UUID, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return uuid.Nil, false
	}
	hello, err := parseHello(msg)
	if err != nil {
		reject(conn, playerproto.ErrProtoBadRequest, err.Error())
		return uuid.Nil, false
	}

	pid := uuid.New()
	if hello.PlayerID != "" {
		pid = uuid.MustParse(hello.PlayerID)
	}
	var held equipment.Item
	if h := hello.Held; h != nil {
		if _, ok := s.world.Catalogs().Items.ItemDef(h.ID); !ok {
			reject(conn, playerproto.ErrProtoBadRequest, fmt.Sprintf("unknown item %q", h.ID))
			return uuid.Nil, false
		}
		count := h.Count
		if count <= 0 {
			count = 1
		}
		held = equipment.NewItem(h.ID, count)
	}
	if !s.claim(pid) {
		reject(conn, playerproto.ErrProtoBadRequest, "player already connected")
		return uuid.Nil, false
	}

	resp := make(chan uint64, 1)
	join := world.PlayerJoin{ID: pid, Pos: mgl64.Vec3(hello.Pos), Held: held, Resp: resp}
	select {
	case s.world.Join() <- join:
	default:
		s.release(pid)
		reject(conn, playerproto.ErrWorldBusy, "server busy")
		return uuid.Nil, false
	}
	var tick uint64
	select {
	case tick = <-resp:
	case <-time.After(joinTimeout):
		select {
		case s.world.Leave() <- pid:
		default:
		}
		s.release(pid)
		reject(conn, playerproto.ErrWorldBusy, "join timed out")
		return uuid.Nil, false
	}

	cfg := s.world.Config()
	welcome := playerproto.WelcomeMsg{
		Type:            playerproto.TypeWelcome,
		ProtocolVersion: playerproto.Version,
		PlayerID:        pid.String(),
		WorldID:         cfg.ID,
		Tick:            tick,
		TickRateHz:      cfg.TickRateHz,
	}
	if err := writeJSON(conn, welcome); err != nil {
		select {
		case s.world.Leave() <- pid:
		default:
		}
		s.release(pid)
		return uuid.Nil, false
	}
	return pid, true
}

// queue hands the parts of act to the world without blocking. A full queue
// fails the whole remainder of the act.
func (s *Server) queue(pid uuid.UUID, act playerproto.ActMsg) error {
	if m := act.Move; m != nil {
		select {
		case s.world.Move() <- world.PlayerMove{ID: pid, Pos: mgl64.Vec3(*m)}:
		default:
			return fmt.Errorf("move queue full")
		}
	}
	if a := act.Attack; a != nil {
		req := world.AttackRequest{PlayerID: pid, AgentID: uuid.MustParse(a.AgentID), Damage: a.Damage}
		select {
		case s.world.Attack() <- req:
		default:
			return fmt.Errorf("attack queue full")
		}
	}
	if in := act.Interact; in != nil {
		req := world.InteractRequest{PlayerID: pid, AgentID: uuid.MustParse(in.AgentID)}
		select {
		case s.world.Interact() <- req:
		default:
			return fmt.Errorf("interact queue full")
		}
	}
	return nil
}

func (s *Server) claim(pid uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.online[pid]; ok {
		return false
	}
	s.online[pid] = struct{}{}
	return true
}

func (s *Server) release(pid uuid.UUID) {
	s.mu.Lock()
	delete(s.online, pid)
	s.mu.Unlock()
}

func parseHello(msg []byte) (playerproto.HelloMsg, error) {
	var h playerproto.HelloMsg
	if err := playerproto.ValidateHello(msg); err != nil {
		return h, fmt.Errorf("hello: %w", err)
	}
	if err := json.Unmarshal(msg, &h); err != nil {
		return h, err
	}
	if h.ProtocolVersion != playerproto.Version {
		return h, fmt.Errorf("unsupported protocol_version %q", h.ProtocolVersion)
	}
	return h, nil
}

// parseAct returns the decoded seq even on failure so the error can echo it.
func parseAct(msg []byte) (playerproto.ActMsg, error) {
	var act playerproto.ActMsg
	_ = json.Unmarshal(msg, &act)
	if err := playerproto.ValidateAct(msg); err != nil {
		return act, fmt.Errorf("act: %w", err)
	}
	if act.ProtocolVersion != playerproto.Version {
		return act, fmt.Errorf("unsupported protocol_version %q", act.ProtocolVersion)
	}
	return act, nil
}

func send(out chan<- []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func reject(conn *websocket.Conn, code, reason string) {
	_ = writeJSON(conn, playerproto.NewError(0, code, reason))
	closeCode := websocket.ClosePolicyViolation
	if code == playerproto.ErrWorldBusy {
		closeCode = websocket.CloseTryAgainLater
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
