package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mobsim/internal/observerproto"
	"mobsim/internal/sim/world"
)

const (
	maxRadius    = 256
	maxAgents    = 4096
	defaultAgent = 512

	// SUBSCRIBE updates are bursty when a UI drags a slider.
	subscribeRate  = rate.Limit(4)
	subscribeBurst = 4
)

type Server struct {
	world *world.World
	log   *zap.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(w *world.World, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		world: w,
		log:   logger.Named("observer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.world.Config()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			Tick:            s.world.CurrentTick(),
			WorldParams: observerproto.WorldParams{
				TickRateHz: cfg.TickRateHz,
				Seed:       cfg.Seed,
				Difficulty: cfg.Difficulty,
				BaseHeight: cfg.BaseHeight,
			},
		}
		if cats := s.world.Catalogs(); cats != nil {
			resp.MobKinds = append([]string(nil), cats.Mobs.IDs...)
			resp.ItemPalette = append([]string(nil), cats.Items.Palette...)
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, err := parseSubscribe(msg)
		if err != nil {
			s.log.Debug("bad subscribe", zap.String("remote", r.RemoteAddr), zap.Error(err))
			reject(conn, observerproto.ErrProtoBadRequest, err.Error())
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		tickOut := make(chan []byte, 8)

		joinReq := world.ObserverJoinRequest{
			SessionID: sid,
			TickOut:   tickOut,
			Radius:    sub.Radius,
			MaxAgents: sub.MaxAgents,
			FocusID:   sub.FocusID,
		}
		select {
		case s.world.ObserverJoin() <- joinReq:
		default:
			reject(conn, observerproto.ErrWorldBusy, "server busy")
			return
		}
		s.log.Info("observer joined", zap.String("session", sid), zap.Float64("radius", sub.Radius), zap.Int("max_agents", sub.MaxAgents))
		defer func() {
			select {
			case s.world.ObserverLeave() <- sid:
			default:
				// World loop is stopping; nothing else to do.
			}
			s.log.Info("observer left", zap.String("session", sid))
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. Control replies share conn, so they go through here too.
		replies := make(chan []byte, 4)
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b = <-replies:
				case tb, ok := <-tickOut:
					if !ok {
						writeErr <- nil
						return
					}
					b = tb
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}()

		lim := rate.NewLimiter(subscribeRate, subscribeBurst)

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, err := parseSubscribe(msg)
			if err != nil {
				s.reply(replies, observerproto.NewError(observerproto.ErrProtoBadRequest, err.Error()))
				continue
			}
			if !lim.Allow() {
				s.reply(replies, observerproto.NewError(observerproto.ErrRateLimit, "subscribe too frequent"))
				continue
			}
			req := world.ObserverSubscribeRequest{
				SessionID: sid,
				Radius:    sub.Radius,
				MaxAgents: sub.MaxAgents,
				FocusID:   sub.FocusID,
			}
			select {
			case s.world.ObserverSubscribe() <- req:
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) reply(out chan<- []byte, msg observerproto.ErrorMsg) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func reject(conn *websocket.Conn, code, reason string) {
	if b, err := json.Marshal(observerproto.NewError(code, reason)); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
	closeCode := websocket.ClosePolicyViolation
	if code == observerproto.ErrWorldBusy {
		closeCode = websocket.CloseTryAgainLater
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, reason), time.Now().Add(time.Second))
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, error) {
	var sub observerproto.SubscribeMsg
	if err := observerproto.ValidateSubscribe(msg); err != nil {
		return sub, fmt.Errorf("subscribe: %w", err)
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, err
	}
	if sub.ProtocolVersion != observerproto.Version {
		return sub, fmt.Errorf("unsupported protocol_version %q", sub.ProtocolVersion)
	}
	normalizeSubscribe(&sub)
	return sub, nil
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.Radius < 0 {
		sub.Radius = 0
	}
	if sub.Radius > maxRadius {
		sub.Radius = maxRadius
	}
	if sub.MaxAgents <= 0 {
		sub.MaxAgents = defaultAgent
	}
	if sub.MaxAgents > maxAgents {
		sub.MaxAgents = maxAgents
	}
	sub.FocusID = strings.TrimSpace(sub.FocusID)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
