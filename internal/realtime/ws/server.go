package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/sharedwishlist/internal/realtime"
	"github.com/angelmondragon/sharedwishlist/pkg/config"
	pkgerrors "github.com/angelmondragon/sharedwishlist/pkg/errors"
	"github.com/angelmondragon/sharedwishlist/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// MembershipChecker gates room joins. A nil checker lets any authenticated
// session join any room.
type MembershipChecker interface {
	IsMember(ctx context.Context, wishlistID, userID uuid.UUID) (bool, error)
}

// Server upgrades authenticated requests and runs one read pump and one write
// pump per connection.
type Server struct {
	upgrader websocket.Upgrader
	registry *realtime.Registry
	cfg      config.RealtimeConfig
	logg     *logger.Logger
	members  MembershipChecker
}

func NewServer(registry *realtime.Registry, cfg config.RealtimeConfig, logg *logger.Logger, members MembershipChecker) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 4096
	}
	s := &Server{
		registry: registry,
		cfg:      cfg,
		logg:     logg,
		members:  members,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Serve blocks until the connection closes. The upgrader has already answered
// the request when an upgrade error is returned.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	session := realtime.NewSession(userID, s.cfg.SendBuffer)
	s.registry.Add(session)

	ctx := context.WithoutCancel(r.Context())
	ctx = s.logg.WithUserID(ctx, userID.String())
	ctx = s.logg.WithSessionID(ctx, session.ID().String())
	s.logg.Info(ctx, "realtime.session.open")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(conn, session)
	}()

	s.readPump(ctx, conn, session)

	session.Close()
	rooms := s.registry.Remove(session)
	<-writerDone
	_ = conn.Close()

	s.logg.Info(s.logg.WithField(ctx, "rooms", len(rooms)), "realtime.session.close")
	return nil
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, session *realtime.Session) {
	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "realtime.session.read_failed")
			}
			return
		}

		var frame realtime.ControlFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.reply(ctx, session, realtime.ControlFrame{Type: realtime.FrameError, Code: string(pkgerrors.CodeValidation), Message: "invalid frame"})
			continue
		}
		s.handleFrame(ctx, session, frame)
	}
}

func (s *Server) handleFrame(ctx context.Context, session *realtime.Session, frame realtime.ControlFrame) {
	wishlistID, err := uuid.Parse(strings.TrimSpace(frame.WishlistID))
	if err != nil && (frame.Type == realtime.FrameJoinRoom || frame.Type == realtime.FrameLeaveRoom) {
		s.reply(ctx, session, realtime.ControlFrame{Type: realtime.FrameError, WishlistID: frame.WishlistID, Code: string(pkgerrors.CodeValidation), Message: "invalid wishlistId"})
		return
	}
	roomCtx := s.logg.WithWishlistID(ctx, frame.WishlistID)

	switch frame.Type {
	case realtime.FrameJoinRoom:
		if s.members != nil {
			ok, err := s.members.IsMember(ctx, wishlistID, session.UserID())
			if err != nil {
				s.logg.Error(roomCtx, "realtime.room.join_check_failed", err)
				s.reply(ctx, session, realtime.ControlFrame{Type: realtime.FrameError, WishlistID: frame.WishlistID, Code: string(pkgerrors.CodeDependency), Message: "join failed"})
				return
			}
			if !ok {
				s.reply(ctx, session, realtime.ControlFrame{Type: realtime.FrameError, WishlistID: frame.WishlistID, Code: string(pkgerrors.CodeForbidden), Message: "not a member"})
				return
			}
		}
		if s.registry.Join(session, wishlistID) {
			s.logg.Info(roomCtx, "realtime.room.join")
		}
		s.reply(ctx, session, realtime.ControlFrame{Type: realtime.FrameRoomJoined, WishlistID: wishlistID.String()})
	case realtime.FrameLeaveRoom:
		if s.registry.Leave(session, wishlistID) {
			s.logg.Info(roomCtx, "realtime.room.leave")
		}
		s.reply(ctx, session, realtime.ControlFrame{Type: realtime.FrameRoomLeft, WishlistID: wishlistID.String()})
	default:
		s.reply(ctx, session, realtime.ControlFrame{Type: realtime.FrameError, Code: string(pkgerrors.CodeValidation), Message: fmt.Sprintf("unknown frame type %q", frame.Type)})
	}
}

func (s *Server) reply(ctx context.Context, session *realtime.Session, frame realtime.ControlFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := session.Enqueue(payload); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "realtime.session.reply_dropped")
	}
}

func (s *Server) writePump(conn *websocket.Conn, session *realtime.Session) {
	ticker := time.NewTicker(s.cfg.PingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-session.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-session.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				session.Close()
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				session.Close()
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
