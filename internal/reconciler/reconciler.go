package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/sharedwishlist/internal/realtime"
	"github.com/angelmondragon/sharedwishlist/internal/wishlists"
	pkgerrors "github.com/angelmondragon/sharedwishlist/pkg/errors"
	"github.com/angelmondragon/sharedwishlist/pkg/logger"
	"github.com/google/uuid"
)

// State is the reconciler's position in its fetch/apply cycle.
type State int

const (
	Uninitialized State = iota
	Fetching
	Synced
	Applying
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Synced:
		return "synced"
	case Applying:
		return "applying"
	default:
		return "uninitialized"
	}
}

var (
	// ErrAccessLost ends Run when the wishlist is gone or the user was removed.
	ErrAccessLost = errors.New("wishlist access lost")

	errDisconnected = errors.New("connection closed")
	errJoinRejected = errors.New("room join rejected")
)

// Fetcher loads the authoritative wishlist.
type Fetcher interface {
	FetchWishlist(ctx context.Context, wishlistID uuid.UUID) (*wishlists.WishlistDTO, error)
}

// Conn is one live realtime connection. Inbound is closed when the
// connection drops.
type Conn interface {
	Send(ctx context.Context, frame realtime.ControlFrame) error
	Inbound() <-chan []byte
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Options tune reconnect back-off and expose hooks for observers.
type Options struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	OnSynced   func(view wishlists.WishlistDTO)
	OnEvent    func(event realtime.Event, outcome Outcome)
}

// Reconciler keeps one Projection in step with the server across reconnects.
type Reconciler struct {
	wishlistID uuid.UUID
	fetcher    Fetcher
	dialer     Dialer
	logg       *logger.Logger
	opts       Options

	mu         sync.RWMutex
	state      State
	projection *Projection
}

func New(wishlistID uuid.UUID, fetcher Fetcher, dialer Dialer, logg *logger.Logger, opts Options) (*Reconciler, error) {
	if wishlistID == uuid.Nil {
		return nil, fmt.Errorf("wishlist id required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher required")
	}
	if dialer == nil {
		return nil, fmt.Errorf("dialer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Reconciler{
		wishlistID: wishlistID,
		fetcher:    fetcher,
		dialer:     dialer,
		logg:       logg,
		opts:       opts,
		projection: NewProjection(wishlistID),
	}, nil
}

func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// View snapshots the current projection.
func (r *Reconciler) View() wishlists.WishlistDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projection.View()
}

// Run connects, synchronizes and applies events until ctx ends or access to
// the wishlist is lost. Dropped connections are retried with back-off.
func (r *Reconciler) Run(ctx context.Context) error {
	ctx = r.logg.WithWishlistID(ctx, r.wishlistID.String())
	backoff := r.opts.MinBackoff

	for {
		conn, err := r.dialer.Dial(ctx)
		if err == nil {
			err = r.session(ctx, conn)
			_ = conn.Close()
			if errors.Is(err, errDisconnected) {
				backoff = r.opts.MinBackoff
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrAccessLost) {
			return err
		}

		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"error":   errString(err),
			"backoff": backoff.String(),
		}), "reconciler.reconnect")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.opts.MaxBackoff {
			backoff = r.opts.MaxBackoff
		}
	}
}

// session fetches, joins the room, fetches again to cover anything committed
// between the first fetch and the join, then applies events until the
// connection drops.
func (r *Reconciler) session(ctx context.Context, conn Conn) error {
	if err := r.resync(ctx); err != nil {
		return err
	}

	join := realtime.ControlFrame{Type: realtime.FrameJoinRoom, WishlistID: r.wishlistID.String()}
	if err := conn.Send(ctx, join); err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			_ = conn.Send(leaveCtx, realtime.ControlFrame{Type: realtime.FrameLeaveRoom, WishlistID: r.wishlistID.String()})
			cancel()
			return ctx.Err()
		case raw, ok := <-conn.Inbound():
			if !ok {
				return errDisconnected
			}
			if err := r.handleFrame(ctx, raw); err != nil {
				return err
			}
		}
	}
}

type inboundFrame struct {
	Type       string          `json:"type"`
	WishlistID string          `json:"wishlistId"`
	Payload    json.RawMessage `json:"payload"`
	Code       string          `json:"code"`
	Message    string          `json:"message"`
}

func (r *Reconciler) handleFrame(ctx context.Context, raw []byte) error {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "reconciler.frame.invalid")
		return nil
	}

	switch frame.Type {
	case realtime.FrameRoomJoined:
		if frame.WishlistID == r.wishlistID.String() {
			return r.resync(ctx)
		}
		return nil
	case realtime.FrameRoomLeft:
		return nil
	case realtime.FrameError:
		if frame.WishlistID != r.wishlistID.String() {
			r.logg.Warn(r.logg.WithField(ctx, "message", frame.Message), "reconciler.server_error")
			return nil
		}
		if frame.Code == string(pkgerrors.CodeForbidden) {
			return fmt.Errorf("%w: %s", ErrAccessLost, frame.Message)
		}
		return fmt.Errorf("%w: %s", errJoinRejected, frame.Message)
	}

	eventType := realtime.EventType(frame.Type)
	if !eventType.Valid() {
		return nil
	}
	wishlistID, err := uuid.Parse(frame.WishlistID)
	if err != nil {
		return nil
	}
	return r.apply(ctx, realtime.Event{Type: eventType, WishlistID: wishlistID, Payload: frame.Payload})
}

func (r *Reconciler) apply(ctx context.Context, event realtime.Event) error {
	r.setState(Applying)
	r.mu.Lock()
	outcome, err := r.projection.Apply(event)
	r.mu.Unlock()
	r.setState(Synced)

	if err != nil {
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"event_type": string(event.Type),
			"error":      err.Error(),
		}), "reconciler.event.undecodable")
		return nil
	}
	if r.opts.OnEvent != nil {
		r.opts.OnEvent(event, outcome)
	}
	if outcome == ResyncRequired {
		return r.resync(ctx)
	}
	return nil
}

func (r *Reconciler) resync(ctx context.Context) error {
	r.setState(Fetching)
	snapshot, err := r.fetcher.FetchWishlist(ctx, r.wishlistID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
			return fmt.Errorf("%w: %v", ErrAccessLost, err)
		}
		return fmt.Errorf("fetch wishlist: %w", err)
	}

	r.mu.Lock()
	r.projection.Reset(*snapshot)
	view := r.projection.View()
	r.mu.Unlock()
	r.setState(Synced)

	r.logg.Info(r.logg.WithField(ctx, "products", len(view.Products)), "reconciler.synced")
	if r.opts.OnSynced != nil {
		r.opts.OnSynced(view)
	}
	return nil
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
