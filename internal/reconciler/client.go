package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/sharedwishlist/internal/realtime"
	"github.com/angelmondragon/sharedwishlist/internal/wishlists"
	pkgerrors "github.com/angelmondragon/sharedwishlist/pkg/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HTTPFetcher reads wishlists from the REST API with a bearer token.
type HTTPFetcher struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPFetcher(baseURL, token string, client *http.Client) (*HTTPFetcher, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("access token required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{baseURL: baseURL, token: token, client: client}, nil
}

type successEnvelope struct {
	Data wishlists.WishlistDTO `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchWishlist maps error envelopes back to coded errors so callers can tell
// lost access from transient failures.
func (f *HTTPFetcher) FetchWishlist(ctx context.Context, wishlistID uuid.UUID) (*wishlists.WishlistDTO, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/v1/wishlists/"+wishlistID.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request wishlist")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read wishlist response")
	}

	if resp.StatusCode != http.StatusOK {
		var env errorEnvelope
		_ = json.Unmarshal(body, &env)
		code := pkgerrors.Code(env.Error.Code)
		if code == "" {
			code = codeForStatus(resp.StatusCode)
		}
		message := env.Error.Message
		if message == "" {
			message = resp.Status
		}
		return nil, pkgerrors.New(code, message)
	}

	var env successEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode wishlist")
	}
	return &env.Data, nil
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	default:
		return pkgerrors.CodeDependency
	}
}

// WSDialer opens realtime connections with gorilla's dialer.
type WSDialer struct {
	url       string
	token     string
	dialer    *websocket.Dialer
	writeWait time.Duration
	pongWait  time.Duration
}

// NewWSDialer derives the websocket URL from the API base URL.
func NewWSDialer(baseURL, token string) (*WSDialer, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/api/v1/realtime"
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("access token required")
	}
	return &WSDialer{
		url:       u.String(),
		token:     token,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		writeWait: 10 * time.Second,
		pongWait:  70 * time.Second,
	}, nil
}

func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.token)
	ws, _, err := d.dialer.DialContext(ctx, d.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}
	c := &wsConn{
		ws:        ws,
		inbound:   make(chan []byte, inboundBuffer),
		done:      make(chan struct{}),
		writeWait: d.writeWait,
	}
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(d.pongWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(d.writeWait))
	})
	_ = ws.SetReadDeadline(time.Now().Add(d.pongWait))
	go c.readLoop(d.pongWait)
	return c, nil
}

const inboundBuffer = 64

type wsConn struct {
	ws        *websocket.Conn
	inbound   chan []byte
	done      chan struct{}
	writeWait time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) readLoop(pongWait time.Duration) {
	defer close(c.inbound)
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		select {
		case c.inbound <- message:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) Send(ctx context.Context, frame realtime.ControlFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Inbound() <-chan []byte { return c.inbound }

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
