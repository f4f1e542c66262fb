package adapterwebsocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/rso-iota/rso-bots/bot/domain"
)

// DefaultReadLimit はフルステートを受け取れるだけの1メッセージ上限です。
const DefaultReadLimit = 4 << 20

type wsTransport struct {
	conn *websocket.Conn
}

func NewTransportFrom(conn *websocket.Conn) domain.Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		if isClosed(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrTransportClosed, err)
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	err := t.conn.Write(ctx, websocket.MessageText, data)
	if err != nil && isClosed(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransportClosed, err)
	}
	return err
}

func (t *wsTransport) Close(code int32, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}

func (t *wsTransport) CloseNow() error {
	return t.conn.CloseNow()
}

func isClosed(err error) bool {
	return websocket.CloseStatus(err) != -1 ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed)
}

// Dialer は coder/websocket でゲームサーバーに接続します。
type Dialer struct {
	HTTPClient *http.Client
	ReadLimit  int64
}

func NewDialer() *Dialer {
	return &Dialer{ReadLimit: DefaultReadLimit}
}

func (d *Dialer) Dial(ctx context.Context, target domain.Target) (domain.Transport, error) {
	u, err := ConnectURL(target)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", redact(u), err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)
	return NewTransportFrom(conn), nil
}

// ConnectURL は {base}/connect/{gameID}?token=... を組み立てます。
func ConnectURL(target domain.Target) (string, error) {
	u, err := url.Parse(target.URL)
	if err != nil {
		return "", fmt.Errorf("parse target %q: %w", target.URL, err)
	}
	if target.GameID == "" {
		return "", errors.New("game id is required")
	}
	base, rawBase := strings.TrimSuffix(u.Path, "/"), strings.TrimSuffix(u.EscapedPath(), "/")
	u.Path = base + "/connect/" + target.GameID
	u.RawPath = rawBase + "/connect/" + url.PathEscape(target.GameID)
	if target.Token != "" {
		q := u.Query()
		q.Set("token", target.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// redact はログやエラーにトークンを残さないようにします。
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
