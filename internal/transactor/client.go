package transactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/trunov/thumbnailer/internal/logger"
)

var ErrClosed = errors.New("transactor connection closed")

// Connection is an authenticated session with one workspace.
type Connection interface {
	// FindOne decodes the first matching document into dest. It reports false
	// when nothing matches.
	FindOne(ctx context.Context, class string, query map[string]any, dest any) (bool, error)
	FindAll(ctx context.Context, class string, query map[string]any, dest any) error
	UpdateDoc(ctx context.Context, class, space, id string, attrs map[string]any) error
	Close() error
}

type DialConfig struct {
	URL       string
	Secret    string
	ServiceID string
	Timeout   time.Duration
}

type request struct {
	ID     int64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("transactor: %s: %s", e.Code, e.Message)
}

type response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

type findOptions struct {
	Limit int `json:"limit,omitempty"`
}

// txUpdateDoc mirrors the platform's update transaction document.
type txUpdateDoc struct {
	ID          string         `json:"_id"`
	Class       string         `json:"_class"`
	Space       string         `json:"space"`
	ModifiedBy  string         `json:"modifiedBy"`
	ModifiedOn  int64          `json:"modifiedOn"`
	ObjectID    string         `json:"objectId"`
	ObjectClass string         `json:"objectClass"`
	ObjectSpace string         `json:"objectSpace"`
	Operations  map[string]any `json:"operations"`
}

// Client speaks JSON-RPC over a websocket to a workspace transactor. Calls may
// be issued concurrently; responses are matched by request id.
type Client struct {
	workspace string
	conn      *websocket.Conn
	log       *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan response
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens a connection to the workspace using a freshly generated system token.
func Dial(ctx context.Context, cfg DialConfig, workspace string, log *slog.Logger) (*Client, error) {
	token, err := GenerateToken(cfg.Secret, workspace, cfg.ServiceID)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.Timeout,
	}
	header := http.Header{}
	header.Set("User-Agent", cfg.ServiceID)

	endpoint := strings.TrimRight(cfg.URL, "/") + "/" + token
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial transactor: %w", err)
	}

	c := &Client{
		workspace: workspace,
		conn:      conn,
		log:       log.With(logger.Scope("transactor"), slog.String("workspace", workspace)),
		pending:   map[int64]chan response{},
		done:      make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

func (c *Client) Workspace() string { return c.workspace }

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.Warn("dropping malformed transactor message", logger.Error(err))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

// fail marks the client broken and wakes every waiting call.
func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err == nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, ErrClosed) {
			c.err = ErrClosed
		} else {
			c.err = fmt.Errorf("%w: %v", ErrClosed, err)
		}
	}
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}

func (c *Client) call(ctx context.Context, method string, result any, params ...any) error {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(id)
		return fmt.Errorf("encode %s: %w", method, err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			return err
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) FindOne(ctx context.Context, class string, query map[string]any, dest any) (bool, error) {
	var docs []json.RawMessage
	if err := c.call(ctx, "findAll", &docs, class, query, findOptions{Limit: 1}); err != nil {
		return false, err
	}
	if len(docs) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(docs[0], dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", class, err)
	}
	return true, nil
}

func (c *Client) FindAll(ctx context.Context, class string, query map[string]any, dest any) error {
	return c.call(ctx, "findAll", dest, class, query, findOptions{})
}

func (c *Client) UpdateDoc(ctx context.Context, class, space, id string, attrs map[string]any) error {
	tx := txUpdateDoc{
		ID:          uuid.NewString(),
		Class:       "core:class:TxUpdateDoc",
		Space:       "core:space:Tx",
		ModifiedBy:  "core:account:System",
		ModifiedOn:  time.Now().UnixMilli(),
		ObjectID:    id,
		ObjectClass: class,
		ObjectSpace: space,
		Operations:  attrs,
	}
	return c.call(ctx, "tx", nil, tx)
}

// Close sends a close frame and waits for the read loop to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		c.fail(ErrClosed)
		err = c.conn.Close()
		<-c.done
	})
	return err
}
