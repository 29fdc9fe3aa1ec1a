// Package wsrpc is the default concrete transport for remote.RemoteRegistry
// and remote.NameDirectory: a small JSON-message-over-websocket RPC client,
// grounded in the teacher's lib/websocket dialer (services/wspr and
// lib/websocket use gorilla/websocket as a byte-stream transport for an
// RPC protocol layered on top; this package instead exchanges JSON
// envelopes directly with ReadJSON/WriteJSON) and in google/uuid for
// per-call correlation IDs, mirroring the teacher's requestID idiom from
// services/wspr/wsprlib.
package wsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sgnls/devicemanager/internal/childapi"
	"github.com/sgnls/devicemanager/internal/deverr"
	"github.com/sgnls/devicemanager/internal/profile"
	"github.com/sgnls/devicemanager/internal/remote"
)

// envelope is the wire message both requests and responses use.
type envelope struct {
	ID     string          `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Client implements remote.RemoteRegistry and remote.NameDirectory over a
// single websocket connection to the Domain Manager's RPC endpoint.
type Client struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan envelope
	writeMu sync.Mutex
}

// Dial opens a websocket connection to url ("ws://host:port/path") and
// starts the client's read loop.
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsrpc: dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan envelope),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.failAllPending(err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- envelope{ID: id, Error: &wireError{Kind: "InternalFailure", Message: err.Error()}}
		delete(c.pending, id)
	}
}

// call sends method(params) and blocks until the correlated response
// arrives or ctx is cancelled.
func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return deverr.New(deverr.InternalFailure, method, "marshal params", err)
	}
	id := uuid.NewString()
	req := envelope{ID: id, Method: method, Params: raw}

	ch := make(chan envelope, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return classifyTransportError(method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return deverr.New(deverr.InternalFailure, method, "context cancelled awaiting response", ctx.Err())
	case env := <-ch:
		if env.Error != nil {
			return classifyWireError(method, env.Error)
		}
		if result != nil && len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, result); err != nil {
				return deverr.New(deverr.InternalFailure, method, "unmarshal result", err)
			}
		}
		return nil
	}
}

func classifyTransportError(method string, err error) error {
	if websocket.IsUnexpectedCloseError(err) || err == websocket.ErrCloseSent {
		return remote.ErrTransient
	}
	return deverr.New(deverr.InternalFailure, method, "transport write failed", err)
}

func classifyWireError(method string, we *wireError) error {
	switch we.Kind {
	case "Transient":
		return remote.ErrTransient
	case "ObjectNotExist":
		return remote.ErrObjectNotExist
	case "AlreadyBound":
		return remote.ErrAlreadyBound
	case "RegisterError":
		return deverr.New(deverr.RegisterError, method, we.Message, nil)
	case "InvalidReference":
		return deverr.New(deverr.InvalidReference, method, we.Message, nil)
	default:
		return deverr.New(deverr.InternalFailure, method, we.Message, nil)
	}
}

// Close closes the underlying websocket connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// --- remote.RemoteRegistry ---

func (c *Client) RegisterManager(ctx context.Context, managerName string) error {
	return c.call(ctx, "registerManager", map[string]string{"managerName": managerName}, nil)
}

func (c *Client) UnregisterManager(ctx context.Context, managerName string) error {
	return c.call(ctx, "unregisterManager", map[string]string{"managerName": managerName}, nil)
}

func (c *Client) RegisterDevice(ctx context.Context, info remote.DeviceInfo) error {
	return c.call(ctx, "registerDevice", map[string]string{"identifier": info.Identifier, "label": info.Label}, nil)
}

func (c *Client) RegisterService(ctx context.Context, info remote.ServiceInfo) error {
	return c.call(ctx, "registerService", map[string]string{"identifier": info.Identifier, "usageName": info.UsageName}, nil)
}

func (c *Client) UnregisterDevice(ctx context.Context, identifier string) error {
	return c.call(ctx, "unregisterDevice", map[string]string{"identifier": identifier}, nil)
}

func (c *Client) UnregisterService(ctx context.Context, identifier string) error {
	return c.call(ctx, "unregisterService", map[string]string{"identifier": identifier}, nil)
}

func (c *Client) EventChannelMgr(ctx context.Context) (string, error) {
	var result struct {
		Name string `json:"name"`
	}
	if err := c.call(ctx, "eventChannelMgr", nil, &result); err != nil {
		return "", err
	}
	return result.Name, nil
}

// --- remote.NameDirectory ---

func (c *Client) Resolve(ctx context.Context, name string) (string, error) {
	var result struct {
		ObjectRef string `json:"objectRef"`
	}
	if err := c.call(ctx, "resolve", map[string]string{"name": name}, &result); err != nil {
		return "", err
	}
	return result.ObjectRef, nil
}

func (c *Client) BindNewContext(ctx context.Context, name string) error {
	return c.call(ctx, "bindNewContext", map[string]string{"name": name}, nil)
}

func (c *Client) Bind(ctx context.Context, name, objectRef string) error {
	return c.call(ctx, "bind", map[string]string{"name": name, "objectRef": objectRef}, nil)
}

func (c *Client) Unbind(ctx context.Context, name string) error {
	return c.call(ctx, "unbind", map[string]string{"name": name}, nil)
}

func (c *Client) Rebind(ctx context.Context, name, objectRef string) error {
	return c.call(ctx, "rebind", map[string]string{"name": name, "objectRef": objectRef}, nil)
}

var _ remote.RemoteRegistry = (*Client)(nil)
var _ remote.NameDirectory = (*Client)(nil)

// ChildReference adapts a remote child object reached over the same
// websocket connection to childapi.Reference, used when the manager needs
// to call back into a child that registered from elsewhere on the domain.
type ChildReference struct {
	Client         *Client
	ChildIdentifier string
}

func (r *ChildReference) Identifier(ctx context.Context) (string, error) {
	return r.ChildIdentifier, nil
}

func (r *ChildReference) Label(ctx context.Context) (string, error) {
	var result struct {
		Label string `json:"label"`
	}
	err := r.Client.call(ctx, "child.label", map[string]string{"identifier": r.ChildIdentifier}, &result)
	return result.Label, err
}

func (r *ChildReference) SoftwareProfile(ctx context.Context) (string, error) {
	var result struct {
		FileRef string `json:"fileRef"`
	}
	err := r.Client.call(ctx, "child.softwareProfile", map[string]string{"identifier": r.ChildIdentifier}, &result)
	return result.FileRef, err
}

func (r *ChildReference) InitializeProperties(ctx context.Context, props []profile.Property) error {
	return r.Client.call(ctx, "child.initializeProperties", map[string]interface{}{"identifier": r.ChildIdentifier, "properties": props}, nil)
}

func (r *ChildReference) Initialize(ctx context.Context) error {
	return r.Client.call(ctx, "child.initialize", map[string]string{"identifier": r.ChildIdentifier}, nil)
}

func (r *ChildReference) Configure(ctx context.Context, props []profile.Property) error {
	return r.Client.call(ctx, "child.configure", map[string]interface{}{"identifier": r.ChildIdentifier, "properties": props}, nil)
}

func (r *ChildReference) ReleaseObject(ctx context.Context) error {
	return r.Client.call(ctx, "child.releaseObject", map[string]string{"identifier": r.ChildIdentifier}, nil)
}

var _ childapi.Reference = (*ChildReference)(nil)
