package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/pkg/scanner"
	"github.com/grovetools/conductor/pkg/sessions"
)

// RemoteClient implements Client by calling the daemon's HTTP API over a Unix socket.
type RemoteClient struct {
	httpClient *http.Client
	socketPath string
}

// NewRemoteClient creates a new RemoteClient connected to the daemon socket.
// Requests are bounded by the caller's context; scans and provisioning
// can legitimately take minutes.
func NewRemoteClient(socketPath string) *RemoteClient {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	return &RemoteClient{
		httpClient: &http.Client{Transport: transport},
		socketPath: socketPath,
	}
}

// baseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const baseURL = "http://unix"

// SocketPath returns the socket this client talks to.
func (c *RemoteClient) SocketPath() string { return c.socketPath }

func (c *RemoteClient) CreateSession(ctx context.Context, req CreateSessionRequest) (*sessions.Record, error) {
	var rec sessions.Record
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *RemoteClient) GetSession(ctx context.Context, id string) (*sessions.Record, error) {
	var rec sessions.Record
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *RemoteClient) ListSessions(ctx context.Context, activeOnly bool) ([]*sessions.Record, error) {
	path := "/api/sessions"
	if activeOnly {
		path += "?active=true"
	}
	var recs []*sessions.Record
	if err := c.do(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *RemoteClient) ChangeState(ctx context.Context, id string, req StateChangeRequest) (*sessions.Record, error) {
	var rec sessions.Record
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/state", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *RemoteClient) AttachContainer(ctx context.Context, id, containerID string) (*sessions.Record, error) {
	var rec sessions.Record
	body := ContainerRequest{ContainerID: containerID}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/container", body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *RemoteClient) Touch(ctx context.Context, id string) (*sessions.Record, error) {
	var rec sessions.Record
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/touch", nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *RemoteClient) RemoveSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

func (c *RemoteClient) Scan(ctx context.Context, req ScanRequest) (*scanner.ScanResult, error) {
	var result scanner.ScanResult
	if err := c.do(ctx, http.MethodPost, "/api/scan", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RemoteClient) RepositoryNames(ctx context.Context, prefix string, limit int) ([]string, error) {
	q := url.Values{}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/repos"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var names []string
	if err := c.do(ctx, http.MethodGet, path, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *RemoteClient) Repository(ctx context.Context, name string) (*scanner.RepoMeta, error) {
	var meta scanner.RepoMeta
	if err := c.do(ctx, http.MethodGet, "/api/repos/"+url.PathEscape(name), nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// RefreshRepositories asks the daemon to rescan its repository roots.
func (c *RemoteClient) RefreshRepositories(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/repos/refresh", nil, nil)
}

func (c *RemoteClient) Info(ctx context.Context) (*RunningInfo, error) {
	var info RunningInfo
	if err := c.do(ctx, http.MethodGet, "/api/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StreamEvents subscribes to registry events over a websocket. The channel
// is closed when ctx is cancelled or the connection is lost.
func (c *RemoteClient) StreamEvents(ctx context.Context) (<-chan EventFrame, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(dialCtx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(dialCtx, "unix", c.socketPath)
		},
		HandshakeTimeout: 5 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, "ws://unix/api/stream", nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}

	ch := make(chan EventFrame, 16)
	stop := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	go func() {
		defer close(ch)
		defer close(stop)
		defer conn.Close()

		for {
			var frame EventFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			select {
			case ch <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// do sends body as JSON and decodes a 2xx response into out. Error
// responses carry a ConductorError body, which is returned as is.
func (c *RemoteClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr errors.ConductorError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Code != "" {
			return &apiErr
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
