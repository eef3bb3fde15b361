package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("http %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Msg)
	}
	return fmt.Sprintf("http %s %s: status %d", e.Method, e.Path, e.Code)
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("baseURL must not be empty")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cl := &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(cl)
	}
	return cl, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.getJSON(ctx, "/healthz", &out); err != nil {
		return Health{}, err
	}
	return out, nil
}

func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var out VersionInfo
	if err := c.getJSON(ctx, "/version", &out); err != nil {
		return VersionInfo{}, err
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context) (NodeStatus, error) {
	var out NodeStatus
	if err := c.getJSON(ctx, "/status", &out); err != nil {
		return NodeStatus{}, err
	}
	return out, nil
}

func (c *Client) Peers(ctx context.Context) (PeerList, error) {
	var out PeerList
	if err := c.getJSON(ctx, "/peers", &out); err != nil {
		return PeerList{}, err
	}
	return out, nil
}

func (c *Client) Chain(ctx context.Context) (ChainResponse, error) {
	var out ChainResponse
	if err := c.getJSON(ctx, "/get_chain", &out); err != nil {
		return ChainResponse{}, err
	}
	return out, nil
}

func (c *Client) Validity(ctx context.Context) (ValidityResponse, error) {
	var out ValidityResponse
	if err := c.getJSON(ctx, "/get_validity_check", &out); err != nil {
		return ValidityResponse{}, err
	}
	return out, nil
}

func (c *Client) Mine(ctx context.Context) (MineResponse, error) {
	var out MineResponse
	if err := c.getJSON(ctx, "/mine_block", &out); err != nil {
		return MineResponse{}, err
	}
	return out, nil
}

func (c *Client) ReplaceChain(ctx context.Context) (ReplaceResponse, error) {
	var out ReplaceResponse
	if err := c.getJSON(ctx, "/replace_chain", &out); err != nil {
		return ReplaceResponse{}, err
	}
	return out, nil
}

func (c *Client) AddTransaction(ctx context.Context, sender, receiver string, amount float64) (TransactionResponse, error) {
	var out TransactionResponse
	in := TransactionRequest{Sender: &sender, Receiver: &receiver, Amount: &amount}
	if err := c.postJSON(ctx, "/add_transaction", in, &out); err != nil {
		return TransactionResponse{}, err
	}
	return out, nil
}

func (c *Client) ConnectNodes(ctx context.Context, nodes []string) (ConnectResponse, error) {
	var out ConnectResponse
	if err := c.postJSON(ctx, "/connect_node", ConnectRequest{Nodes: nodes}, &out); err != nil {
		return ConnectResponse{}, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Method: req.Method, Path: path, Code: resp.StatusCode}
		var er ErrorResponse
		if b, rerr := io.ReadAll(io.LimitReader(resp.Body, 4096)); rerr == nil && json.Unmarshal(b, &er) == nil {
			se.Msg = er.Error
		}
		return se
	}

	dec := json.NewDecoder(resp.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
