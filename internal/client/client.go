// Package client implements [contractor.Conn] against a recdb HTTP server.
//
// Server error codes are mapped back to the sentinel errors of the recdb and
// contractor packages, so callers handle local and remote failures alike:
//
//	err := conn.Book(ctx, id, owner)
//	if errors.Is(err, contractor.ErrAlreadyBooked) { ... }
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/google/uuid"

	"github.com/calvinalkan/recdb/internal/contractor"
	"github.com/calvinalkan/recdb/internal/server"
	"github.com/calvinalkan/recdb/pkg/recdb"
)

// ErrInvalidURL is returned by [New] for base URLs that are not http(s).
var ErrInvalidURL = errors.New("client: remote must be an http or https URL")

const defaultTimeout = 30 * time.Second

// StatusError is a non-2xx answer from the server. It unwraps to the
// sentinel named by Code, if any.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server answered %d", e.Status)
	}

	return e.Message
}

func (e *StatusError) Unwrap() error {
	return server.SentinelForCode(e.Code)
}

// Options configures a [Client].
type Options struct {
	// HTTPClient defaults to a client with a 30s timeout. Lock waits happen
	// on the server, so the timeout bounds how long a booking can block.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to one server.
type Client struct {
	base string
	http *http.Client
	log  *slog.Logger
}

// New returns a client for the server at base, e.g. "http://127.0.0.1:8420".
func New(base string, opts Options) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, base)
	}

	c := &Client{base: base, http: opts.HTTPClient, log: opts.Logger}

	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}

	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}

	return c, nil
}

func (c *Client) Create(ctx context.Context, ct contractor.Contractor) (int64, error) {
	var resp server.CreateResponse

	err := c.request("/contractors").
		Post().
		BodyJSON(ct).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return contractor.Unsaved, c.fail("create", err)
	}

	return resp.ID, nil
}

func (c *Client) Get(ctx context.Context, id int64) (contractor.Contractor, error) {
	var ct contractor.Contractor

	err := c.request(recordPath(id)).
		ToJSON(&ct).
		Fetch(ctx)
	if err != nil {
		return contractor.Contractor{}, c.fail("get", err)
	}

	return ct, nil
}

func (c *Client) Update(ctx context.Context, id int64, f contractor.Fields) error {
	err := c.request(recordPath(id)).
		Put().
		BodyJSON(f).
		Fetch(ctx)

	return c.fail("update", err)
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	err := c.request(recordPath(id)).
		Delete().
		Fetch(ctx)

	return c.fail("delete", err)
}

func (c *Client) Find(ctx context.Context, criteria contractor.Fields, exact bool) ([]contractor.Contractor, error) {
	rb := c.request("/contractors")

	for i, v := range criteria.Values() {
		if s, ok := v.Get(); ok {
			rb = rb.Param(contractor.FieldNames()[i], s)
		}
	}

	if exact {
		rb = rb.Param("exact", strconv.FormatBool(exact))
	}

	found := []contractor.Contractor{}

	if err := rb.ToJSON(&found).Fetch(ctx); err != nil {
		return nil, c.fail("find", err)
	}

	return found, nil
}

func (c *Client) Book(ctx context.Context, id int64, owner string) error {
	err := c.request(recordPath(id) + "/book").
		Post().
		BodyJSON(server.BookRequest{Owner: owner}).
		Fetch(ctx)

	return c.fail("book", err)
}

func (c *Client) Unbook(ctx context.Context, id int64) error {
	err := c.request(recordPath(id) + "/book").
		Delete().
		Fetch(ctx)

	return c.fail("unbook", err)
}

func (c *Client) Schema(ctx context.Context) (recdb.Schema, error) {
	var resp server.SchemaResponse

	if err := c.request("/schema").ToJSON(&resp).Fetch(ctx); err != nil {
		return recdb.Schema{}, c.fail("schema", err)
	}

	return resp.Schema(), nil
}

// request starts a builder for path with the shared client, a fresh request
// id and the error validator.
func (c *Client) request(path string) *requests.Builder {
	return requests.
		URL(c.base).
		Path(path).
		Client(c.http).
		Header(server.RequestIDHeader, uuid.NewString()).
		AddValidator(checkStatus)
}

// fail returns nil for nil, the server's error for status errors and wraps
// transport errors.
func (c *Client) fail(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *StatusError
	if errors.As(err, &se) {
		c.log.Debug("server rejected request", "op", op, "status", se.Status, "code", se.Code)

		return se
	}

	c.log.Warn("request failed", "op", op, "err", err)

	return fmt.Errorf("client: %s: %w", op, err)
}

// checkStatus accepts 2xx responses and decodes everything else into a
// [StatusError].
func checkStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	se := &StatusError{Status: res.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	var resp server.ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		se.Code = resp.Code
		se.Message = resp.Error
	}

	return se
}

func recordPath(id int64) string {
	return "/contractors/" + strconv.FormatInt(id, 10)
}

var _ contractor.Conn = (*Client)(nil)
