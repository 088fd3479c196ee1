package webhdfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPort is the namenode HTTP port of Hadoop 3
	DefaultPort = 9870
	// apiPrefix is the REST root of every WebHDFS path
	apiPrefix = "/webhdfs/v1"
)

// Options configures a Client
type Options struct {
	Host    string
	Port    int
	User    string
	UseTLS  bool
	Timeout time.Duration

	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// Client issues raw WebHDFS operations. It knows nothing about the domain
// error taxonomy; failures come back as *RemoteError or transport errors.
type Client struct {
	base     url.URL
	user     string
	http     *http.Client
	noFollow *http.Client
}

// FileStatus is the WebHDFS FileStatus JSON object
type FileStatus struct {
	AccessTime       int64  `json:"accessTime"`
	BlockSize        int64  `json:"blockSize"`
	ChildrenNum      int    `json:"childrenNum"`
	Group            string `json:"group"`
	Length           int64  `json:"length"`
	ModificationTime int64  `json:"modificationTime"`
	Owner            string `json:"owner"`
	PathSuffix       string `json:"pathSuffix"`
	Permission       string `json:"permission"`
	Replication      int    `json:"replication"`
	Type             string `json:"type"`
}

// RemoteError is a non-2xx response from the namenode or a datanode
type RemoteError struct {
	StatusCode    int
	Exception     string `json:"exception"`
	JavaClassName string `json:"javaClassName"`
	Message       string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Exception != "" {
		return fmt.Sprintf("webhdfs %d %s: %s", e.StatusCode, e.Exception, e.Message)
	}
	return fmt.Sprintf("webhdfs %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the namenode described by opts
func NewClient(opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, errors.New("webhdfs: host is required")
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}

	scheme := "http"
	if opts.UseTLS {
		scheme = "https"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	noFollow := *httpClient
	noFollow.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		base: url.URL{
			Scheme: scheme,
			Host:   opts.Host + ":" + strconv.Itoa(opts.Port),
		},
		user:     opts.User,
		http:     httpClient,
		noFollow: &noFollow,
	}, nil
}

// URL builds the request URL of op on p
func (c *Client) URL(p, op string, params url.Values) string {
	u := c.base
	u.Path = apiPrefix + p

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("op", op)
	if c.user != "" {
		q.Set("user.name", c.user)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// GetFileStatus returns the status of one path
func (c *Client) GetFileStatus(ctx context.Context, p string) (FileStatus, error) {
	var out struct {
		FileStatus FileStatus `json:"FileStatus"`
	}
	err := c.doJSON(ctx, http.MethodGet, c.URL(p, "GETFILESTATUS", nil), &out)
	return out.FileStatus, err
}

// ListStatus returns the statuses of the children of p in one call
func (c *Client) ListStatus(ctx context.Context, p string) ([]FileStatus, error) {
	var out struct {
		FileStatuses struct {
			FileStatus []FileStatus `json:"FileStatus"`
		} `json:"FileStatuses"`
	}
	err := c.doJSON(ctx, http.MethodGet, c.URL(p, "LISTSTATUS", nil), &out)
	return out.FileStatuses.FileStatus, err
}

// Mkdirs creates p and its parents
func (c *Client) Mkdirs(ctx context.Context, p string) (bool, error) {
	return c.doBool(ctx, http.MethodPut, c.URL(p, "MKDIRS", nil))
}

// Delete removes p
func (c *Client) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	params := url.Values{"recursive": {strconv.FormatBool(recursive)}}
	return c.doBool(ctx, http.MethodDelete, c.URL(p, "DELETE", params))
}

// Rename moves src to dst
func (c *Client) Rename(ctx context.Context, src, dst string) (bool, error) {
	params := url.Values{"destination": {dst}}
	return c.doBool(ctx, http.MethodPut, c.URL(src, "RENAME", params))
}

// Truncate shrinks p to size bytes
func (c *Client) Truncate(ctx context.Context, p string, size int64) (bool, error) {
	params := url.Values{"newlength": {strconv.FormatInt(size, 10)}}
	return c.doBool(ctx, http.MethodPost, c.URL(p, "TRUNCATE", params))
}

// Concat appends sources onto p
func (c *Client) Concat(ctx context.Context, p string, sources []string) error {
	params := url.Values{"sources": {strings.Join(sources, ",")}}
	return c.doJSON(ctx, http.MethodPost, c.URL(p, "CONCAT", params), nil)
}

// SetTimes updates the modification and access time of p
func (c *Client) SetTimes(ctx context.Context, p string, t time.Time) error {
	ms := strconv.FormatInt(t.UnixMilli(), 10)
	params := url.Values{"modificationtime": {ms}, "accesstime": {ms}}
	return c.doJSON(ctx, http.MethodPut, c.URL(p, "SETTIMES", params), nil)
}

// Create writes data to a new file, replacing an existing one when overwrite is set
func (c *Client) Create(ctx context.Context, p string, data []byte, overwrite bool) error {
	params := url.Values{"overwrite": {strconv.FormatBool(overwrite)}}
	return c.twoStep(ctx, http.MethodPut, c.URL(p, "CREATE", params), data)
}

// Append writes data at the end of p
func (c *Client) Append(ctx context.Context, p string, data []byte) error {
	return c.twoStep(ctx, http.MethodPost, c.URL(p, "APPEND", nil), data)
}

// Open reads length bytes of p starting at offset
func (c *Client) Open(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	params := url.Values{
		"offset": {strconv.FormatInt(offset, 10)},
		"length": {strconv.FormatInt(length, 10)},
	}
	resp, err := c.send(ctx, c.http, http.MethodGet, c.URL(p, "OPEN", params), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// twoStep performs the namenode -> datanode redirect dance of CREATE and APPEND
func (c *Client) twoStep(ctx context.Context, method, rawURL string, data []byte) error {
	resp, err := c.send(ctx, c.noFollow, method, rawURL, nil)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusTemporaryRedirect && resp.StatusCode != http.StatusFound {
		if err := checkResponse(resp); err != nil {
			return err
		}
		return &RemoteError{StatusCode: resp.StatusCode, Message: "expected redirect to datanode"}
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return &RemoteError{StatusCode: resp.StatusCode, Message: "redirect without location"}
	}

	resp, err = c.send(ctx, c.http, method, location, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

func (c *Client) doBool(ctx context.Context, method, rawURL string) (bool, error) {
	var out struct {
		Boolean bool `json:"boolean"`
	}
	err := c.doJSON(ctx, method, rawURL, &out)
	return out.Boolean, err
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, out any) error {
	resp, err := c.send(ctx, c.http, method, rawURL, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, rawURL string, data []byte) (*http.Response, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	return hc.Do(req)
}

// checkResponse turns a non-2xx response into a *RemoteError
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	remote := &RemoteError{StatusCode: resp.StatusCode}
	var envelope struct {
		RemoteException *RemoteError `json:"RemoteException"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(data, &envelope) == nil && envelope.RemoteException != nil {
		remote.Exception = envelope.RemoteException.Exception
		remote.JavaClassName = envelope.RemoteException.JavaClassName
		remote.Message = envelope.RemoteException.Message
	} else {
		remote.Message = strings.TrimSpace(string(data))
		if remote.Message == "" {
			remote.Message = http.StatusText(resp.StatusCode)
		}
	}
	return remote
}
