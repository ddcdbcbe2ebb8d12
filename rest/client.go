// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/govisor/super"
)

// Client reads the status of a remote supervisor.
type Client struct {
	base   string // URI to root of tree on server
	client *http.Client
}

// NewClient returns a Client handle.  The transport may be nil to use the
// default transport.  baseURI is the root of the server's tree.
func NewClient(t http.RoundTripper, baseURI string) *Client {
	if t == nil {
		t = http.DefaultTransport
	}
	return &Client{
		base:   strings.TrimRight(baseURI, "/"),
		client: &http.Client{Transport: t},
	}
}

func (c *Client) url(name string) string {
	if name == "" {
		return c.base + "/instances"
	}
	return c.base + "/instances/" + url.PathEscape(name)
}

// get issues an HTTP GET against the URL.  With an etag it becomes
// conditional, and with wait > 0 a long poll for up to wait seconds.  It
// returns the new Etag, or "" if nothing changed, in which case v is left
// alone.
func (c *Client) get(ctx context.Context, url string, tag string, wait int, v interface{}) (string, error) {
	req, e := http.NewRequestWithContext(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if tag != "" {
		req.Header.Set("If-None-Match", tag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, tag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}
	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", &Error{Code: res.StatusCode, Message: res.Status}
	}
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

// Info returns the supervisor's top-level information.
func (c *Client) Info(ctx context.Context) (*super.Info, error) {
	v := &super.Info{}
	if _, e := c.get(ctx, c.base+"/", "", 0, v); e != nil {
		return nil, e
	}
	return v, nil
}

// WatchInfo waits up to wait seconds for the info to change from the one
// identified by tag.  It returns nil info if nothing changed.
func (c *Client) WatchInfo(ctx context.Context, tag string, wait int) (*super.Info, string, error) {
	v := &super.Info{}
	ntag, e := c.get(ctx, c.base+"/", tag, wait, v)
	if e != nil || ntag == "" {
		return nil, tag, e
	}
	return v, ntag, nil
}

// Instances returns the instance names, in start order.
func (c *Client) Instances(ctx context.Context) ([]string, error) {
	v := []string{}
	if _, e := c.get(ctx, c.url(""), "", 0, &v); e != nil {
		return nil, e
	}
	return v, nil
}

// Instance returns the status of one instance.
func (c *Client) Instance(ctx context.Context, name string) (*InstanceInfo, error) {
	v := &InstanceInfo{}
	if _, e := c.get(ctx, c.url(name), "", 0, v); e != nil {
		return nil, e
	}
	return v, nil
}

// Log returns the recent log lines.
func (c *Client) Log(ctx context.Context) ([]super.LogRecord, error) {
	v := []super.LogRecord{}
	if _, e := c.get(ctx, c.base+"/log", "", 0, &v); e != nil {
		return nil, e
	}
	return v, nil
}
