// Package github talks to the GitHub contents API, which serves as a
// revisioned document store: every file has a sha and writes are
// compare-and-swap on it.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://api.github.com/"

type Client struct {
	api    *gh.Client
	base   *url.URL
	logger *zap.Logger
}

// NewClient returns a client that authenticates every request with a bearer
// token taken from ts. baseURL points at the REST root; empty means
// api.github.com.
func NewClient(baseURL string, ts oauth2.TokenSource, logger *zap.Logger) *Client {
	base := parseBase(baseURL)
	return &Client{
		api:    newAPI(base, ts),
		base:   base,
		logger: logger,
	}
}

func parseBase(baseURL string) *url.URL {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		u, _ = url.Parse(DefaultBaseURL)
	}
	return u
}

// The token source is consulted on every request. oauth2.NewClient would
// wrap it in a ReuseTokenSource and keep serving a forgotten token.
func newAPI(base *url.URL, ts oauth2.TokenSource) *gh.Client {
	api := gh.NewClient(&http.Client{Transport: &oauth2.Transport{Source: ts}})
	api.BaseURL = base
	return api
}

// VerifyToken checks that token is accepted by the API.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	api := newAPI(c.base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	start := time.Now()
	_, resp, err := api.Users.Get(ctx, "")
	c.trace("verify credential", resp, start, err)
	if err != nil {
		return classify("verify credential", err)
	}
	return nil
}

// Location addresses one file in one repository.
type Location struct {
	Owner  string
	Repo   string
	Path   string
	Branch string
}

func (l Location) String() string {
	return l.Owner + "/" + l.Repo + "/" + l.Path
}

// File is a handle on a single document.
type File struct {
	c   *Client
	loc Location
}

func (c *Client) File(loc Location) *File {
	loc.Path = strings.Trim(loc.Path, "/")
	return &File{c: c, loc: loc}
}

func (f *File) Location() Location {
	return f.loc
}

func (f *File) getOptions() *gh.RepositoryContentGetOptions {
	if f.loc.Branch == "" {
		return nil
	}
	return &gh.RepositoryContentGetOptions{Ref: f.loc.Branch}
}

// Get returns the file content and its sha. A missing file is not an error:
// it yields nil content and an empty sha.
func (f *File) Get(ctx context.Context) ([]byte, string, error) {
	op := "get " + f.loc.String()
	start := time.Now()
	fc, _, resp, err := f.c.api.Repositories.GetContents(ctx, f.loc.Owner, f.loc.Repo, f.loc.Path, f.getOptions())
	f.c.trace(op, resp, start, err)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, "", nil
		}
		return nil, "", classify(op, err)
	}
	if fc == nil {
		return nil, "", fmt.Errorf("%s: path is a directory", op)
	}

	// files above 1MB come back without inline content
	if fc.GetEncoding() == "none" {
		raw, err := f.download(ctx)
		return raw, fc.GetSHA(), err
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, "", fmt.Errorf("%s: decode content: %w", op, err)
	}
	return []byte(content), fc.GetSHA(), nil
}

func (f *File) download(ctx context.Context) ([]byte, error) {
	op := "download " + f.loc.String()
	start := time.Now()
	rc, resp, err := f.c.api.Repositories.DownloadContents(ctx, f.loc.Owner, f.loc.Repo, f.loc.Path, f.getOptions())
	f.c.trace(op, resp, start, err)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, classify(op, err)
	}
	return raw, nil
}

// Put writes content iff sha matches the current file sha. An empty sha
// asserts that the file does not exist yet. It returns the new sha.
func (f *File) Put(ctx context.Context, content []byte, sha, message string) (string, error) {
	op := "put " + f.loc.String()
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(message),
		Content: content,
	}
	if f.loc.Branch != "" {
		opts.Branch = gh.String(f.loc.Branch)
	}

	var (
		res  *gh.RepositoryContentResponse
		resp *gh.Response
		err  error
	)
	start := time.Now()
	if sha == "" {
		res, resp, err = f.c.api.Repositories.CreateFile(ctx, f.loc.Owner, f.loc.Repo, f.loc.Path, opts)
	} else {
		opts.SHA = gh.String(sha)
		res, resp, err = f.c.api.Repositories.UpdateFile(ctx, f.loc.Owner, f.loc.Repo, f.loc.Path, opts)
	}
	f.c.trace(op, resp, start, err)
	if err != nil {
		return "", classify(op, err)
	}
	if res == nil || res.Content == nil {
		return "", fmt.Errorf("%s: response carries no content sha", op)
	}
	return res.Content.GetSHA(), nil
}

func (c *Client) trace(op string, resp *gh.Response, start time.Time, err error) {
	fields := []zap.Field{zap.String("op", op), zap.Duration("duration", time.Since(start))}
	if resp != nil {
		fields = append(fields, zap.Int("status", resp.StatusCode))
	}
	if err != nil && (resp == nil || resp.StatusCode != http.StatusNotFound) {
		c.logger.Warn("github request failed", append(fields, zap.Error(err))...)
		return
	}
	c.logger.Debug("github request", fields...)
}
