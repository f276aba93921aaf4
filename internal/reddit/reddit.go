// Package reddit publishes incidents as self posts on subreddits and reads
// moderator corrections from the bot account's inbox.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/MattIPv4/Discord-Status/internal/correction"
	"github.com/MattIPv4/Discord-Status/internal/httpclient"
	"github.com/MattIPv4/Discord-Status/internal/publish"
)

const (
	DefaultAPIBase  = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"
	DefaultWebBase  = "https://www.reddit.com"

	// maxSelfText is Reddit's limit on a self post body, in characters.
	maxSelfText = 40000
	maxTitle    = 300
	// maxInboxPages bounds one Unread walk; the rest waits for the next cycle.
	maxInboxPages = 10
)

// Config holds script-app credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	Timeout      time.Duration

	APIBase  string
	TokenURL string
	WebBase  string
}

// Client talks to the Reddit API as one script account.
type Client struct {
	http *httpclient.Client
	api  string
	web  string
}

// NewClient prepares an authenticated client. The token is requested on
// first use with the password grant and renewed when it expires.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.Username == "" {
		return nil, errors.New("reddit: client_id and username are required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "discord-status (by /u/" + cfg.Username + ")"
	}
	api := strings.TrimRight(orDefault(cfg.APIBase, DefaultAPIBase), "/")
	web := strings.TrimRight(orDefault(cfg.WebBase, DefaultWebBase), "/")

	base := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: userAgentTransport{agent: cfg.UserAgent, next: http.DefaultTransport},
	}
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  orDefault(cfg.TokenURL, DefaultTokenURL),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := oauth2.ReuseTokenSource(nil, passwordSource{ctx: tokenCtx, conf: conf, user: cfg.Username, pass: cfg.Password})
	authed := oauth2.NewClient(tokenCtx, src)
	authed.Timeout = cfg.Timeout

	return &Client{
		http: httpclient.NewWithClient(authed, cfg.UserAgent),
		api:  api,
		web:  web,
	}, nil
}

type passwordSource struct {
	ctx  context.Context
	conf *oauth2.Config
	user string
	pass string
}

func (p passwordSource) Token() (*oauth2.Token, error) {
	tok, err := p.conf.PasswordCredentialsToken(p.ctx, p.user, p.pass)
	if err != nil {
		return nil, fmt.Errorf("reddit login: %w", err)
	}
	return tok, nil
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(req)
}

// Subreddit is a publish target.
type Subreddit struct {
	client *Client
	name   string
}

// Subreddit returns the publisher for one subreddit.
func (c *Client) Subreddit(name string) *Subreddit {
	return &Subreddit{client: c, name: strings.TrimPrefix(strings.TrimSpace(name), "r/")}
}

func (s *Subreddit) Target() publish.Target {
	return publish.Target{Kind: publish.Reddit, Name: s.name}
}

// Create submits a self post.
func (s *Subreddit) Create(ctx context.Context, c publish.Content) publish.Result {
	title := c.Title
	if len([]rune(title)) > maxTitle {
		title = string([]rune(title)[:maxTitle-3]) + "..."
	}
	if utf8.RuneCountInString(c.Body) > maxSelfText {
		return publish.Failed(publish.ErrContentTooLong)
	}
	form := url.Values{
		"sr":       {s.name},
		"kind":     {"self"},
		"title":    {title},
		"text":     {c.Body},
		"resubmit": {"true"},
		"api_type": {"json"},
	}
	body, err := s.client.http.PostForm(ctx, s.client.api+"/api/submit", form)
	if err != nil {
		return publish.Failed(fmt.Errorf("submit to r/%s: %w", s.name, err))
	}
	if err := apiErrors(body); err != nil {
		return publish.Failed(fmt.Errorf("submit to r/%s: %w", s.name, err))
	}
	id := gjson.GetBytes(body, "json.data.id").String()
	if id == "" {
		return publish.Failed(fmt.Errorf("submit to r/%s: response carries no post id", s.name))
	}
	return publish.Result{ExternalID: id, Link: gjson.GetBytes(body, "json.data.url").String()}
}

// Amend re-reads the current selftext and writes it back with text appended,
// so edits made by anyone else are preserved.
func (s *Subreddit) Amend(ctx context.Context, externalID, appended string) publish.Result {
	post, err := s.client.post(ctx, externalID)
	if err != nil {
		return publish.Failed(err)
	}
	text := post.Get("selftext").String() + appended
	if utf8.RuneCountInString(text) > maxSelfText {
		return publish.Failed(publish.ErrContentTooLong)
	}
	form := url.Values{
		"thing_id": {"t3_" + externalID},
		"text":     {text},
		"api_type": {"json"},
	}
	body, err := s.client.http.PostForm(ctx, s.client.api+"/api/editusertext", form)
	if err != nil {
		return publish.Failed(fmt.Errorf("edit t3_%s: %w", externalID, err))
	}
	if err := apiErrors(body); err != nil {
		return publish.Failed(fmt.Errorf("edit t3_%s: %w", externalID, err))
	}
	return publish.Result{ExternalID: externalID, Link: s.client.web + post.Get("permalink").String()}
}

func (c *Client) post(ctx context.Context, id string) (gjson.Result, error) {
	body, err := c.http.Get(ctx, c.api+"/by_id/t3_"+url.PathEscape(id)+"?raw_json=1")
	if err != nil {
		return gjson.Result{}, fmt.Errorf("fetch t3_%s: %w", id, err)
	}
	post := gjson.GetBytes(body, "data.children.0.data")
	if !post.Exists() {
		return gjson.Result{}, fmt.Errorf("fetch t3_%s: post not found", id)
	}
	return post, nil
}

// apiErrors turns the api_type=json error list into an error.
func apiErrors(body []byte) error {
	var msgs []string
	gjson.GetBytes(body, "json.errors").ForEach(func(_, e gjson.Result) bool {
		msgs = append(msgs, strings.Join(strings.Fields(e.Raw), " "))
		return true
	})
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("reddit api: %s", strings.Join(msgs, "; "))
}

// Inbox reads comment replies from the account's unread messages.
type Inbox struct {
	client *Client
}

// Inbox returns the correction inbox of the account.
func (c *Client) Inbox() *Inbox {
	return &Inbox{client: c}
}

var _ correction.Inbox = (*Inbox)(nil)

func (in *Inbox) Kind() publish.Kind { return publish.Reddit }

// Unread lists unread comment replies, following the listing's after cursor
// through the whole inbox. Private messages are left untouched.
func (in *Inbox) Unread(ctx context.Context) ([]correction.Reply, error) {
	var out []correction.Reply
	after := ""
	for range maxInboxPages {
		q := url.Values{"limit": {"100"}, "raw_json": {"1"}}
		if after != "" {
			q.Set("after", after)
		}
		body, err := in.client.http.Get(ctx, in.client.api+"/message/unread?"+q.Encode())
		if err != nil {
			return nil, fmt.Errorf("fetch inbox: %w", err)
		}
		gjson.GetBytes(body, "data.children").ForEach(func(_, child gjson.Result) bool {
			if child.Get("kind").String() != "t1" {
				return true
			}
			d := child.Get("data")
			author := d.Get("author").String()
			out = append(out, correction.Reply{
				ID:                   d.Get("name").String(),
				Body:                 d.Get("body").String(),
				AuthorID:             author,
				AuthorName:           author,
				ParentPostExternalID: strings.TrimPrefix(d.Get("link_id").String(), "t3_"),
				OriginChannel:        d.Get("subreddit").String(),
				CreatedAt:            time.Unix(d.Get("created_utc").Int(), 0).UTC(),
			})
			return true
		})
		next := gjson.GetBytes(body, "data.after").String()
		if next == "" || next == after {
			break
		}
		after = next
	}
	return out, nil
}

func (in *Inbox) MarkConsumed(ctx context.Context, r correction.Reply) error {
	_, err := in.client.http.PostForm(ctx, in.client.api+"/api/read_message", url.Values{"id": {r.ID}})
	return err
}

// IsModerator asks the originating subreddit for its current moderator list.
func (in *Inbox) IsModerator(ctx context.Context, r correction.Reply) (bool, error) {
	if r.OriginChannel == "" || r.AuthorName == "" || r.AuthorName == "[deleted]" {
		return false, nil
	}
	body, err := in.client.http.Get(ctx, in.client.api+"/r/"+url.PathEscape(r.OriginChannel)+"/about/moderators")
	if err != nil {
		return false, fmt.Errorf("fetch moderators of r/%s: %w", r.OriginChannel, err)
	}
	found := false
	gjson.GetBytes(body, "data.children.#.name").ForEach(func(_, name gjson.Result) bool {
		if strings.EqualFold(name.String(), r.AuthorName) {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// Acknowledge upvotes the reply.
func (in *Inbox) Acknowledge(ctx context.Context, r correction.Reply) error {
	_, err := in.client.http.PostForm(ctx, in.client.api+"/api/vote", url.Values{"id": {r.ID}, "dir": {"1"}})
	return err
}

func (in *Inbox) ReplyTo(ctx context.Context, r correction.Reply, text string) error {
	body, err := in.client.http.PostForm(ctx, in.client.api+"/api/comment", url.Values{
		"thing_id": {r.ID},
		"text":     {text},
		"api_type": {"json"},
	})
	if err != nil {
		return err
	}
	return apiErrors(body)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
