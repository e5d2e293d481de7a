package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/puddle/v2"
	"github.com/lambda-feedback/agenthost/internal/command"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultSearchURL     = "https://html.duckduckgo.com/html/?q=%s"
	defaultSearchResults = "#links"
	defaultSearchLimit   = 10
)

var ErrNoPage = errors.New("no page open")

type BrowserConfig struct {
	// Headless runs the browser without a window.
	Headless bool `conf:"headless"`

	// Bin is the browser binary. Downloaded if empty.
	Bin string `conf:"bin"`

	// SearchURL is the search page, with %s in place of the query.
	SearchURL string `conf:"search_url"`

	// SearchResults selects the element holding the result links.
	SearchResults string `conf:"search_results"`
}

type BrowserURLOptions struct {
	URL string `json:"url"`
}

type SearchOptions struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type AnalyzeOptions struct {
	// Selector limits the analysis to a part of the page.
	Selector string `json:"selector"`
}

type InteractOptions struct {
	Selector string `json:"selector"`

	// Action is either "click" (the default) or "input".
	Action string `json:"action"`

	// Text is typed into the element by "input".
	Text string `json:"text"`

	// Submit presses enter after typing.
	Submit bool `json:"submit"`
}

type PageInfo struct {
	URL   string `yaml:"url"`
	Title string `yaml:"title"`
}

type PageState struct {
	Current *PageInfo  `yaml:"current,omitempty"`
	Pages   []PageInfo `yaml:"pages"`
}

type Link struct {
	Text string `yaml:"text"`
	URL  string `yaml:"url"`
}

// Control is an element the page can be interacted with through.
type Control struct {
	Tag      string `yaml:"tag"`
	Type     string `yaml:"type,omitempty"`
	Label    string `yaml:"label,omitempty"`
	Selector string `yaml:"selector,omitempty"`
}

type PageAnalysis struct {
	URL      string    `yaml:"url"`
	Title    string    `yaml:"title"`
	Text     string    `yaml:"text,omitempty"`
	Links    []Link    `yaml:"links,omitempty"`
	Controls []Control `yaml:"controls,omitempty"`
}

// Session is a running browser.
type Session interface {
	// Open opens url in a new page, which becomes the current page.
	Open(ctx context.Context, url string) error

	// Navigate loads url in the current page.
	Navigate(ctx context.Context, url string) error

	// State describes the open pages.
	State(ctx context.Context) (*PageState, error)

	// Analyze describes the content of the current page below selector,
	// or of the whole page if selector is empty.
	Analyze(ctx context.Context, selector string) (*PageAnalysis, error)

	// Interact acts on an element of the current page. If this opens a
	// new page, it becomes the current page and is returned.
	Interact(ctx context.Context, options InteractOptions) (*PageInfo, error)

	// Close terminates the browser.
	Close() error
}

type LaunchFn func(ctx context.Context) (Session, error)

// Browser drives a single browser session. The session is launched on
// first use and kept until it is closed by a command.
type Browser struct {
	config BrowserConfig
	pool   *puddle.Pool[Session]
	log    *zap.Logger
}

var _ command.Executor = (*Browser)(nil)

func NewBrowser(config BrowserConfig, launch LaunchFn, log *zap.Logger) (*Browser, error) {
	log = log.Named("browser")

	if config.SearchURL == "" {
		config.SearchURL = defaultSearchURL
	}

	if config.SearchResults == "" {
		config.SearchResults = defaultSearchResults
	}

	constructor := func(ctx context.Context) (Session, error) {
		log.Debug("launching browser")
		return launch(ctx)
	}

	destructor := func(s Session) {
		log.Debug("closing browser")
		if err := s.Close(); err != nil {
			log.Warn("failed to close browser", zap.Error(err))
		}
	}

	pool, err := puddle.NewPool(&puddle.Config[Session]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     1,
	})
	if err != nil {
		return nil, err
	}

	return &Browser{
		config: config,
		pool:   pool,
		log:    log,
	}, nil
}

func (b *Browser) Execute(ctx context.Context, cmd command.Command) (any, error) {
	switch cmd.Cmd {
	case "open", "navigation", "search", "state", "analyze", "interact":
	case "close":
		return b.close(ctx)
	default:
		return nil, command.Unknown(cmd)
	}

	resource, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("error acquiring browser: %w", err)
	}
	defer resource.Release()

	session := resource.Value()

	switch cmd.Cmd {
	case "open", "navigation":
		return b.load(ctx, session, cmd)
	case "search":
		return b.search(ctx, session, cmd)
	case "analyze":
		options, err := command.DecodeOptions[AnalyzeOptions](cmd)
		if err != nil {
			return nil, err
		}

		analysis, err := session.Analyze(ctx, options.Selector)
		if err != nil {
			return nil, err
		}

		return encodeYAML(analysis)
	case "interact":
		return b.interact(ctx, session, cmd)
	}

	state, err := session.State(ctx)
	if err != nil {
		return nil, err
	}

	return encodeYAML(state)
}

func (b *Browser) load(ctx context.Context, session Session, cmd command.Command) (any, error) {
	options, err := command.DecodeOptions[BrowserURLOptions](cmd)
	if err != nil {
		return nil, err
	}

	if options.URL == "" {
		return nil, fmt.Errorf("%w: url is required", command.ErrInvalidCommand)
	}

	if cmd.Cmd == "open" {
		err = session.Open(ctx, options.URL)
	} else {
		err = session.Navigate(ctx, options.URL)
	}

	if err != nil {
		return nil, err
	}

	return "success", nil
}

// search loads the results for a query in the current page and lists
// the links found in the result section.
func (b *Browser) search(ctx context.Context, session Session, cmd command.Command) (any, error) {
	options, err := command.DecodeOptions[SearchOptions](cmd)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(options.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", command.ErrInvalidCommand)
	}

	limit := options.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	target := fmt.Sprintf(b.config.SearchURL, url.QueryEscape(query))

	b.log.Debug("searching", zap.String("query", query))

	if err := session.Navigate(ctx, target); err != nil {
		return nil, err
	}

	analysis, err := session.Analyze(ctx, b.config.SearchResults)
	if err != nil {
		return nil, err
	}

	results := analysis.Links
	if len(results) > limit {
		results = results[:limit]
	}

	return encodeYAML(results)
}

func (b *Browser) interact(ctx context.Context, session Session, cmd command.Command) (any, error) {
	options, err := command.DecodeOptions[InteractOptions](cmd)
	if err != nil {
		return nil, err
	}

	if options.Selector == "" {
		return nil, fmt.Errorf("%w: selector is required", command.ErrInvalidCommand)
	}

	switch options.Action {
	case "":
		options.Action = "click"
	case "click", "input":
	default:
		return nil, fmt.Errorf("%w: unknown interaction %q", command.ErrInvalidCommand, options.Action)
	}

	opened, err := session.Interact(ctx, options)
	if err != nil {
		return nil, err
	}

	if opened == nil {
		return "success", nil
	}

	out, err := encodeYAML(opened)
	if err != nil {
		return nil, err
	}

	return "success, opened new page:\n" + out, nil
}

// close waits for the session to become idle and destroys it.
func (b *Browser) close(ctx context.Context) (any, error) {
	if b.pool.Stat().TotalResources() == 0 {
		return "no browser open", nil
	}

	resource, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("error acquiring browser: %w", err)
	}

	resource.Destroy()

	return "success", nil
}

// Shutdown closes the browser.
func (b *Browser) Shutdown() {
	b.pool.Close()
}

func encodeYAML(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	return string(out), nil
}
