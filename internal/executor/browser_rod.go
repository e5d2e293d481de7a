package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	lookupTimeout   = 10 * time.Second
	settleTimeout   = 3 * time.Second
	settleDuration  = 300 * time.Millisecond
	maxAnalysisText = 4000
	maxAnalysisList = 100
)

const controlSelector = "button, input, select, textarea, [role=button]"

// rodSession is a browser controlled over the devtools protocol.
type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser

	lock sync.Mutex
	page *rod.Page
}

// LaunchRod returns a LaunchFn that starts a local browser with rod.
func LaunchRod(config BrowserConfig) LaunchFn {
	return func(context.Context) (Session, error) {
		l := launcher.New().Headless(config.Headless)
		if config.Bin != "" {
			l = l.Bin(config.Bin)
		}

		// the browser outlives the command that launched it
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}

		browser := rod.New().ControlURL(url)
		if err := browser.Connect(); err != nil {
			l.Kill()
			return nil, fmt.Errorf("connect browser: %w", err)
		}

		return &rodSession{launcher: l, browser: browser}, nil
	}
}

func (s *rodSession) Open(ctx context.Context, url string) error {
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	if err := page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("load page: %w", err)
	}

	s.lock.Lock()
	s.page = page
	s.lock.Unlock()

	return nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	s.lock.Lock()
	page := s.page
	s.lock.Unlock()

	if page == nil {
		return s.Open(ctx, url)
	}

	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("load page: %w", err)
	}

	return nil
}

func (s *rodSession) State(ctx context.Context) (*PageState, error) {
	pages, err := s.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	state := &PageState{Pages: make([]PageInfo, 0, len(pages))}

	for _, page := range pages {
		info, err := page.Info()
		if err != nil {
			return nil, fmt.Errorf("page info: %w", err)
		}

		state.Pages = append(state.Pages, PageInfo{URL: info.URL, Title: info.Title})
	}

	s.lock.Lock()
	current := s.page
	s.lock.Unlock()

	if current != nil {
		if info, err := current.Info(); err == nil {
			state.Current = &PageInfo{URL: info.URL, Title: info.Title}
		}
	}

	return state, nil
}

func (s *rodSession) current() (*rod.Page, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.page == nil {
		return nil, ErrNoPage
	}

	return s.page, nil
}

func (s *rodSession) Analyze(ctx context.Context, selector string) (*PageAnalysis, error) {
	current, err := s.current()
	if err != nil {
		return nil, err
	}

	if selector == "" {
		selector = "body"
	}

	page := current.Context(ctx).Timeout(lookupTimeout)
	defer page.CancelTimeout()

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}

	root, err := page.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", selector, err)
	}

	analysis := &PageAnalysis{URL: info.URL, Title: info.Title}

	if text, err := root.Text(); err == nil {
		analysis.Text = truncateText(strings.TrimSpace(text), maxAnalysisText)
	}

	links, err := root.Elements("a[href]")
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	for _, el := range links {
		if len(analysis.Links) == maxAnalysisList {
			break
		}

		href, err := el.Property("href")
		if err != nil || href.Str() == "" {
			continue
		}

		text, _ := el.Text()
		analysis.Links = append(analysis.Links, Link{
			Text: strings.TrimSpace(text),
			URL:  href.Str(),
		})
	}

	controls, err := root.Elements(controlSelector)
	if err != nil {
		return nil, fmt.Errorf("list controls: %w", err)
	}

	for _, el := range controls {
		if len(analysis.Controls) == maxAnalysisList {
			break
		}

		analysis.Controls = append(analysis.Controls, describeControl(el))
	}

	return analysis, nil
}

func (s *rodSession) Interact(ctx context.Context, options InteractOptions) (*PageInfo, error) {
	current, err := s.current()
	if err != nil {
		return nil, err
	}

	page := current.Context(ctx).Timeout(lookupTimeout)
	defer page.CancelTimeout()

	before, err := s.targets(ctx)
	if err != nil {
		return nil, err
	}

	el, err := page.Element(options.Selector)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", options.Selector, err)
	}

	switch options.Action {
	case "input":
		if err := el.SelectAllText(); err != nil {
			return nil, fmt.Errorf("focus %q: %w", options.Selector, err)
		}

		if err := el.Input(options.Text); err != nil {
			return nil, fmt.Errorf("input %q: %w", options.Selector, err)
		}

		if options.Submit {
			if err := el.Type(input.Enter); err != nil {
				return nil, fmt.Errorf("submit %q: %w", options.Selector, err)
			}
		}
	default:
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return nil, fmt.Errorf("click %q: %w", options.Selector, err)
		}
	}

	// the page may keep loading after the interaction, or open another one
	settle := current.Context(ctx).Timeout(settleTimeout)
	_ = settle.WaitStable(settleDuration)
	settle.CancelTimeout()

	pages, err := s.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	for _, p := range pages {
		if _, ok := before[p.TargetID]; ok {
			continue
		}

		p = p.Context(ctx)
		if err := p.WaitLoad(); err != nil {
			return nil, fmt.Errorf("load page: %w", err)
		}

		info, err := p.Info()
		if err != nil {
			return nil, fmt.Errorf("page info: %w", err)
		}

		s.lock.Lock()
		s.page = p
		s.lock.Unlock()

		return &PageInfo{URL: info.URL, Title: info.Title}, nil
	}

	return nil, nil
}

func (s *rodSession) targets(ctx context.Context) (map[proto.TargetTargetID]struct{}, error) {
	pages, err := s.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	ids := make(map[proto.TargetTargetID]struct{}, len(pages))
	for _, p := range pages {
		ids[p.TargetID] = struct{}{}
	}

	return ids, nil
}

func describeControl(el *rod.Element) Control {
	var control Control

	if tag, err := el.Property("tagName"); err == nil {
		control.Tag = strings.ToLower(tag.Str())
	}

	attr := func(name string) string {
		if v, err := el.Attribute(name); err == nil && v != nil {
			return *v
		}
		return ""
	}

	control.Type = attr("type")

	if text, err := el.Text(); err == nil {
		control.Label = strings.TrimSpace(text)
	}

	for _, name := range []string{"aria-label", "placeholder", "value"} {
		if control.Label != "" {
			break
		}
		control.Label = attr(name)
	}

	if id := attr("id"); id != "" {
		control.Selector = "#" + id
	} else if name := attr("name"); name != "" {
		control.Selector = fmt.Sprintf("%s[name=%q]", control.Tag, name)
	}

	return control
}

func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n]) + "..."
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Cleanup()
	return err
}
