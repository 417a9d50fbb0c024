package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"lapets-backend/lib/htmlutil"
	"lapets-backend/lib/scraper"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lapets/lib/browser")

var ErrNothingCaptured = errors.New("no matching responses were captured")
var ErrClosed = errors.New("session is closed")

// Response is a data response observed while a page was loading.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

type Page struct {
	URL      string
	HTML     []byte
	Captured []Response
}

func (p Page) Document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewBuffer(p.HTML))
}

// Captures returns the captured responses, or ErrNothingCaptured.
func (p Page) Captures() ([]Response, error) {
	if len(p.Captured) == 0 {
		return nil, ErrNothingCaptured
	}
	return p.Captured, nil
}

// Session is one browsing session, it must be closed once the caller is
// done with it.
type Session interface {
	// Navigate loads link, capturing every data response the page makes
	// whose url satisfies capture.
	Navigate(ctx context.Context, link string, capture func(url string) bool) (Page, error)
	Close() error
}

type Launcher interface {
	Open(ctx context.Context) (Session, error)
}

// HTTPLauncher opens sessions that load pages over plain http and replay
// the data requests the page declares, instead of running its scripts.
type HTTPLauncher struct {
	Options scraper.ClientOptions
}

func (l HTTPLauncher) Open(ctx context.Context) (Session, error) {
	_, span := tracer.Start(ctx, "Open")
	defer span.End()

	opts := l.Options
	if opts.TracerName == "" {
		opts.TracerName = "lapets/lib/browser/http"
	}
	client, err := scraper.NewClient(opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create client")
		return nil, err
	}
	return &httpSession{client: client}, nil
}

type httpSession struct {
	client *resty.Client
	lock   sync.Mutex
	closed bool
}

func (s *httpSession) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.GetClient().CloseIdleConnections()
	return nil
}

func (s *httpSession) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

func (s *httpSession) Navigate(ctx context.Context, link string, capture func(url string) bool) (Page, error) {
	ctx, span := tracer.Start(ctx, "Navigate")
	span.SetAttributes(attribute.String("url", link))
	defer span.End()

	if s.isClosed() {
		return Page{}, ErrClosed
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetHeader("accept", "text/html,application/xhtml+xml").
		Get(link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load page")
		return Page{}, err
	}
	if res.IsError() {
		err = fmt.Errorf("GET %s: unexpected status %s", link, res.Status())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load page")
		return Page{}, err
	}

	page := Page{URL: res.Request.URL, HTML: res.Body()}
	if capture == nil {
		return page, nil
	}

	doc, err := page.Document()
	if err != nil {
		return page, nil
	}
	for _, endpoint := range declaredEndpoints(ctx, link, doc) {
		if !capture(endpoint) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		dataRes, err := s.client.R().
			SetContext(ctx).
			SetHeader("accept", "application/json").
			Get(endpoint)
		if err != nil {
			slog.DebugContext(ctx, "data request failed", "url", endpoint, "err", err)
			continue
		}
		if dataRes.IsError() {
			slog.DebugContext(ctx, "data request failed", "url", endpoint, "status", dataRes.StatusCode())
			continue
		}
		page.Captured = append(page.Captured, Response{
			URL:    endpoint,
			Status: dataRes.StatusCode(),
			Body:   dataRes.Body(),
		})
	}

	span.SetAttributes(attribute.Int("captured", len(page.Captured)))
	return page, nil
}

var scriptUrlRegex = regexp.MustCompile(`["'\x60]((?:https?:)?//[^"'\x60\s<>]+|/[A-Za-z0-9_\-][^"'\x60\s<>]*)["'\x60]`)

var endpointAttrs = []string{"data-url", "data-endpoint", "data-api", "data-src", "data-source"}

// declaredEndpoints lists the urls a page would request on its own: urls
// written in inline scripts and in data attributes, resolved against the
// page url, in document order.
func declaredEndpoints(ctx context.Context, pageUrl string, doc *goquery.Document) []string {
	base, err := url.Parse(pageUrl)
	if err != nil {
		return nil
	}

	var out []string
	seen := map[string]bool{}
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref).String()
		if seen[resolved] {
			return
		}
		seen[resolved] = true
		out = append(out, resolved)
	}

	for _, script := range htmlutil.Scripts(ctx, doc) {
		script = strings.ReplaceAll(script, `\/`, "/")
		for _, match := range scriptUrlRegex.FindAllStringSubmatch(script, -1) {
			add(match[1])
		}
	}
	for _, attr := range endpointAttrs {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			add(s.AttrOr(attr, ""))
		})
	}
	return out
}
