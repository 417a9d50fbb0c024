package scraper

import (
	"bytes"
	"context"
	"fmt"
	"lapets-backend/lib/restyutil"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

const DefaultTimeout = time.Second * 30

type ClientOptions struct {
	BaseUrl string
	// defaults to DefaultTimeout
	Timeout time.Duration
	// when set, every http exchange is dumped here
	Output restyutil.InstrumentOutput
	// name of the tracer used for request spans
	TracerName string
}

// NewClient creates the http client adapters fetch with. Every request it
// makes is bounded by the timeout, whatever context it is given.
func NewClient(opts ClientOptions) (*resty.Client, error) {
	client := resty.New()
	if opts.BaseUrl != "" {
		client.SetBaseURL(opts.BaseUrl)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", UserAgent)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.SetTimeout(timeout)

	tracerName := opts.TracerName
	if tracerName == "" {
		tracerName = "lapets/lib/scraper/http"
	}
	restyutil.InstrumentClient(client, otel.Tracer(tracerName), opts.Output)
	return client, nil
}

// FetchDocument GETs link and parses the response as html, non-2xx
// responses are errors.
func FetchDocument(ctx context.Context, client *resty.Client, link string) (*goquery.Document, error) {
	res, err := client.R().
		SetContext(ctx).
		SetHeader("accept", "text/html,application/xhtml+xml").
		Get(link)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("GET %s: unexpected status %s", link, res.Status())
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

// FetchJSON GETs link and returns the body of a 2xx response.
func FetchJSON(ctx context.Context, client *resty.Client, link string) ([]byte, error) {
	res, err := client.R().
		SetContext(ctx).
		SetHeader("accept", "application/json").
		Get(link)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("GET %s: unexpected status %s", link, res.Status())
	}
	return res.Body(), nil
}
