package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
)

const (
	DefaultTimeout  = 20 * time.Second
	MaxCharsDefault = 2000
)

// Summary is a short extract of one source page, used to annotate ambiguous
// component parameters in review prompts.
type Summary struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Fetcher produces source summaries. It fetches directly first and only
// falls back to a headless browser when the direct fetch yields nothing
// readable, since spinning up a browser is expensive.
type Fetcher struct {
	Client     *http.Client
	Timeout    time.Duration
	MaxChars   int
	UseBrowser bool
}

func New(timeout time.Duration, maxChars int) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}
	return &Fetcher{
		Client:   &http.Client{Timeout: timeout},
		Timeout:  timeout,
		MaxChars: maxChars,
	}
}

// Summarize fetches the page and reduces it to a readable extract.
func (f *Fetcher) Summarize(ctx context.Context, rawURL string) (Summary, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Summary{}, errors.New("invalid url")
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Summary{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	page, err := f.fetchDirect(ctx, rawURL)
	if (err != nil || page == "") && f.UseBrowser {
		page, err = fetchRendered(ctx, rawURL)
	}
	if err != nil {
		return Summary{}, err
	}

	article, err := readability.FromReader(strings.NewReader(page), pageURL)
	if err != nil {
		return Summary{}, err
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	return Summary{
		URL:   rawURL,
		Title: strings.TrimSpace(article.Title),
		Text:  text,
	}, nil
}

func (f *Fetcher) fetchDirect(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; circuitreview/1.0)")
	resp, err := f.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.New(resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// fetchRendered loads the page in a headless browser for sources that serve
// their content only after script execution.
func fetchRendered(ctx context.Context, rawURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("circuitreview/1.0 (+https://github.com/voltlab/circuitreview)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var page string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	)
	return page, err
}
