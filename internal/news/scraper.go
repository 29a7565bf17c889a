package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"eth-scalper/internal/api"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/types"
)

const DefaultFeedURL = "https://news.google.com/rss/search"

// Scraper reads headlines from an RSS search feed; used when no NewsAPI key is set
// or the API returns nothing.
type Scraper struct {
	feedURL string
	timeout time.Duration
}

func NewScraper(feedURL string, timeout time.Duration) *Scraper {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &Scraper{feedURL: feedURL, timeout: timeout}
}

func (s *Scraper) Name() string { return "rss" }

func (s *Scraper) Fetch(ctx context.Context, query string, count int) ([]types.NewsItem, error) {
	items := []types.NewsItem{}

	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.Async(false),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)

	ua := api.BrowserHeaders()["User-Agent"]
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", ua)
		r.Headers.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	})

	c.OnXML("//item", func(e *colly.XMLElement) {
		if count > 0 && len(items) >= count {
			return
		}
		title := strings.TrimSpace(e.ChildText("title"))
		if title == "" {
			return
		}
		item := types.NewsItem{
			Title:       title,
			Description: strings.TrimSpace(e.ChildText("description")),
			URL:         strings.TrimSpace(e.ChildText("link")),
			Source:      strings.TrimSpace(e.ChildText("source")),
		}
		if ts, err := time.Parse(time.RFC1123, strings.TrimSpace(e.ChildText("pubDate"))); err == nil {
			item.PublishedAt = ts.UTC()
		} else if ts, err := time.Parse(time.RFC1123Z, strings.TrimSpace(e.ChildText("pubDate"))); err == nil {
			item.PublishedAt = ts.UTC()
		}
		items = append(items, item)
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = err
		logger.Warn(ctx, "Feed scraping error", "url", r.Request.URL.Host, "status", r.StatusCode, "error", err)
	})

	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", "en-US")
	q.Set("gl", "US")
	q.Set("ceid", "US:en")
	feed := s.feedURL + "?" + q.Encode()

	if err := c.Visit(feed); err != nil {
		return nil, fmt.Errorf("failed to visit feed: %w", err)
	}
	c.Wait()
	if scrapeErr != nil && len(items) == 0 {
		return nil, scrapeErr
	}

	logger.Debug(ctx, "Feed scraping completed", "query", query, "articles", len(items))
	return items, nil
}
