package news

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"eth-scalper/internal/api"
	"eth-scalper/internal/types"
)

const DefaultNewsAPIBase = "https://newsapi.org"

// NewsAPI queries the /v2/everything endpoint, newest first.
type NewsAPI struct {
	client *api.Client
	key    string
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func NewNewsAPI(key string, opts ...api.ClientOption) *NewsAPI {
	base := []api.ClientOption{api.WithBaseURL(DefaultNewsAPIBase), api.WithTimeout(6 * time.Second)}
	return &NewsAPI{client: api.NewClient(append(base, opts...)...), key: key}
}

func (n *NewsAPI) Name() string { return "newsapi" }

func (n *NewsAPI) Fetch(ctx context.Context, query string, count int) ([]types.NewsItem, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("pageSize", strconv.Itoa(count))
	q.Set("language", "en")
	q.Set("sortBy", "publishedAt")
	q.Set("apiKey", n.key)

	var resp newsAPIResponse
	if err := n.client.GetJSON(ctx, "/v2/everything", q, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && !strings.EqualFold(resp.Status, "ok") {
		return nil, fmt.Errorf("newsapi %s: %s", resp.Code, resp.Message)
	}

	out := make([]types.NewsItem, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		item := types.NewsItem{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			Source:      a.Source.Name,
		}
		if ts, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			item.PublishedAt = ts.UTC()
		}
		out = append(out, item)
	}
	return out, nil
}
