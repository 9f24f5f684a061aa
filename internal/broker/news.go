package broker

import (
	"context"
	"time"

	"github.com/auroratrading/core/internal/domain"
)

// NewsAdapter satisfies internal/orchestrator's NewsProvider interface by
// wrapping Client.GetNews, converting the wire shape into domain.NewsItem.
type NewsAdapter struct {
	client *Client
}

// NewNewsAdapter wraps an existing broker Client as a NewsProvider.
func NewNewsAdapter(client *Client) *NewsAdapter { return &NewsAdapter{client: client} }

// RecentNews fetches the limit most recent news articles for symbol.
func (a *NewsAdapter) RecentNews(ctx context.Context, symbol string, limit int) ([]domain.NewsItem, error) {
	articles, err := a.client.GetNews(ctx, []string{symbol}, limit)
	if err != nil {
		return nil, err
	}
	items := make([]domain.NewsItem, 0, len(articles))
	for _, article := range articles {
		ts, _ := time.Parse(time.RFC3339, article.CreatedAt)
		items = append(items, domain.NewsItem{Headline: article.Headline, Summary: article.Summary, Timestamp: ts})
	}
	return items, nil
}
