package pixiv

import (
	"context"

	"pixivcrawl/pkg/crawler"
	"pixivcrawl/pkg/logger"
)

// SearchProvider opens a paged keyword search per keyword
type SearchProvider struct {
	client *Client
	opts   SearchOptions
	logger logger.Logger
}

// NewSearchProvider creates a provider searching with opts
func NewSearchProvider(client *Client, opts SearchOptions, log logger.Logger) *SearchProvider {
	if log == nil {
		log = logger.GetLogger()
	}
	return &SearchProvider{client: client, opts: opts, logger: log}
}

// Pages returns a pager over the search results of keyword
func (p *SearchProvider) Pages(keyword string) crawler.PageSource {
	return &Pager{
		client:  p.client,
		keyword: keyword,
		opts:    p.opts,
		logger:  p.logger.WithField("keyword", keyword),
	}
}

// Pager follows next_url through the result pages of one search
type Pager struct {
	client  *Client
	keyword string
	opts    SearchOptions
	logger  logger.Logger

	started bool
	nextURL string
	pages   int
}

// NextPage fetches the next page. Once the results are exhausted it returns
// an empty page with HasMore false.
func (p *Pager) NextPage(ctx context.Context) (crawler.Page, error) {
	var (
		resp *SearchIllustResponse
		err  error
	)

	switch {
	case !p.started:
		resp, err = p.client.SearchIllust(ctx, p.keyword, p.opts)
	case p.nextURL != "":
		resp, err = p.client.Next(ctx, p.nextURL)
	default:
		return crawler.Page{}, nil
	}
	if err != nil {
		return crawler.Page{}, err
	}

	p.started = true
	p.pages++
	p.nextURL = ""
	if resp.HasNext() {
		p.nextURL = *resp.NextURL
	}

	p.logger.DebugWithFields("Search page fetched", map[string]interface{}{
		"page":     p.pages,
		"illusts":  len(resp.Illusts),
		"has_more": p.nextURL != "",
	})

	return crawler.Page{Items: resp.Illusts, HasMore: p.nextURL != ""}, nil
}
