package pixiv

import (
	"net/url"
	"strings"
)

const (
	// AuthURL is the OAuth token endpoint used by the pixiv mobile apps
	AuthURL = "https://oauth.secure.pixiv.net/auth/token"

	// APIBaseURL is the base URL of the app API
	APIBaseURL = "https://app-api.pixiv.net"

	// SearchIllustEndpoint searches illustrations by keyword
	SearchIllustEndpoint = "/v1/search/illust"

	// Credentials of the official iOS app
	ClientID     = "MOBrBDS8blbauoSck0ZfDbtuzpyT"
	ClientSecret = "lsACyCD94FhDUtGTXi3QzcFE2uU1hqtDaKeqrdwj"
	HashSecret   = "28c1fdd170a5204386cb1313c7077b34f83e4aaf4aa829ce78c231e05b0bae2c"

	// DefaultUserAgent identifies the client as the iOS app
	DefaultUserAgent = "PixivIOSApp/7.13.3 (iOS 14.6; iPhone13,2)"
)

// Search targets
const (
	SearchTargetPartialTags = "partial_match_for_tags"
	SearchTargetExactTags   = "exact_match_for_tags"
	SearchTargetTitle       = "title_and_caption"
)

// Sort orders
const (
	SortDateDesc = "date_desc"
	SortDateAsc  = "date_asc"
)

// SearchOptions are the query parameters of a search
type SearchOptions struct {
	SearchTarget string
	Sort         string
	Filter       string
}

// DefaultSearchOptions matches what the iOS app sends
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		SearchTarget: SearchTargetPartialTags,
		Sort:         SortDateDesc,
		Filter:       "for_ios",
	}
}

// GetSearchIllustURL constructs the first page URL of a keyword search
func GetSearchIllustURL(baseURL, word string, opts SearchOptions) string {
	defaults := DefaultSearchOptions()
	if opts.SearchTarget == "" {
		opts.SearchTarget = defaults.SearchTarget
	}
	if opts.Sort == "" {
		opts.Sort = defaults.Sort
	}
	if opts.Filter == "" {
		opts.Filter = defaults.Filter
	}

	params := url.Values{}
	params.Set("word", word)
	params.Set("search_target", opts.SearchTarget)
	params.Set("sort", opts.Sort)
	params.Set("filter", opts.Filter)

	return strings.TrimRight(baseURL, "/") + SearchIllustEndpoint + "?" + params.Encode()
}

// IsValidKeyword reports whether word can be searched
func IsValidKeyword(word string) bool {
	return strings.TrimSpace(word) != ""
}
