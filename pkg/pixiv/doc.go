// Package pixiv is a client for the pixiv app API.
//
// It authenticates with a refresh token the way the iOS app does, searches
// illustrations by keyword and follows next_url through the result pages.
// Tokens are managed by golang.org/x/oauth2: an expired access token is
// refreshed before the request is sent, and one the API rejects early forces
// a single refresh and retry.
//
//	client := pixiv.NewClient(pixiv.ClientOptions{
//	    Limiter: ratelimit.NewPerMinute(60),
//	}, log)
//	if _, err := client.Authenticate(ctx, refreshToken); err != nil {
//	    return err
//	}
//
//	provider := pixiv.NewSearchProvider(client, pixiv.DefaultSearchOptions(), log)
//	pages := provider.Pages("landscape")
//	page, err := pages.NextPage(ctx)
//
// Errors are *errors.Error values from pkg/errors, typed auth, rate_limit,
// not_found, server_error, parsing or network.
package pixiv
