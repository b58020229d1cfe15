package pixiv

import "pixivcrawl/pkg/models"

// SearchIllustResponse is one page of search results
type SearchIllustResponse struct {
	Illusts []models.Illustration `json:"illusts"`
	NextURL *string               `json:"next_url"`
}

// HasNext reports whether another page is available
func (r *SearchIllustResponse) HasNext() bool {
	return r.NextURL != nil && *r.NextURL != ""
}

// AuthResponse is the body of a successful token request
type AuthResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	TokenType    string   `json:"token_type"`
	User         AuthUser `json:"user"`
}

// AuthUser is the account the token belongs to
type AuthUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Account string `json:"account"`
}

// ErrorResponse is the error body returned by the app API
type ErrorResponse struct {
	Error struct {
		UserMessage string `json:"user_message"`
		Message     string `json:"message"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

// Text returns the most descriptive message in the response
func (e ErrorResponse) Text() string {
	for _, s := range []string{e.Error.Message, e.Error.UserMessage, e.Error.Reason} {
		if s != "" {
			return s
		}
	}
	return ""
}
