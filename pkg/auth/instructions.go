package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowRefreshTokenGuide explains how to obtain a pixiv refresh token
func ShowRefreshTokenGuide(w io.Writer) {
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "PIXIV REFRESH TOKEN")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "pixivcrawl signs in to the pixiv app API with a refresh token.")
	fmt.Fprintln(w, "Passwords are never sent; the token is exchanged for a short lived access token.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 1: Start the app login flow in your browser")
	fmt.Fprintln(w, "   - Open the developer tools (F12) and select the Network tab")
	fmt.Fprintln(w, "   - Enable 'Preserve log'")
	fmt.Fprintln(w, "   - Open https://app-api.pixiv.net/web/v1/login with a PKCE code challenge")
	fmt.Fprintln(w, "     (tools such as gppt or pixiv_auth.py print the full URL for you)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 2: Log in normally")
	fmt.Fprintln(w, "   - After login the browser is redirected to pixiv://account/login?code=...")
	fmt.Fprintln(w, "   - Copy the code parameter from that request in the Network tab")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 3: Exchange the code")
	fmt.Fprintln(w, "   - The helper tool posts the code and verifier to oauth.secure.pixiv.net")
	fmt.Fprintln(w, "   - The response contains refresh_token; paste it when prompted")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SECURITY WARNING:")
	fmt.Fprintln(w, "   - The refresh token gives full access to your pixiv account")
	fmt.Fprintln(w, "   - NEVER share it; pixivcrawl stores it in the system keychain or an encrypted file")
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
}

// ShowQuickTokenGuide is the one-line reminder shown before the token prompt
func ShowQuickTokenGuide(w io.Writer) {
	fmt.Fprintln(w, "\nNeed a refresh token? Run 'pixivcrawl auth guide' for step by step instructions.")
}
