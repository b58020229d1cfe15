// Package auth stores pixiv refresh tokens.
//
// A Manager tries the system keychain first, then an AES-GCM encrypted file
// in the user config directory, and finally reads PIXIVCRAWL_REFRESH_TOKEN
// from the environment. The environment store is read-only.
package auth
