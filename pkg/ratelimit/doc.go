// Package ratelimit paces outbound pixiv API calls with a token bucket.
//
// The bucket refills to full capacity once per period, which matches how
// pixiv's app API tolerates short bursts followed by a quiet window.
package ratelimit
