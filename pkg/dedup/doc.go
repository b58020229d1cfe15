// Package dedup keeps track of illustrations that have already been fetched.
//
// The record is a CSV file with an id,title header that other tools can read.
// Rows are only ever appended. IDs are held in memory for constant time
// lookups; new rows are buffered and written out by Flush, which the crawler
// calls once per search page before the page's downloads are dispatched.
package dedup
