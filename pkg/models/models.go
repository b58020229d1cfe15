package models

import "fmt"

// ImageURLs holds the renditions pixiv returns for an illustration
type ImageURLs struct {
	SquareMedium string `json:"square_medium"`
	Medium       string `json:"medium"`
	Large        string `json:"large"`
	Original     string `json:"original,omitempty"`
}

// Illustration is a search result item
type Illustration struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	ImageURLs ImageURLs `json:"image_urls"`
}

// MediaReference returns the canonical reference the download candidates are
// derived from
func (i Illustration) MediaReference() string {
	return i.ImageURLs.Large
}

// DownloadJob is one unit of work for the download pool
type DownloadJob struct {
	Sequence       int
	IllustID       int64
	Title          string
	MediaReference string
}

func (j DownloadJob) String() string {
	return fmt.Sprintf("#%d %d %q", j.Sequence, j.IllustID, j.Title)
}
