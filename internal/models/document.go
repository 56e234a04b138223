package models

import "time"

// Document is a fetched web page.
type Document struct {
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// ImportRecord is one row created in a Notion database.
type ImportRecord struct {
	ID         int64     `json:"id"`
	SourceURL  string    `json:"sourceUrl"`
	DatabaseID string    `json:"databaseId"`
	PageID     string    `json:"pageId"`
	PageURL    string    `json:"pageUrl"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"createdAt"`
}
