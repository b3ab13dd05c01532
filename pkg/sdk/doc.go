// Package sdk is a typed Go client for the corpora HTTP API.
//
// Basic usage:
//
//	client := sdk.New("https://corpora.example.com", sdk.WithAPIKey("key-1"))
//	doc, err := client.Upload(ctx, "notes.txt", content, map[string]string{"team": "infra"})
//	results, err := client.Search(ctx, sdk.SearchRequest{Query: "what is redis?"})
package sdk
