// test-agent is a development smoke test for a running server: it uploads a
// text asset through the ingestion endpoint, polls until processing
// completes, and runs a search that should return the item.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/glimpse-dev/glimpse/internal/uploader"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	serverURL := flag.String("server", "http://localhost:8081", "server base URL")
	file := flag.String("file", "", "text file to upload (default: a built-in sample)")
	query := flag.String("query", "budget review", "search query to run after processing")
	flag.Parse()

	ctx := context.Background()

	data := []byte("Quarterly Budget Review meeting notes, prepared for the finance team.")
	if *file != "" {
		var err error
		if data, err = os.ReadFile(*file); err != nil {
			log.Fatalf("failed to read %s: %v", *file, err)
		}
	}

	itemID := uuid.NewString()
	log.Printf("uploading item %s ...", itemID)
	client := uploader.NewClient(*serverURL)
	if err := client.Send(ctx, &uploader.Upload{
		ItemID:     itemID,
		CapturedTs: time.Now().Unix(),
		Source:     "chat_import",
		MimeType:   "text/plain",
		Data:       data,
	}); err != nil {
		log.Fatalf("upload failed: %v", err)
	}

	log.Println("waiting for processing ...")
	if err := waitForComplete(*serverURL, itemID, 30*time.Second); err != nil {
		log.Fatalf("processing did not complete: %v", err)
	}

	log.Printf("searching for %q ...", *query)
	results, err := search(ctx, *serverURL, *query)
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}
	for i, r := range results {
		marker := " "
		if r.ItemID == itemID {
			marker = "*"
		}
		log.Printf("%s %2d. %.4f %s %s", marker, i+1, r.Score, r.ItemID, r.Preview)
	}
}

func waitForComplete(serverURL, itemID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(serverURL + "/api/v1/items/" + itemID)
		if err != nil {
			return err
		}
		var item struct {
			ProcessingStatus string `json:"processing_status"`
		}
		err = json.NewDecoder(resp.Body).Decode(&item)
		resp.Body.Close()
		if err != nil {
			return err
		}
		switch item.ProcessingStatus {
		case "complete":
			return nil
		case "failed":
			return fmt.Errorf("item %s failed processing", itemID)
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("timed out after %s", timeout)
}

type searchResult struct {
	ItemID  string  `json:"item_id"`
	Score   float32 `json:"score"`
	Preview string  `json:"preview"`
}

func search(ctx context.Context, serverURL, query string) ([]searchResult, error) {
	body, _ := json.Marshal(map[string]any{"query": query, "limit": 10})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}
	var out struct {
		Results []searchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
