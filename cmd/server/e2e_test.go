package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/repository/sqldb"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/source"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/config"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/services"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
)

type listBody struct {
	Items []struct {
		ID              string `json:"id"`
		Text            string `json:"text"`
		OccurrenceCount int64  `json:"occurrenceCount"`
		LikeCount       int64  `json:"likeCount"`
		DislikeCount    int64  `json:"dislikeCount"`
	} `json:"items"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

func TestIntegration(t *testing.T) {
	ctx := context.Background()

	// 1. Setup DB
	dbURL := "file:" + filepath.Join(t.TempDir(), "facts.db")
	repo, err := sqldb.Open(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to init db: %v", err)
	}
	defer repo.Close()

	// 2. Setup fact source
	payload := `{"data":["Cats sleep 16 hours.","Cats have whiskers.","cats sleep 16 hours."]}`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer upstream.Close()

	// 3. Setup services and router
	facts := services.NewFactService(repo, 10)
	ingestion := services.NewIngestionService(repo, source.NewHTTPSource(upstream.URL, 5*time.Second, nil), nil, logger.Discard())
	server := httptest.NewServer(handler.NewRouter(&config.Config{}, facts, logger.Discard()))
	defer server.Close()

	client := server.Client()

	// TEST 1: Empty store
	resp, err := client.Get(server.URL + "/api/v1/facts")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Empty list expected 404, got %d", resp.StatusCode)
	}

	// TEST 2: Ingest twice
	for i := 0; i < 2; i++ {
		if _, err := ingestion.Run(ctx); err != nil {
			t.Fatalf("Ingestion run %d failed: %v", i, err)
		}
	}

	// TEST 3: List by occurrence
	resp, err = client.Get(server.URL + "/api/v1/facts?order=Occurrence&descending=true")
	if err != nil {
		t.Fatal(err)
	}
	var list listBody
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("List expected 200, got %d", resp.StatusCode)
	}
	if list.TotalItems != 2 || list.TotalPages != 1 {
		t.Fatalf("Expected 2 facts on 1 page, got %+v", list)
	}
	if list.Items[0].Text != "Cats sleep 16 hours." || list.Items[0].OccurrenceCount != 4 {
		t.Errorf("Top fact = %+v", list.Items[0])
	}
	if list.Items[1].OccurrenceCount != 2 {
		t.Errorf("Second fact = %+v", list.Items[1])
	}

	// TEST 4: Like and dislike
	id := list.Items[1].ID
	for _, action := range []string{"like", "like", "dislike"} {
		resp, err = client.Post(server.URL+"/api/v1/facts/"+id+"/"+action, "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s expected 200, got %d", action, resp.StatusCode)
		}
	}

	resp, err = client.Get(server.URL + "/api/v1/facts?order=Popularity&descending=true")
	if err != nil {
		t.Fatal(err)
	}
	list = listBody{}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if list.Items[0].ID != id || list.Items[0].LikeCount != 2 || list.Items[0].DislikeCount != 1 {
		t.Errorf("Most popular = %+v", list.Items[0])
	}

	// TEST 5: Unknown fact
	resp, err = client.Post(server.URL+"/api/v1/facts/00000000-0000-0000-0000-000000000000/like", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var notice domain.Notice
	json.NewDecoder(resp.Body).Decode(&notice)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound || notice.Category != domain.CategoryInformation {
		t.Errorf("Unknown like = %d %+v", resp.StatusCode, notice)
	}

	// TEST 6: Export (Dump)
	dumped, err := repo.Dump(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dumped) != 2 {
		t.Errorf("Expected 2 facts in dump, got %d", len(dumped))
	}
	for _, f := range dumped {
		if f.Source != upstream.URL {
			t.Errorf("Fact source = %q", f.Source)
		}
	}
}
