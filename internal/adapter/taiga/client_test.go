package taiga

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgesync/ticketbridge/internal/domain"
	"github.com/forgesync/ticketbridge/internal/domain/link"
	"github.com/forgesync/ticketbridge/internal/port/remote"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token")
}

func TestCreateIssueResolvesStatusByName(t *testing.T) {
	var gotCreate map[string]any

	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/issue-statuses":
			_ = json.NewEncoder(w).Encode([]remote.Status{
				{ID: 10, Name: "New"},
				{ID: 11, Name: "In progress"},
			})
		case "/api/v1/issues":
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("missing auth header, got %q", got)
			}
			_ = json.NewDecoder(r.Body).Decode(&gotCreate)
			_ = json.NewEncoder(w).Encode(remote.Item{ID: 99, Ref: 7, Subject: "Bug X"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	item, err := c.CreateItem(context.Background(), 42, link.TicketIssue, remote.NewItem{
		Subject:     "Bug X",
		Description: "It crashes",
		StatusName:  "In progress",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.Ref != 7 {
		t.Errorf("expected ref 7, got %d", item.Ref)
	}
	if gotCreate["status"] != float64(11) {
		t.Errorf("expected status id 11 in payload, got %v", gotCreate["status"])
	}
}

func TestCreateUserStorySkipsStatusLookup(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/userstories" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(remote.Item{ID: 5, Ref: 3})
	})

	item, err := c.CreateItem(context.Background(), 42, link.TicketUserStory, remote.NewItem{
		Subject: "Story",
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.Ref != 3 {
		t.Errorf("expected ref 3, got %d", item.Ref)
	}
}

func TestGetItemByRefNotFound(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetItemByRef(context.Background(), 42, link.TicketIssue, 7)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddCommentPatchesWithVersion(t *testing.T) {
	var got map[string]any

	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/v1/issues/99" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	item := &remote.Item{ID: 99, Version: 4}
	if err := c.AddComment(context.Background(), link.TicketIssue, item, "looks fixed"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if got["comment"] != "looks fixed" {
		t.Errorf("expected comment in payload, got %v", got["comment"])
	}
	if got["version"] != float64(4) {
		t.Errorf("expected version 4, got %v", got["version"])
	}
}

func TestListStatusesKindPaths(t *testing.T) {
	var paths []string
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_ = json.NewEncoder(w).Encode([]remote.Status{})
	})

	ctx := context.Background()
	if _, err := c.ListStatuses(ctx, 1, link.TicketIssue); err != nil {
		t.Fatalf("ListStatuses issue: %v", err)
	}
	if _, err := c.ListStatuses(ctx, 1, link.TicketUserStory); err != nil {
		t.Fatalf("ListStatuses userstory: %v", err)
	}

	want := []string{"/api/v1/issue-statuses", "/api/v1/userstory-statuses"}
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("expected path %s, got %s", p, paths[i])
		}
	}
}

func TestServerErrorSurfacesBody(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"invalid status"}`))
	})

	err := c.DeleteItem(context.Background(), link.TicketIssue, 99)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}
