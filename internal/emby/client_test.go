// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package emby

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func verifyEmbyHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	checkStringEqual(t, "X-Emby-Token", r.Header.Get("X-Emby-Token"), "test-api-key")
	checkStringEqual(t, "X-Emby-Client", r.Header.Get("X-Emby-Client"), "Playtally")
	checkStringEqual(t, "Accept", r.Header.Get("Accept"), "application/json")
}

func newTestClient(serverURL string) *Client {
	return NewClient(ClientConfig{BaseURL: serverURL, APIKey: "test-api-key"})
}

const sessionsResponse = `[
	{
		"Id": "session-1",
		"UserId": "user-1",
		"UserName": "alice",
		"Client": "Emby Web",
		"DeviceName": "Living Room",
		"NowPlayingItem": {
			"Id": "item-1",
			"Name": "Heat",
			"Type": "Movie",
			"RunTimeTicks": 102000000000
		},
		"PlayState": {
			"PositionTicks": 9000000000,
			"IsPaused": false,
			"PlayMethod": "DirectPlay"
		}
	},
	{
		"Id": "session-2",
		"UserId": "user-2",
		"UserName": "bob",
		"Client": "Emby Mobile",
		"DeviceName": "Phone"
	}
]`

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantURL string
	}{
		{"basic URL", "http://localhost:8096", "http://localhost:8096"},
		{"trailing slash", "http://localhost:8096/", "http://localhost:8096"},
		{"https", "https://emby.example.com/", "https://emby.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(ClientConfig{BaseURL: tt.baseURL, APIKey: "k"})
			checkStringEqual(t, "baseURL", client.baseURL, tt.wantURL)
			checkTrue(t, "httpClient not nil", client.httpClient != nil)
		})
	}
}

func TestGetSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/Sessions")
		checkStringEqual(t, "method", r.Method, "GET")
		verifyEmbyHeaders(t, r)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sessionsResponse))
	}))
	defer server.Close()

	sessions, err := newTestClient(server.URL).GetSessions(context.Background())
	checkNoError(t, err)
	checkSliceLen(t, "sessions", len(sessions), 2)

	active := sessions[0]
	checkStringEqual(t, "session.ID", active.ID, "session-1")
	checkStringEqual(t, "session.UserName", active.UserName, "alice")
	checkTrue(t, "session 1 is playing", active.IsPlaying())
	if got := active.PositionMs(); got != 900_000 {
		t.Errorf("position = %d, want 900000", got)
	}

	idle := sessions[1]
	checkTrue(t, "session 2 is idle", !idle.IsActive())
}

func TestGetUsers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/Users")
		verifyEmbyHeaders(t, r)
		_, _ = w.Write([]byte(`[{"Id":"u1","Name":"alice"},{"Id":"u2","Name":"bob"}]`))
	}))
	defer server.Close()

	users, err := newTestClient(server.URL).GetUsers(context.Background())
	checkNoError(t, err)
	checkSliceLen(t, "users", len(users), 2)
	checkStringEqual(t, "users[0].ID", users[0].ID, "u1")
	checkStringEqual(t, "users[1].Name", users[1].Name, "bob")
}

func TestGetItemsPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/Items")
		q := r.URL.Query()
		checkStringEqual(t, "IncludeItemTypes", q.Get("IncludeItemTypes"), "Movie,Series,Episode")
		checkStringEqual(t, "Recursive", q.Get("Recursive"), "true")
		checkStringEqual(t, "Fields", q.Get("Fields"), "DateCreated,MediaStreams,MediaSources")
		checkStringEqual(t, "StartIndex", q.Get("StartIndex"), "200")
		checkStringEqual(t, "Limit", q.Get("Limit"), "200")

		_, _ = w.Write([]byte(`{
			"Items": [{"Id":"i1","Name":"Heat","Type":"Movie"}],
			"TotalRecordCount": 401
		}`))
	}))
	defer server.Close()

	page, err := newTestClient(server.URL).GetItemsPage(context.Background(), 200, 200)
	checkNoError(t, err)
	checkIntEqual(t, "TotalRecordCount", page.TotalRecordCount, 401)
	checkSliceLen(t, "items", len(page.Items), 1)
	checkStringEqual(t, "items[0].ID", page.Items[0].ID, "i1")
}

func TestGetUserPlayedItemsPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/Users/u1/Items")
		q := r.URL.Query()
		checkStringEqual(t, "IsPlayed", q.Get("IsPlayed"), "true")
		checkStringEqual(t, "IncludeItemTypes", q.Get("IncludeItemTypes"), "Movie,Episode")
		checkStringEqual(t, "Fields", q.Get("Fields"), "RunTimeTicks,UserData")

		_, _ = w.Write([]byte(`{
			"Items": [{"Id":"m1","RunTimeTicks":60000000000,"UserData":{"PlayCount":3}}],
			"TotalRecordCount": 1
		}`))
	}))
	defer server.Close()

	page, err := newTestClient(server.URL).GetUserPlayedItemsPage(context.Background(), "u1", 0, 200)
	checkNoError(t, err)
	checkSliceLen(t, "items", len(page.Items), 1)
	if page.Items[0].UserData == nil || page.Items[0].UserData.PlayCount != 3 {
		t.Errorf("unexpected user data: %+v", page.Items[0].UserData)
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/System/Ping")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checkNoError(t, newTestClient(server.URL).Ping(context.Background()))
}

func TestNon2xxReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Access token is invalid"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetSessions(context.Background())
	checkError(t, err)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	checkIntEqual(t, "status", apiErr.StatusCode, http.StatusUnauthorized)
	checkErrorContains(t, err, "401")
}

func TestMalformedResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetUsers(context.Background())
	checkErrorContains(t, err, "decode")
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL).GetSessions(ctx)
	checkError(t, err)
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Id":"u1","Name":"alice"}]`))
	}))
	defer server.Close()

	cbc := NewCircuitBreakerClient(ClientConfig{BaseURL: server.URL, APIKey: "test-api-key"})

	users, err := cbc.GetUsers(context.Background())
	checkNoError(t, err)
	checkSliceLen(t, "users", len(users), 1)
}

func TestCircuitBreakerPropagatesFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cbc := NewCircuitBreakerClient(ClientConfig{BaseURL: server.URL, APIKey: "test-api-key"})

	_, err := cbc.GetSessions(context.Background())
	checkError(t, err)
}
