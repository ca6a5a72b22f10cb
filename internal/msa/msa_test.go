package msa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quasar/pmc/internal/pmcerr"
)

type stubServer struct {
	mux *http.ServeMux
}

func newStubServer(t *testing.T, tokenResponses []msaTokenResponse) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/devicecode", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(DeviceCode{
			DeviceCode:      "dc-1",
			UserCode:        "ABCD-EFGH",
			VerificationURI: "https://microsoft.com/devicelogin",
			ExpiresIn:       900,
			Interval:        0,
		})
	})

	call := 0
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		resp := tokenResponses[call]
		if call < len(tokenResponses)-1 {
			call++
		}
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/xbox", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"Token": "xbl-token",
			"DisplayClaims": map[string]any{
				"xui": []map[string]string{{"uhs": "user-hash"}},
			},
		})
	})

	mux.HandleFunc("/xsts", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"Token": "xsts-token",
			"DisplayClaims": map[string]any{
				"xui": []map[string]string{{"uhs": "user-hash"}},
			},
		})
	})

	mux.HandleFunc("/mclogin", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mcLoginResponse{AccessToken: "mc-token", ExpiresIn: 86400})
	})

	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mcProfile{ID: "uuid-123", Name: "Steve"})
	})

	srv := httptest.NewServer(mux)

	c := NewClient("test-client-id")
	c.http = srv.Client()
	deviceCodeURL = srv.URL + "/devicecode"
	tokenURL = srv.URL + "/token"
	xboxAuthURL = srv.URL + "/xbox"
	xstsAuthURL = srv.URL + "/xsts"
	mcLoginURL = srv.URL + "/mclogin"
	mcProfileURL = srv.URL + "/profile"

	return srv, c
}

func restoreMSAURLs() {
	deviceCodeURL = "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode"
	tokenURL = "https://login.microsoftonline.com/consumers/oauth2/v2.0/token"
	xboxAuthURL = "https://user.auth.xboxlive.com/user/authenticate"
	xstsAuthURL = "https://xsts.auth.xboxlive.com/xsts/authorize"
	mcLoginURL = "https://api.minecraftservices.com/authentication/login_with_xbox"
	mcProfileURL = "https://api.minecraftservices.com/minecraft/profile"
}

func TestLogin_FullChainSucceeds(t *testing.T) {
	srv, c := newStubServer(t, []msaTokenResponse{
		{AccessToken: "msa-token", RefreshToken: "refresh-token", ExpiresIn: 3600},
	})
	defer srv.Close()
	defer restoreMSAURLs()

	var gotCode *DeviceCode
	session, err := c.Login(context.Background(), func(dc *DeviceCode) { gotCode = dc })
	if err != nil {
		t.Fatal(err)
	}
	if gotCode == nil || gotCode.UserCode != "ABCD-EFGH" {
		t.Fatalf("expected onCode callback with user code, got %+v", gotCode)
	}
	if session.ID != "uuid-123" || session.Username != "Steve" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.AccessToken != "mc-token" || session.MSARefreshToken != "refresh-token" {
		t.Fatalf("unexpected token fields: %+v", session)
	}
}

func TestLogin_PendingThenSuccess(t *testing.T) {
	srv, c := newStubServer(t, []msaTokenResponse{
		{Error: "authorization_pending"},
		{AccessToken: "msa-token", RefreshToken: "refresh-token", ExpiresIn: 3600},
	})
	defer srv.Close()
	defer restoreMSAURLs()

	session, err := c.Login(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if session.ID != "uuid-123" {
		t.Fatalf("expected eventual success, got %+v", session)
	}
}

func TestLogin_UserDeclines(t *testing.T) {
	srv, c := newStubServer(t, []msaTokenResponse{
		{Error: "authorization_declined"},
	})
	defer srv.Close()
	defer restoreMSAURLs()

	_, err := c.Login(context.Background(), nil)
	if !pmcerr.Is(err, pmcerr.KindAuthDeclined) {
		t.Fatalf("expected auth_declined, got %v", err)
	}
}

func TestLogin_UnknownTokenError(t *testing.T) {
	srv, c := newStubServer(t, []msaTokenResponse{
		{Error: "invalid_grant"},
	})
	defer srv.Close()
	defer restoreMSAURLs()

	_, err := c.Login(context.Background(), nil)
	if !pmcerr.Is(err, pmcerr.KindAuthUnknown) {
		t.Fatalf("expected auth_unknown, got %v", err)
	}
}

func TestFetchProfile_NotFoundMeansDoesNotOwnGame(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer restoreMSAURLs()

	c := NewClient("test-client-id")
	c.http = srv.Client()
	mcProfileURL = srv.URL + "/profile"

	_, err := c.fetchProfile(context.Background(), "tok")
	if !pmcerr.Is(err, pmcerr.KindAuthDoesNotOwnGame) {
		t.Fatalf("expected auth_does_not_own_game, got %v", err)
	}
}

func TestAuthenticateXSTS_EmptyTokenRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xsts", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"Token": ""})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer restoreMSAURLs()

	c := NewClient("test-client-id")
	c.http = srv.Client()
	xstsAuthURL = srv.URL + "/xsts"

	_, err := c.authenticateXSTS(context.Background(), "xbl-token")
	if !pmcerr.Is(err, pmcerr.KindAuthDoesNotOwnGame) {
		t.Fatalf("expected auth_does_not_own_game, got %v", err)
	}
}
