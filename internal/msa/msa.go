// Package msa implements the Microsoft device-code authentication chain
// (device code -> Xbox Live -> XSTS -> Minecraft services) that produces
// the bearer-token-shaped authdb.Session spec.md §3 says survives as a
// supporting collaborator even though the flow itself is out of scope.
package msa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/quasar/pmc/internal/authdb"
	"github.com/quasar/pmc/internal/pmcerr"
)

var (
	deviceCodeURL = "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode"
	tokenURL      = "https://login.microsoftonline.com/consumers/oauth2/v2.0/token"
	xboxAuthURL   = "https://user.auth.xboxlive.com/user/authenticate"
	xstsAuthURL   = "https://xsts.auth.xboxlive.com/xsts/authorize"
	mcLoginURL    = "https://api.minecraftservices.com/authentication/login_with_xbox"
	mcProfileURL  = "https://api.minecraftservices.com/minecraft/profile"
)

// Client drives the device-code flow against a single client id.
type Client struct {
	http     *http.Client
	clientID string
}

// NewClient builds a Client for the given Azure AD application id.
func NewClient(clientID string) *Client {
	return &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		clientID: clientID,
	}
}

// DeviceCode is what the caller shows the user: a verification URL and a
// short code to enter there.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	Message         string `json:"message"`
}

// RequestDeviceCode starts the flow.
func (c *Client) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	form := url.Values{
		"client_id": {c.clientID},
		"scope":     {"XboxLive.signin offline_access"},
	}
	var dc DeviceCode
	if err := c.postForm(ctx, deviceCodeURL, form, &dc); err != nil {
		return nil, err
	}
	return &dc, nil
}

type msaTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
}

// pollForToken blocks, polling at dc.Interval, until the user authorizes
// the device code or it expires; ctx cancellation aborts the poll.
func (c *Client) pollForToken(ctx context.Context, dc *DeviceCode) (*msaTokenResponse, error) {
	interval := time.Duration(dc.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second)

	form := url.Values{
		"client_id":   {c.clientID},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {dc.DeviceCode},
	}

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, pmcerr.Wrap(pmcerr.KindAuthTimedOut, ctx.Err(), "device code poll cancelled")
		case <-time.After(interval):
		}

		var result msaTokenResponse
		if err := c.postForm(ctx, tokenURL, form, &result); err != nil {
			continue // transient network error while polling; keep trying until deadline
		}

		switch result.Error {
		case "":
			return &result, nil
		case "authorization_pending":
			continue
		case "slow_down":
			interval += 5 * time.Second
		case "authorization_declined":
			return nil, pmcerr.New(pmcerr.KindAuthDeclined, "user declined the device code authorization")
		default:
			return nil, pmcerr.New(pmcerr.KindAuthUnknown, "microsoft token error: "+result.Error)
		}
	}
	return nil, pmcerr.New(pmcerr.KindAuthTimedOut, "timed out waiting for device code authorization")
}

type xboxAuthRequest struct {
	Properties   xboxAuthProperties `json:"Properties"`
	RelyingParty string             `json:"RelyingParty"`
	TokenType    string             `json:"TokenType"`
}

type xboxAuthProperties struct {
	AuthMethod string   `json:"AuthMethod,omitempty"`
	SiteName   string   `json:"SiteName,omitempty"`
	RpsTicket  string   `json:"RpsTicket,omitempty"`
	SandboxID  string   `json:"SandboxId,omitempty"`
	UserTokens []string `json:"UserTokens,omitempty"`
}

type xboxAuthResponse struct {
	Token         string `json:"Token"`
	DisplayClaims struct {
		XUI []struct {
			UHS string `json:"uhs"`
		} `json:"xui"`
	} `json:"DisplayClaims"`
}

func (r *xboxAuthResponse) userHash() string {
	if len(r.DisplayClaims.XUI) == 0 {
		return ""
	}
	return r.DisplayClaims.XUI[0].UHS
}

func (c *Client) authenticateXbox(ctx context.Context, msaAccessToken string) (*xboxAuthResponse, error) {
	body := xboxAuthRequest{
		Properties: xboxAuthProperties{
			AuthMethod: "RPS",
			SiteName:   "user.auth.xboxlive.com",
			RpsTicket:  "d=" + msaAccessToken,
		},
		RelyingParty: "http://auth.xboxlive.com",
		TokenType:    "JWT",
	}
	var result xboxAuthResponse
	if err := c.postJSON(ctx, xboxAuthURL, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) authenticateXSTS(ctx context.Context, xboxToken string) (*xboxAuthResponse, error) {
	body := xboxAuthRequest{
		Properties: xboxAuthProperties{
			SandboxID:  "RETAIL",
			UserTokens: []string{xboxToken},
		},
		RelyingParty: "rp://api.minecraftservices.com/",
		TokenType:    "JWT",
	}
	var result xboxAuthResponse
	if err := c.postJSON(ctx, xstsAuthURL, body, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, pmcerr.New(pmcerr.KindAuthDoesNotOwnGame, "xsts authorization returned no token")
	}
	return &result, nil
}

type mcLoginRequest struct {
	IdentityToken string `json:"identityToken"`
}

type mcLoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) loginWithXbox(ctx context.Context, userHash, xstsToken string) (*mcLoginResponse, error) {
	body := mcLoginRequest{IdentityToken: fmt.Sprintf("XBL3.0 x=%s;%s", userHash, xstsToken)}
	var result mcLoginResponse
	if err := c.postJSON(ctx, mcLoginURL, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type mcProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) fetchProfile(ctx context.Context, accessToken string) (*mcProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mcProfileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindAuthUnknown, err, "fetching minecraft profile")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return nil, pmcerr.WithPayload(pmcerr.KindAuthDoesNotOwnGame, pmcerr.AuthHTTPStatusPayload{Code: resp.StatusCode}, "account does not own the game")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pmcerr.WithPayload(pmcerr.KindAuthHTTPStatus, pmcerr.AuthHTTPStatusPayload{Code: resp.StatusCode}, "unexpected profile status")
	}

	var profile mcProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindAuthUnknown, err, "decoding minecraft profile")
	}
	return &profile, nil
}

// Login runs the full device-code -> Xbox -> XSTS -> Minecraft-services
// chain, calling onCode once the device code is ready so the caller can
// display it, and returns a Session ready to be stored in an authdb.DB.
func (c *Client) Login(ctx context.Context, onCode func(*DeviceCode)) (*authdb.Session, error) {
	dc, err := c.RequestDeviceCode(ctx)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindAuthUnknown, err, "requesting device code")
	}
	if onCode != nil {
		onCode(dc)
	}

	msaToken, err := c.pollForToken(ctx, dc)
	if err != nil {
		return nil, err
	}

	xbox, err := c.authenticateXbox(ctx, msaToken.AccessToken)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindAuthUnknown, err, "authenticating with xbox live")
	}

	xsts, err := c.authenticateXSTS(ctx, xbox.Token)
	if err != nil {
		return nil, err
	}

	mcLogin, err := c.loginWithXbox(ctx, xsts.userHash(), xsts.Token)
	if err != nil {
		return nil, pmcerr.Wrap(pmcerr.KindAuthUnknown, err, "logging in with xbox token")
	}

	profile, err := c.fetchProfile(ctx, mcLogin.AccessToken)
	if err != nil {
		return nil, err
	}

	return &authdb.Session{
		ID:              profile.ID,
		Kind:            authdb.KindMSA,
		Username:        profile.Name,
		AccessToken:     mcLogin.AccessToken,
		ExpiresAt:       time.Now().Add(time.Duration(mcLogin.ExpiresIn) * time.Second),
		MSARefreshToken: msaToken.RefreshToken,
	}, nil
}

func (c *Client) postForm(ctx context.Context, u string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, u string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-xbl-contract-version", "1")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return pmcerr.WithPayload(pmcerr.KindAuthHTTPStatus, pmcerr.AuthHTTPStatusPayload{Code: resp.StatusCode}, string(body))
	}
	return json.Unmarshal(body, out)
}
