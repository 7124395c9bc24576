package upgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL  = "https://api.unisenzaplus.com/v1"
	DefaultTokenURL = "https://auth.unisenzaplus.com/oauth2/token"
	DefaultClientID = "unisenza-plus-app"
)

// API is the request surface a Client is built on.
type API interface {
	ListGateways(ctx context.Context) ([]GatewayRecord, error)
	DeviceState(ctx context.Context, deviceID string) (DeviceState, error)
	UpdateDeviceState(ctx context.Context, deviceID string, patch StatePatch) (DeviceState, error)
	Close() error
}

type apiOptions struct {
	baseURL    string
	tokenURL   string
	clientID   string
	httpClient *http.Client
}

// Option customises CreateAPI.
type Option func(*apiOptions)

func WithBaseURL(baseURL string) Option {
	return func(o *apiOptions) { o.baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/") }
}

func WithTokenURL(tokenURL string) Option {
	return func(o *apiOptions) { o.tokenURL = strings.TrimSpace(tokenURL) }
}

func WithClientID(clientID string) Option {
	return func(o *apiOptions) { o.clientID = strings.TrimSpace(clientID) }
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *apiOptions) { o.httpClient = client }
}

// HTTPAPI talks to the vendor REST API with an OAuth2 bearer token.
type HTTPAPI struct {
	baseURL    string
	httpClient *http.Client
	cancel     context.CancelFunc
}

// CreateAPI authenticates with the account credentials and returns an API
// handle. Rejected credentials produce *AuthenticationError; anything else
// produces *ClientError.
func CreateAPI(ctx context.Context, username, password string, opts ...Option) (*HTTPAPI, error) {
	o := apiOptions{
		baseURL:    DefaultBaseURL,
		tokenURL:   DefaultTokenURL,
		clientID:   DefaultClientID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if username == "" || password == "" {
		return nil, &AuthenticationError{Reason: "username and password are required"}
	}

	cfg := &oauth2.Config{
		ClientID: o.clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  o.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	loginCtx := context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	token, err := cfg.PasswordCredentialsToken(loginCtx, username, password)
	if err != nil {
		return nil, classifyLoginError(err)
	}

	// The token source outlives the login call; it refreshes on its own context.
	sourceCtx, cancel := context.WithCancel(context.WithValue(context.Background(), oauth2.HTTPClient, o.httpClient))
	client := oauth2.NewClient(sourceCtx, cfg.TokenSource(sourceCtx, token))
	client.Timeout = o.httpClient.Timeout

	return &HTTPAPI{
		baseURL:    o.baseURL,
		httpClient: client,
		cancel:     cancel,
	}, nil
}

func classifyLoginError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden ||
			retrieveErr.ErrorCode == "invalid_grant" || retrieveErr.ErrorCode == "invalid_client" {
			reason := retrieveErr.ErrorDescription
			if reason == "" {
				reason = retrieveErr.ErrorCode
			}
			return &AuthenticationError{Reason: reason, Err: err}
		}
		return &ClientError{Op: "login", Status: status, Body: string(retrieveErr.Body), Err: err}
	}
	return &ClientError{Op: "login", Err: err}
}

func (a *HTTPAPI) ListGateways(ctx context.Context) ([]GatewayRecord, error) {
	var resp []GatewayRecord
	if err := a.do(ctx, "list gateways", http.MethodGet, "/gateways", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (a *HTTPAPI) DeviceState(ctx context.Context, deviceID string) (DeviceState, error) {
	var state DeviceState
	path := fmt.Sprintf("/devices/%s/state", url.PathEscape(deviceID))
	if err := a.do(ctx, "device state", http.MethodGet, path, nil, &state); err != nil {
		return DeviceState{}, err
	}
	return state, nil
}

func (a *HTTPAPI) UpdateDeviceState(ctx context.Context, deviceID string, patch StatePatch) (DeviceState, error) {
	var state DeviceState
	path := fmt.Sprintf("/devices/%s/state", url.PathEscape(deviceID))
	if err := a.do(ctx, "update device state", http.MethodPatch, path, patch, &state); err != nil {
		return DeviceState{}, err
	}
	return state, nil
}

// Close stops the token source. In-flight requests are not interrupted.
func (a *HTTPAPI) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

func (a *HTTPAPI) do(ctx context.Context, op, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &ClientError{Op: op, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return &ClientError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &ClientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &ClientError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
