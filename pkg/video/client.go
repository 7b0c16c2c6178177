package video

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ankit50/mediMeet/pkg/circuitbreaker"
)

const defaultAPIURL = "https://video.api.vonage.com"

type Config struct {
	APIURL         string
	ApplicationID  string
	PrivateKeyPEM  []byte
	RequestTimeout time.Duration
}

// Client talks to the Vonage Video API. Application auth uses a short-lived
// RS256 JWT; client tokens are minted locally with the same key.
type Client struct {
	apiURL        string
	applicationID string
	privateKey    *rsa.PrivateKey
	httpClient    *http.Client
	cb            *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) (*Client, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse video private key: %w", err)
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		apiURL:        apiURL,
		applicationID: cfg.ApplicationID,
		privateKey:    key,
		httpClient:    &http.Client{Timeout: timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "video-provider",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}, nil
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

func (c *Client) CreateSession(ctx context.Context) (string, error) {
	appToken, err := c.applicationToken()
	if err != nil {
		return "", fmt.Errorf("failed to build application token: %w", err)
	}

	var sessionID string
	err = c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/session/create", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+appToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("session create returned status %d", resp.StatusCode)
		}

		var sessions []sessionResponse
		if err := json.Unmarshal(body, &sessions); err != nil {
			return fmt.Errorf("failed to decode session response: %w", err)
		}
		if len(sessions) == 0 || sessions[0].SessionID == "" {
			return fmt.Errorf("session create returned no session")
		}

		sessionID = sessions[0].SessionID
		return nil
	})
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

func (c *Client) IssueToken(sessionID string, opts TokenOptions) (string, error) {
	role := opts.Role
	if role == "" {
		role = "publisher"
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"application_id":  c.applicationID,
		"scope":           "session.connect",
		"session_id":      sessionID,
		"role":            role,
		"connection_data": opts.Data,
		"iat":             now.Unix(),
		"exp":             opts.ExpiresAt.Unix(),
		"jti":             uuid.New().String(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign client token: %w", err)
	}
	return token, nil
}

func (c *Client) applicationToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"application_id": c.applicationID,
		"iat":            now.Unix(),
		"exp":            now.Add(5 * time.Minute).Unix(),
		"jti":            uuid.New().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
}
