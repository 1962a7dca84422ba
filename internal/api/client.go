package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"diary-client/internal/domain"
)

var (
	ErrTransport       = errors.New("backend unreachable")
	ErrInvalidResponse = errors.New("invalid backend response")
)

// APIError representa una respuesta no-2xx del backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend http error: status=%d", e.Status)
	}
	return fmt.Sprintf("backend http error: status=%d: %s", e.Status, e.Message)
}

// LoginResult es el cuerpo de una autenticacion exitosa.
type LoginResult struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// Client habla con el backend REST/JSON del diario de practicas.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient construye un cliente apuntando al backend indicado.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// AuthHeader devuelve el valor del header Authorization para un token.
func AuthHeader(token string) string {
	return "Bearer " + token
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	reqBody := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", reqBody, &out); err != nil {
		return LoginResult{}, err
	}
	if out.Token == "" || out.User.ID == "" {
		return LoginResult{}, fmt.Errorf("login: %w", ErrInvalidResponse)
	}
	return out, nil
}

func (c *Client) Me(ctx context.Context, token string) (domain.User, error) {
	var out struct {
		User *domain.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &out); err != nil {
		return domain.User{}, err
	}
	if out.User == nil || out.User.ID == "" {
		return domain.User{}, fmt.Errorf("me: %w", ErrInvalidResponse)
	}
	return *out.User, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		bodyBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", AuthHeader(token))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("backend error response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return &APIError{Status: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", ErrInvalidResponse, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Error)
}

// ErrorMessage extrae un mensaje apto para mostrar al usuario, o "" si el
// error no trae mensaje del servidor.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
