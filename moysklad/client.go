package moysklad

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/almasoft/crm_backend/models"
)

const defaultBaseURL = "https://api.moysklad.ru/api/remap/1.2"
const defaultPageLimit = 100

// AuthError marks credential rejections (401/403). The worker treats
// these as fatal for the whole run instead of retrying.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("moysklad auth rejected (%d): %s", e.StatusCode, e.Body)
}

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// SourceUnavailableError marks a request that stayed broken through
// every retry. The worker aborts the whole run on it instead of moving
// on to the next entity type.
type SourceUnavailableError struct {
	Attempts int
	Err      error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("moysklad unavailable after %d attempts: %s", e.Attempts, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func IsSourceUnavailable(err error) bool {
	var se *SourceUnavailableError
	return errors.As(err, &se)
}

type msClient struct {
	baseURL    string
	authHeader string
	http       *http.Client
	limiter    <-chan time.Time
	maxRetries int
}

// newClient builds a client from stored integration credentials. Token
// auth wins when both token and login are present.
func newClient(creds *models.IntegrationCredentials) (*msClient, error) {
	baseURL := strings.TrimSpace(creds.BaseURL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("MOYSKLAD_API_BASE_URL"))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var authHeader string
	switch {
	case strings.TrimSpace(creds.Token) != "":
		authHeader = "Bearer " + strings.TrimSpace(creds.Token)
	case strings.TrimSpace(creds.Login) != "":
		pair := strings.TrimSpace(creds.Login) + ":" + creds.Password
		authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(pair))
	default:
		return nil, errors.New("moysklad credentials are empty")
	}

	rateLimitPerMin := int64(45)
	if v := strings.TrimSpace(os.Getenv("MOYSKLAD_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	maxRetries := 3
	if v := strings.TrimSpace(os.Getenv("MOYSKLAD_MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			maxRetries = n
		}
	}

	return &msClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: authHeader,
		http:       &http.Client{Timeout: 30 * time.Second},
		limiter:    time.Tick(interval),
		maxRetries: maxRetries,
	}, nil
}

// getList fetches one page of a collection endpoint. Transient
// failures (429, 5xx, network) are retried with backoff; 401/403 come
// back as AuthError immediately.
func (c *msClient) getList(ctx context.Context, path string, params url.Values) (msListResponse, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return msListResponse{}, ctx.Err()
		case <-c.limiter:
		}

		resp, retryAfter, err := c.doGet(ctx, endpoint)
		if err == nil {
			return resp, nil
		}
		if IsAuthError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return msListResponse{}, err
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}
		sleep := time.Second * time.Duration(1<<attempt)
		if retryAfter > sleep {
			sleep = retryAfter
		}
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		select {
		case <-ctx.Done():
			return msListResponse{}, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return msListResponse{}, &SourceUnavailableError{Attempts: c.maxRetries + 1, Err: lastErr}
}

func (c *msClient) doGet(ctx context.Context, endpoint string) (msListResponse, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return msListResponse{}, 0, err
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json;charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return msListResponse{}, 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return msListResponse{}, 0, &AuthError{StatusCode: resp.StatusCode, Body: trimBody(body)}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return msListResponse{}, retryAfter, fmt.Errorf("moysklad rate limited (429): %s", trimBody(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return msListResponse{}, 0, fmt.Errorf("moysklad api error %d: %s", resp.StatusCode, trimBody(body))
	}

	var parsed msListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return msListResponse{}, 0, fmt.Errorf("moysklad: bad response payload: %w", err)
	}
	return parsed, 0, nil
}

// fetchAll walks a collection with limit/offset paging and hands each
// page's rows to fn. Total size comes from the first page's meta.
func (c *msClient) fetchAll(ctx context.Context, path string, extra url.Values, fn func(rows []json.RawMessage) error) (int, error) {
	offset := 0
	total := 0
	for {
		params := url.Values{}
		for k, vs := range extra {
			for _, v := range vs {
				params.Add(k, v)
			}
		}
		params.Set("limit", strconv.Itoa(defaultPageLimit))
		params.Set("offset", strconv.Itoa(offset))

		resp, err := c.getList(ctx, path, params)
		if err != nil {
			return total, err
		}
		if offset == 0 {
			total = resp.Meta.Size
		}
		if len(resp.Rows) == 0 {
			return total, nil
		}
		if err := fn(resp.Rows); err != nil {
			return total, err
		}
		offset += len(resp.Rows)
		if offset >= resp.Meta.Size {
			return total, nil
		}
	}
}

// testConnection verifies credentials by listing organizations and
// reports how many the account has.
func (c *msClient) testConnection(ctx context.Context) (int, error) {
	params := url.Values{}
	params.Set("limit", "1")
	resp, err := c.getList(ctx, "/entity/organization", params)
	if err != nil {
		return 0, err
	}
	return resp.Meta.Size, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func trimBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}
