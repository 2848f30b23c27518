package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxHTTPStoreResponseBytes caps the amount of body data read from a remote
// store response, so a misbehaving server cannot exhaust client memory.
const maxHTTPStoreResponseBytes = 1 << 20 // 1 MiB

// httpStoreTimeout bounds every single request made by an HTTPStore.
const httpStoreTimeout = 15 * time.Second

// HTTPStore is a Backend backed by a remote object store reachable over
// PUT/GET/DELETE /objects/{key} and GET /objects?prefix=.
type HTTPStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPStore returns an HTTPStore targeting baseURL (e.g.
// "https://store.internal:8443"). token, when non-empty, is sent as a
// bearer token on every request.
func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

type httpStoreError struct {
	Error string `json:"error"`
}

func (h *HTTPStore) setCommonHeaders(req *http.Request) {
	req.Header.Set("X-Request-ID", uuid.NewString())
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
}

func (h *HTTPStore) do(req *http.Request) ([]byte, int, error) {
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxHTTPStoreResponseBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("storage: read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (h *HTTPStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, httpStoreTimeout)
	defer cancel()

	u := h.baseURL + "/objects/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(value))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	h.setCommonHeaders(req)

	body, status, err := h.do(req)
	if err != nil {
		return err
	}
	if status >= 400 {
		return storeErrorFromBody(http.MethodPut, u, status, body)
	}
	return nil
}

func (h *HTTPStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, httpStoreTimeout)
	defer cancel()

	u := h.baseURL + "/objects/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	h.setCommonHeaders(req)

	body, status, err := h.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status >= 400 {
		return nil, storeErrorFromBody(http.MethodGet, u, status, body)
	}
	return body, nil
}

func (h *HTTPStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, httpStoreTimeout)
	defer cancel()

	u := h.baseURL + "/objects/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	h.setCommonHeaders(req)

	body, status, err := h.do(req)
	if err != nil {
		return err
	}
	if status >= 400 && status != http.StatusNotFound {
		return storeErrorFromBody(http.MethodDelete, u, status, body)
	}
	return nil
}

func (h *HTTPStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, httpStoreTimeout)
	defer cancel()

	u := h.baseURL + "/objects?prefix=" + url.QueryEscape(prefix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	h.setCommonHeaders(req)

	body, status, err := h.do(req)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, storeErrorFromBody(http.MethodGet, u, status, body)
	}

	var keys []string
	if len(body) > 0 {
		if err := json.Unmarshal(body, &keys); err != nil {
			return nil, fmt.Errorf("storage: unmarshal list response: %w", err)
		}
	}
	return keys, nil
}

func storeErrorFromBody(method, path string, status int, body []byte) error {
	var errResp httpStoreError
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("storage: %s %s -> %d: %s", method, path, status, errResp.Error)
	}
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	if snippet != "" {
		return fmt.Errorf("storage: %s %s -> %d: %s", method, path, status, snippet)
	}
	return fmt.Errorf("storage: %s %s -> %d", method, path, status)
}
