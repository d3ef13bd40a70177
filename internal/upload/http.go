package upload

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/quic-go/quic-go/http3"

	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/pkg/version"
)

// HTTPService PUTs each file to {URL}/{name}.
type HTTPService struct {
	base    string
	client  *http.Client
	headers map[string]string
}

func NewHTTPService(cfg config.HTTPUploadConfig) (*HTTPService, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upload url %q", cfg.URL)
	}

	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.HTTP3 {
		if u.Scheme != "https" {
			return nil, fmt.Errorf("http3 uploads need an https url")
		}
		client.Transport = &http3.RoundTripper{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS13},
		}
	}
	return newHTTPService(cfg.URL, client, cfg.Headers), nil
}

func newHTTPService(base string, client *http.Client, headers map[string]string) *HTTPService {
	return &HTTPService{
		base:    strings.TrimRight(base, "/"),
		client:  client,
		headers: headers,
	}
}

func (s *HTTPService) UploadFile(ctx context.Context, file File) error {
	target := s.base + "/" + url.PathEscape(file.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(file.Payload))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = int64(len(file.Payload))
	if file.ContentType != "" {
		req.Header.Set("Content-Type", file.ContentType)
	}
	req.Header.Set("User-Agent", version.GetInfo().UserAgent())
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload %s: %s: %s", file.Name, resp.Status, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close releases idle connections, including QUIC ones.
func (s *HTTPService) Close() error {
	if rt, ok := s.client.Transport.(*http3.RoundTripper); ok {
		return rt.Close()
	}
	s.client.CloseIdleConnections()
	return nil
}
