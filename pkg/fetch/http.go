package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/deploykit/bootforge/pkg/errors"
)

// HTTPService fetches images from plain web servers.
type HTTPService struct {
	client *http.Client

	mu   sync.Mutex
	auth map[string]authData
}

type authData struct {
	username string
	password string
}

func NewHTTPService() *HTTPService {
	return &HTTPService{
		client: http.DefaultClient,
		auth:   make(map[string]authData),
	}
}

func (s *HTTPService) Download(ctx context.Context, ref string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return errors.Wrap(err, "build download request")
	}
	s.applyAuth(req, ref)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "download request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s returned status %d", ref, resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return errors.Wrap(err, "download body copy failed")
	}
	slog.Info("http_download_complete", "ref", ref, "size_mb", n/1024/1024)
	return nil
}

func (s *HTTPService) Show(ctx context.Context, ref string) (*ImageInfo, error) {
	head, err := s.Head(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !head.HasContentLength {
		return nil, fmt.Errorf("server reported no size for %s", ref)
	}
	return &ImageInfo{Size: head.ContentLength, Properties: map[string]string{}}, nil
}

func (s *HTTPService) Head(ctx context.Context, ref string) (*HeadInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, ref, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build head request")
	}
	s.applyAuth(req, ref)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "head request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("head of %s returned status %d", ref, resp.StatusCode)
	}

	info := &HeadInfo{
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}
	if resp.ContentLength >= 0 && resp.Header.Get("Content-Length") != "" {
		info.HasContentLength = true
		info.ContentLength = resp.ContentLength
	}
	return info, nil
}

func (s *HTTPService) IsAuthSetNeeded() bool { return true }

func (s *HTTPService) SetImageAuth(ref string, auth map[string]string) error {
	if auth == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth[ref] = authData{username: auth["username"], password: auth["password"]}
	return nil
}

func (s *HTTPService) TransferVerifiedChecksum() string { return "" }

func (s *HTTPService) applyAuth(req *http.Request, ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.auth[ref]; ok && a.username != "" {
		req.SetBasicAuth(a.username, a.password)
	}
}
