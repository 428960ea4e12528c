package fetch

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/deploykit/bootforge/pkg/errors"
)

// FileService serves file:// references and bare local paths.
type FileService struct{}

func NewFileService() *FileService { return &FileService{} }

func localPath(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return ref
}

func (s *FileService) Download(ctx context.Context, ref string, w io.Writer) error {
	f, err := os.Open(localPath(ref))
	if err != nil {
		return errors.Wrap(err, "open local image")
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return errors.Wrap(err, "copy local image")
}

func (s *FileService) Show(ctx context.Context, ref string) (*ImageInfo, error) {
	st, err := os.Stat(localPath(ref))
	if err != nil {
		return nil, errors.Wrap(err, "stat local image")
	}
	return &ImageInfo{Size: st.Size(), Properties: map[string]string{}}, nil
}

func (s *FileService) Head(ctx context.Context, ref string) (*HeadInfo, error) {
	path := localPath(ref)
	st, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat local image")
	}
	if st.IsDir() {
		// Present directories the way a web server's index page would,
		// so the classifier treats them as listings.
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
		return &HeadInfo{ContentType: "text/html", FinalURL: path}, nil
	}
	return &HeadInfo{
		HasContentLength: true,
		ContentLength:    st.Size(),
		ContentType:      "application/octet-stream",
		FinalURL:         path,
	}, nil
}

func (s *FileService) IsAuthSetNeeded() bool { return false }

func (s *FileService) SetImageAuth(ref string, auth map[string]string) error { return nil }

func (s *FileService) TransferVerifiedChecksum() string { return "" }
