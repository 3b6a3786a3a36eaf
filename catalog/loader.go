package catalog

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
)

// Loader fetches the raw bytes of a named JSON index.
type Loader interface {
	Load(ctx context.Context, name string) ([]byte, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, name string) ([]byte, error)

// Load calls f(ctx, name).
func (f LoaderFunc) Load(ctx context.Context, name string) ([]byte, error) {
	return f(ctx, name)
}

// DirLoader reads indexes from a file system, such as os.DirFS or an
// embedded FS.
func DirLoader(fsys fs.FS) Loader {
	return LoaderFunc(func(ctx context.Context, name string) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	})
}

// maxIndexSize bounds the body read by HTTPLoader.
const maxIndexSize = 16 << 20

// HTTPLoader fetches indexes with GET requests below baseURL.
// A nil client uses http.DefaultClient.
func HTTPLoader(baseURL string, client *http.Client) Loader {
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimRight(baseURL, "/")
	return LoaderFunc(func(ctx context.Context, name string) ([]byte, error) {
		url := base + "/" + name
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", url, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("load %s: %d", url, resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexSize))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", url, err)
		}
		return data, nil
	})
}
