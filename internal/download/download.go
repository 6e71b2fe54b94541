package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// InswapperURL is where the swap model weights are published
const InswapperURL = "https://huggingface.co/CountFloyd/deepfake/resolve/main/inswapper_128.onnx"

// Asset is a model file expected in the models directory.
// Assets without URL cannot be fetched and must be placed there by hand.
type Asset struct {
	Name string
	URL  string
}

// Fetcher keeps a models directory populated
type Fetcher struct {
	log    *zap.Logger
	dir    string
	assets []Asset
	client *http.Client
	out    io.Writer
}

// New creates a fetcher for dir. Progress is drawn to out, nil disables it.
func New(log *zap.Logger, dir string, assets []Asset, out io.Writer) *Fetcher {
	if out == nil {
		out = io.Discard
	}
	return &Fetcher{
		log:    log.Named("DOWNLOAD"),
		dir:    dir,
		assets: assets,
		client: &http.Client{},
		out:    out,
	}
}

// Ensure downloads every missing asset that has a URL and reports the ones that are still missing
func (f *Fetcher) Ensure(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	var missing []error
	for _, asset := range f.assets {
		path := filepath.Join(f.dir, asset.Name)
		if exists(path) {
			continue
		}
		if asset.URL == "" {
			missing = append(missing, fmt.Errorf("model %s not found in %s", asset.Name, f.dir))
			continue
		}

		f.log.Info("downloading model", zap.String("name", asset.Name), zap.String("url", asset.URL))
		if err := f.fetch(ctx, asset, path); err != nil {
			return err
		}
	}
	return errors.Join(missing...)
}

func (f *Fetcher) fetch(ctx context.Context, asset Asset, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", asset.Name, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.dir, asset.Name+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetDescription(asset.Name),
		progressbar.OptionSetWriter(f.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(10),
	)

	if _, err := io.Copy(io.MultiWriter(tmp, bar), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download %s: %w", asset.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", asset.Name, err)
	}
	_ = bar.Finish()

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", asset.Name, err)
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
