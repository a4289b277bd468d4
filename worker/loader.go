package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wippyai/wasm-hostbridge/errors"
)

// Loader resolves external script references to script text.
type Loader interface {
	Load(ctx context.Context, ref string) (string, error)
}

// LoaderConfig configures the default Loader.
type LoaderConfig struct {
	Root        string        // base directory for relative and file: refs
	AllowRemote bool          // permit http(s) refs
	Timeout     time.Duration // per fetch
	UserAgent   string
}

// ScriptLoader loads scripts from disk and, when allowed, over HTTP.
type ScriptLoader struct {
	http *resty.Client
	cfg  LoaderConfig
}

// NewLoader creates a loader. Remote fetches retry twice on transport
// errors and 5xx responses.
func NewLoader(cfg LoaderConfig) *ScriptLoader {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "wasm-hostbridge/1.0"
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &ScriptLoader{http: client, cfg: cfg}
}

// Load implements Loader.
func (l *ScriptLoader) Load(ctx context.Context, ref string) (string, error) {
	switch {
	case ref == "":
		return "", errors.InvalidInput(errors.PhaseLoad, "empty script reference")
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.fetch(ctx, ref)
	default:
		return l.readFile(strings.TrimPrefix(ref, "file://"))
	}
}

func (l *ScriptLoader) fetch(ctx context.Context, url string) (string, error) {
	if !l.cfg.AllowRemote {
		return "", errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Detail("remote script %q not allowed", url).
			Build()
	}
	resp, err := l.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", errors.Load("fetch "+url, err)
	}
	if resp.IsError() {
		return "", errors.New(errors.PhaseLoad, errors.KindNotFound).
			Detail("fetch %s: %s", url, resp.Status()).
			Value(resp.StatusCode()).
			Build()
	}
	return resp.String(), nil
}

func (l *ScriptLoader) readFile(ref string) (string, error) {
	root, err := filepath.Abs(l.cfg.Root)
	if err != nil {
		return "", errors.Load("resolve script root", err)
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if rel, err := filepath.Rel(root, path); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Detail("script %q outside %s", ref, root).
			Build()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFoundName(errors.PhaseLoad, "script", ref)
		}
		return "", errors.Load("read "+ref, err)
	}
	return string(data), nil
}
