package probe

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/platform-demo/internal/log"
	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

// HTTP is up when GET url answers with a status below 400.
type HTTP struct {
	url    string
	client *http.Client
}

// NewHTTP validates rawURL. A nil client gets an otelhttp-instrumented one so
// probe calls show up as child spans of the evaluation.
func NewHTTP(rawURL string, client *http.Client) (*HTTP, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, xerrors.Wrapf(ErrInvalidConfiguration, "http probe url %q", rawURL)
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTP{url: u.String(), client: client}, nil
}

func (p *HTTP) Check(ctx context.Context, name string) (Result, error) {
	return Timed(func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
		if err != nil {
			return false, xerrors.Wrap(err, "build http probe request")
		}
		resp, err := p.client.Do(req)
		if err != nil {
			log.FromContext(ctx).Debug(ctx, "http probe failed", "health_check_name", name, "err", err)
			return false, nil
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return resp.StatusCode < http.StatusBadRequest, nil
	}).Check(ctx, name)
}
