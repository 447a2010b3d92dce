package download

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/exec"
)

// Fetcher transfers url into the file dst, creating or truncating it.
// Transfer failures are reported as CodeNetwork or CodeTimeout.
type Fetcher interface {
	Fetch(ctx context.Context, url, dst string) error
}

// Backend names accepted by NewFetcher.
const (
	BackendHTTP = "http"
	BackendCurl = "curl"
	BackendWget = "wget"
)

// NewFetcher returns the Fetcher for a configured backend name.
func NewFetcher(backend string, timeout time.Duration, userAgent string, executor exec.Executor) (Fetcher, error) {
	switch backend {
	case "", BackendHTTP:
		return NewHTTPFetcher(timeout, userAgent), nil
	case BackendCurl, BackendWget:
		return NewCommandFetcher(backend, executor, timeout, userAgent), nil
	default:
		return nil, errors.WithContext(
			errors.Newf(errors.CodeInvalidConfig, "unknown download backend %q", backend),
			"backend", backend,
		)
	}
}

// HTTPFetcher downloads with net/http.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string

	fs billy.Filesystem
}

// NewHTTPFetcher creates an HTTPFetcher whose requests are bounded by
// timeout. A zero timeout means no limit.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment

	return &HTTPFetcher{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		UserAgent: userAgent,
		fs:        osfs.New("/"),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.WithContext(
			errors.Wrapf(err, errors.CodeInvalidInput, "invalid download URL %s", url),
			"url", url,
		)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return transportError(err, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := errors.Newf(errors.CodeNetwork, "download of %s failed: %s", url, resp.Status)
		return errors.WithContext(errors.WithContext(err, "url", url), "status", resp.StatusCode)
	}

	out, err := f.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create download file"),
			"path", dst,
		)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return transportError(err, url)
	}
	if err := out.Close(); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to close download file"),
			"path", dst,
		)
	}
	return nil
}

func transportError(err error, url string) error {
	code := errors.CodeNetwork
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		code = errors.CodeTimeout
	}
	return errors.WithContext(errors.Wrapf(err, code, "download of %s failed", url), "url", url)
}

// CommandFetcher downloads by running curl or wget.
type CommandFetcher struct {
	tool      *exec.CommandWrapper
	timeout   time.Duration
	userAgent string
}

// NewCommandFetcher creates a fetcher for tool ("curl" or "wget").
func NewCommandFetcher(tool string, executor exec.Executor, timeout time.Duration, userAgent string) *CommandFetcher {
	if executor == nil {
		executor = exec.New()
	}
	return &CommandFetcher{
		tool:      exec.NewWrapper(executor, tool),
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Require checks that the download tool is installed.
func (f *CommandFetcher) Require() error {
	return f.tool.Require()
}

// Fetch implements Fetcher.
func (f *CommandFetcher) Fetch(ctx context.Context, url, dst string) error {
	var args []string
	switch f.tool.Name() {
	case BackendWget:
		args = []string{"-q", "-O", dst}
		if f.userAgent != "" {
			args = append(args, "--user-agent="+f.userAgent)
		}
	default:
		args = []string{"-fsSL", "-o", dst}
		if f.userAgent != "" {
			args = append(args, "-A", f.userAgent)
		}
	}
	args = append(args, url)

	runner := f.tool.WithContext(ctx)
	if f.timeout > 0 {
		runner = runner.WithTimeout(f.timeout)
	}

	if _, err := runner.Run(args...); err != nil {
		return errors.WithContext(
			exec.Classify(err, errors.CodeNetwork, "download of "+url+" failed"),
			"url", url,
		)
	}
	return nil
}
