package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/modelvault/model-ingest/internal/core/domain"
	"github.com/modelvault/model-ingest/internal/core/ports"
	"github.com/modelvault/model-ingest/internal/infrastructure/resilience"
)

// Fetcher resolves a source reference into a readable stream. URLs are
// downloaded over HTTP; anything else is tried as an object-storage key
// first and a local path second.
type Fetcher struct {
	client   *http.Client
	storage  ports.ObjectStorage
	executor *resilience.Executor
}

func New(storage ports.ObjectStorage, executor *resilience.Executor) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: 5 * time.Minute},
		storage:  storage,
		executor: executor,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	if source == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch source", errors.New("empty source"))
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return f.download(ctx, source)
	}

	if f.storage != nil {
		if rc, err := f.storage.Open(ctx, source); err == nil {
			return rc, nil
		}
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "open source path", err)
	}
	return file, nil
}

// download is the one retryable leg of the pipeline: transient transport
// failures and 5xx responses go through the resilience executor.
func (f *Fetcher) download(ctx context.Context, url string) (io.ReadCloser, error) {
	var body io.ReadCloser

	call := func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build download request: %w", err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("download source: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return statusError{code: resp.StatusCode}
		}
		body = resp.Body
		return nil
	}

	var err error
	if f.executor != nil {
		err = f.executor.Execute(ctx, "source.download", call, classifyDownloadError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "download source", err)
	}
	return body, nil
}

type statusError struct {
	code int
}

func (e statusError) Error() string {
	return fmt.Sprintf("download returned status %d", e.code)
}

func classifyDownloadError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var status statusError
	if errors.As(err, &status) {
		// Client errors are permanent; server errors are worth a retry.
		return resilience.ErrorClassification{
			Retryable:     status.code >= 500,
			RecordFailure: status.code >= 500,
		}
	}

	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}
