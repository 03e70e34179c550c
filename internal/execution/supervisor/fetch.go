package supervisor

import (
	"context"

	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/lambda-feedback/procpool/source"
)

type fetchResult struct {
	cmd models.Command
	err error
}

// fetcher pulls commands from a source on its own goroutine, one per
// request, so a blocking source never stalls channel servicing.
type fetcher struct {
	src      source.Source
	requests chan struct{}
	results  chan fetchResult

	// pending is owned by the loop
	pending bool
}

func newFetcher(src source.Source) *fetcher {
	return &fetcher{
		src:      src,
		requests: make(chan struct{}, 1),
		results:  make(chan fetchResult, 1),
	}
}

func (f *fetcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.requests:
		}

		cmd, err := f.src.Next(ctx)

		select {
		case f.results <- fetchResult{cmd: cmd, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// request asks for the next command. Only one request is outstanding.
func (f *fetcher) request() {
	if f.pending {
		return
	}

	f.pending = true
	f.requests <- struct{}{}
}

// poll returns the answer to the outstanding request, if it arrived.
func (f *fetcher) poll() (fetchResult, bool) {
	select {
	case res := <-f.results:
		f.pending = false
		return res, true
	default:
		return fetchResult{}, false
	}
}
