package fetch

import (
	"context"
	"errors"
	"sync"
)

// MockFetcher serves canned pages and scripted outcomes, for tests and dry
// runs.
type MockFetcher struct {
	*FetcherConfig
	pagesMap map[string]string

	mu       sync.Mutex
	scripted map[string][]*Result
	calls    int
}

func NewMockFetcher(fc *FetcherConfig) *MockFetcher {
	df := &MockFetcher{
		FetcherConfig: fc,
		pagesMap:      map[string]string{},
		scripted:      map[string][]*Result{},
	}
	for _, p := range fc.MockPages {
		df.pagesMap[p.Url] = p.Content
	}
	return df
}

// Script queues outcomes for a url. Each Fetch consumes one queued outcome
// before the fetcher falls back to its canned pages.
func (d *MockFetcher) Script(urlStr string, outcomes ...*Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripted[urlStr] = append(d.scripted[urlStr], outcomes...)
}

// Calls returns the number of Fetch invocations so far.
func (d *MockFetcher) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *MockFetcher) Fetch(_ context.Context, urlStr string, _ FetchOpts) *Result {
	d.mu.Lock()
	d.calls++
	if queue := d.scripted[urlStr]; len(queue) > 0 {
		next := queue[0]
		d.scripted[urlStr] = queue[1:]
		d.mu.Unlock()
		return next
	}
	d.mu.Unlock()

	if p, ok := d.pagesMap[urlStr]; ok {
		return success(p, 200, 1)
	}
	return failure(404, 1, errors.New("page not found"))
}

// To comply with the Fetcher interface
func (d *MockFetcher) Cancel() {}
