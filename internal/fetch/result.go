package fetch

// Status classifies the outcome of a fetch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusBlocked Status = "blocked"
	StatusError   Status = "error"
)

// Result is the uniform outcome envelope of a fetch. Exactly one of the
// three statuses is set. Body is only meaningful on success, Err only on
// blocked and error results.
type Result struct {
	Status Status
	Body   string
	// Code is the last HTTP status code seen, 0 if the request never got
	// a response.
	Code int
	Err  error
	// Attempts is the number of requests made, including the final one.
	Attempts int
}

// Success reports whether the fetch produced a usable body.
func (r *Result) Success() bool {
	return r.Status == StatusSuccess
}

// Blocked reports whether the fetch was rejected by the remote side's
// anti-bot measures.
func (r *Result) Blocked() bool {
	return r.Status == StatusBlocked
}

func success(body string, code, attempts int) *Result {
	return &Result{Status: StatusSuccess, Body: body, Code: code, Attempts: attempts}
}

func blocked(code, attempts int, err error) *Result {
	return &Result{Status: StatusBlocked, Code: code, Attempts: attempts, Err: err}
}

func failure(code, attempts int, err error) *Result {
	return &Result{Status: StatusError, Code: code, Attempts: attempts, Err: err}
}
