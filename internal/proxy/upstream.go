package proxy

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/angeloszaimis/hostguard/internal/circuitbreaker"
)

// forwardErrKey carries the per-request error holder through the reverse
// proxy, whose ErrorHandler is shared across requests.
type forwardErrKey struct{}

type errorHolder struct {
	err error
}

// statusRecorder captures the status code written by the reverse proxy.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Upstream wraps a reverse proxy to one origin together with the key its
// circuit breaker is registered under. The key is the URL's authority, so
// two listeners on the same machine are tracked independently.
type Upstream struct {
	url   *url.URL
	host  string
	proxy *httputil.ReverseProxy
}

// NewUpstream builds an upstream for the given origin URL.
func NewUpstream(u *url.URL) *Upstream {
	up := &Upstream{
		url:  u,
		host: u.Host,
	}

	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ModifyResponse = func(resp *http.Response) error {
		// Server errors become classifiable failures instead of being
		// streamed to the client, so the handler can try another upstream.
		if resp.StatusCode >= http.StatusInternalServerError {
			return &circuitbreaker.StatusError{Code: resp.StatusCode}
		}
		return nil
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if holder, ok := r.Context().Value(forwardErrKey{}).(*errorHolder); ok {
			holder.err = err
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}

	up.proxy = proxy
	return up
}

// URL returns the origin URL.
func (u *Upstream) URL() *url.URL {
	return u.url
}

// Host returns the breaker key for this upstream.
func (u *Upstream) Host() string {
	return u.host
}

// Forward proxies the request to the origin. On success it returns the
// status code written to the client. On failure nothing has been written
// to w and the error describes the transport fault or the 5xx response.
func (u *Upstream) Forward(w http.ResponseWriter, r *http.Request) (int, error) {
	holder := &errorHolder{}
	ctx := context.WithValue(r.Context(), forwardErrKey{}, holder)

	rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	u.proxy.ServeHTTP(rec, r.WithContext(ctx))

	if holder.err != nil {
		return 0, holder.err
	}
	return rec.statusCode, nil
}
