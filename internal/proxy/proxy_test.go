package proxy_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/hostguard/internal/circuitbreaker"
	"github.com/angeloszaimis/hostguard/internal/metrics"
	"github.com/angeloszaimis/hostguard/internal/proxy"
)

var _ = Describe("Handler", func() {
	var (
		log *slog.Logger
		mgr *circuitbreaker.Manager
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		mgr = circuitbreaker.NewManager(circuitbreaker.Options{
			FailureThreshold: 1,
			SuccessThreshold: 1,
		}, log)
	})

	newUpstream := func(rawURL string) *proxy.Upstream {
		u, err := url.Parse(rawURL)
		Expect(err).NotTo(HaveOccurred())
		return proxy.NewUpstream(u)
	}

	serve := func(h *proxy.Handler, req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	Describe("forwarding", func() {
		It("should forward to the first upstream and mirror its response", func() {
			origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Origin", "one")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("hello from one"))
			}))
			defer origin.Close()

			h := proxy.NewHandler(log, mgr, []*proxy.Upstream{newUpstream(origin.URL)}, nil)
			rec := serve(h, httptest.NewRequest(http.MethodGet, "/greet", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("hello from one"))
			Expect(rec.Header().Get("X-Origin")).To(Equal("one"))
			Expect(rec.Header().Get("X-Upstream")).To(Equal(origin.URL))
		})

		It("should pass client errors through without failing over", func() {
			var secondCalls atomic.Int32

			first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "no such thing", http.StatusNotFound)
			}))
			defer first.Close()
			second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				secondCalls.Add(1)
				w.WriteHeader(http.StatusOK)
			}))
			defer second.Close()

			h := proxy.NewHandler(log, mgr, []*proxy.Upstream{
				newUpstream(first.URL),
				newUpstream(second.URL),
			}, nil)
			rec := serve(h, httptest.NewRequest(http.MethodGet, "/missing", nil))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(secondCalls.Load()).To(BeZero())

			u, _ := url.Parse(first.URL)
			Expect(mgr.GetState(u.Host)).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("failover", func() {
		It("should try the next upstream when one answers with a server error", func() {
			broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			}))
			defer broken.Close()
			healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("hello from two"))
			}))
			defer healthy.Close()

			h := proxy.NewHandler(log, mgr, []*proxy.Upstream{
				newUpstream(broken.URL),
				newUpstream(healthy.URL),
			}, nil)
			rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("hello from two"))
			Expect(rec.Header().Get("X-Upstream")).To(Equal(healthy.URL))

			u, _ := url.Parse(broken.URL)
			m, ok := mgr.GetMetrics(u.Host)
			Expect(ok).To(BeTrue())
			Expect(m.FailureCount).To(Equal(1))
		})

		It("should try the next upstream when one is unreachable", func() {
			dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			deadURL := dead.URL
			dead.Close()

			healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("still here"))
			}))
			defer healthy.Close()

			h := proxy.NewHandler(log, mgr, []*proxy.Upstream{
				newUpstream(deadURL),
				newUpstream(healthy.URL),
			}, nil)
			rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("still here"))

			u, _ := url.Parse(deadURL)
			Expect(mgr.GetState(u.Host)).To(Equal(circuitbreaker.StateOpen))
		})

		It("should skip an upstream whose circuit is open without connecting", func() {
			var brokenCalls atomic.Int32

			broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				brokenCalls.Add(1)
				http.Error(w, "boom", http.StatusInternalServerError)
			}))
			defer broken.Close()
			healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("ok"))
			}))
			defer healthy.Close()

			h := proxy.NewHandler(log, mgr, []*proxy.Upstream{
				newUpstream(broken.URL),
				newUpstream(healthy.URL),
			}, nil)

			// First request trips the broken upstream's circuit, then
			// fails over.
			rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(brokenCalls.Load()).To(Equal(int32(1)))

			// Second request must not touch the broken upstream at all.
			rec = serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(brokenCalls.Load()).To(Equal(int32(1)))
		})

		It("should not replay a request body into a second upstream", func() {
			var healthyCalls atomic.Int32

			dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			deadURL := dead.URL
			dead.Close()

			healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				healthyCalls.Add(1)
				w.WriteHeader(http.StatusOK)
			}))
			defer healthy.Close()

			h := proxy.NewHandler(log, mgr, []*proxy.Upstream{
				newUpstream(deadURL),
				newUpstream(healthy.URL),
			}, nil)

			req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("payload"))
			rec := serve(h, req)

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(healthyCalls.Load()).To(BeZero())
		})
	})

	Describe("when every upstream is unavailable", func() {
		It("should answer 503 with a retry hint once circuits are open", func() {
			var calls atomic.Int32

			broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "boom", http.StatusBadGateway)
			}))
			defer broken.Close()

			h := proxy.NewHandler(log, mgr, []*proxy.Upstream{newUpstream(broken.URL)}, nil)

			// Trip the circuit.
			rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(calls.Load()).To(Equal(int32(1)))

			// Now the circuit rejects without an attempt and the client
			// learns when to come back.
			rec = serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Header().Get("Retry-After")).NotTo(BeEmpty())
			Expect(calls.Load()).To(Equal(int32(1)))
		})
	})

	Describe("metrics", func() {
		It("should publish call and rejection events", func() {
			collector := metrics.NewCollector(100, nil, log)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			collector.Start(ctx)

			broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			}))
			defer broken.Close()

			h := proxy.NewHandler(log, mgr, []*proxy.Upstream{newUpstream(broken.URL)}, collector)

			serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
			serve(h, httptest.NewRequest(http.MethodGet, "/", nil))

			u, _ := url.Parse(broken.URL)
			Eventually(func() int64 {
				return collector.Snapshot().Hosts[u.Host].Calls
			}).Should(Equal(int64(1)))
			Eventually(func() int64 {
				return collector.Snapshot().Hosts[u.Host].Rejections
			}).Should(Equal(int64(1)))
		})
	})
})
