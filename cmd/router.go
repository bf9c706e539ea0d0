package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/hostguard/internal/circuitbreaker"
	"github.com/angeloszaimis/hostguard/internal/metrics"
	"github.com/angeloszaimis/hostguard/internal/proxy"
)

func setupRouter(proxyHandler *proxy.Handler, collector *metrics.Collector, manager *circuitbreaker.Manager) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", proxyHandler.ServeHTTP)
	mux.HandleFunc("/circuits", collector.Handler(manager))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
