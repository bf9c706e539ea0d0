package logger_test

import (
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/hostguard/pkg/logger"
)

var _ = Describe("Logger", func() {
	ctx := context.Background()

	Describe("New", func() {
		It("should create a logger for every known level", func() {
			for _, lvl := range []string{"debug", "info", "warn", "error"} {
				Expect(logger.New(lvl, false, "dev")).NotTo(BeNil())
			}
		})

		It("should default to info for an unknown level", func() {
			log := logger.New("invalid", false, "dev")
			Expect(log.Enabled(ctx, slog.LevelInfo)).To(BeTrue())
			Expect(log.Enabled(ctx, slog.LevelDebug)).To(BeFalse())
		})

		It("should create a prod logger", func() {
			Expect(logger.New("info", false, "prod")).NotTo(BeNil())
		})

		It("should support the addSource option", func() {
			Expect(logger.New("info", true, "dev")).NotTo(BeNil())
		})

		It("should respect the debug level", func() {
			log := logger.New("debug", false, "dev")
			Expect(log.Enabled(ctx, slog.LevelDebug)).To(BeTrue())
			Expect(log.Enabled(ctx, slog.LevelInfo)).To(BeTrue())
		})

		It("should respect the warn level", func() {
			log := logger.New("warn", false, "dev")
			Expect(log.Enabled(ctx, slog.LevelInfo)).To(BeFalse())
			Expect(log.Enabled(ctx, slog.LevelWarn)).To(BeTrue())
		})

		It("should respect the error level", func() {
			log := logger.New("error", false, "dev")
			Expect(log.Enabled(ctx, slog.LevelWarn)).To(BeFalse())
			Expect(log.Enabled(ctx, slog.LevelError)).To(BeTrue())
		})
	})
})
