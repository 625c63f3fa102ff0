package internal_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-orchestration/internal"
)

func TestInternal(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Internal Suite")
}

var _ = Describe("ReconciliationConfig", func() {
	It("keeps a configured midnight schedule", func() {
		cfg := internal.ReconciliationConfig{ScheduleHour: 0}
		cfg.ApplyDefaults()
		Expect(cfg.ScheduleHour).To(Equal(0))
	})

	It("fills the unset-hour sentinel and the duration defaults", func() {
		cfg := internal.ReconciliationConfig{ScheduleHour: -1}
		cfg.ApplyDefaults()
		Expect(cfg.ScheduleHour).To(Equal(2))
		Expect(cfg.StuckAfter).To(Equal(24 * time.Hour))
		Expect(cfg.AutoFailAfter).To(Equal(48 * time.Hour))
	})

	It("accepts the full 0-23 schedule range", func() {
		Expect((&internal.ReconciliationConfig{ScheduleHour: 0}).Validate()).To(Succeed())
		Expect((&internal.ReconciliationConfig{ScheduleHour: 23}).Validate()).To(Succeed())
		Expect((&internal.ReconciliationConfig{ScheduleHour: 24}).Validate()).ToNot(Succeed())
	})
})
