package scheduler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/hamed0406/servicepoller/internal/domain"
	"github.com/hamed0406/servicepoller/internal/probe"
	"github.com/hamed0406/servicepoller/internal/repo/memory"
	"github.com/hamed0406/servicepoller/internal/scheduler"
)

var _ = Describe("Poller", func() {
	var (
		log *zap.Logger
		ctx context.Context
	)

	BeforeEach(func() {
		log = zap.NewNop()
		ctx = context.Background()
	})

	Describe("RunCycle", func() {
		It("probes every endpoint once and writes each status back", func() {
			store := newFakeStore(
				endpoint("a", "http://x/a"),
				endpoint("b", "http://x/b"),
				endpoint("c", "http://x/c"),
			)
			chk := &funcChecker{fn: okBody}
			p := scheduler.NewPoller(log, store, chk, time.Minute, time.Second)

			report, err := p.RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(chk.calls.Load()).To(BeEquivalentTo(3))
			Expect(store.totalWrites()).To(Equal(3))
			Expect(report.Endpoints).To(Equal(3))
			Expect(report.Probed).To(Equal(3))
			Expect(report.Written).To(Equal(3))
			Expect(report.OK).To(Equal(3))
			Expect(report.CycleID).NotTo(BeEmpty())
		})

		It("does nothing for an empty store", func() {
			store := newFakeStore()
			chk := &funcChecker{fn: okBody}
			p := scheduler.NewPoller(log, store, chk, time.Minute, time.Second)

			report, err := p.RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Probed).To(BeZero())
			Expect(chk.calls.Load()).To(BeZero())
		})

		It("aborts the cycle when the endpoint list cannot be read", func() {
			store := newFakeStore(endpoint("a", "http://x/a"))
			store.listErr = errDiskFull
			chk := &funcChecker{fn: okBody}
			p := scheduler.NewPoller(log, store, chk, time.Minute, time.Second)

			_, err := p.RunCycle(ctx)
			Expect(err).To(MatchError(errDiskFull))
			Expect(chk.calls.Load()).To(BeZero())
			Expect(store.totalWrites()).To(BeZero())
		})

		It("keeps writing the other endpoints when one write fails", func() {
			eps := make([]domain.Endpoint, 5)
			for i := range eps {
				eps[i] = endpoint(fmt.Sprintf("e%d", i), fmt.Sprintf("http://x/%d", i))
			}
			store := newFakeStore(eps...)
			store.failIDs["e2"] = true
			p := scheduler.NewPoller(log, store, &funcChecker{fn: okBody}, time.Minute, time.Second)

			report, err := p.RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Written).To(Equal(4))
			Expect(report.WriteErrors).To(Equal(1))
			for _, ep := range eps {
				_, written := store.last(ep.ID)
				Expect(written).To(Equal(ep.ID != "e2"), string(ep.ID))
			}
		})

		It("resolves a probe that never returns to FAIL within the timeout", func() {
			block := make(chan struct{})
			defer close(block)

			store := newFakeStore(endpoint("hang", "http://x/hang"), endpoint("ok", "http://x/ok"))
			chk := &funcChecker{fn: func(ctx context.Context, url string) probe.Outcome {
				if url == "http://x/hang" {
					<-block // ignores ctx on purpose
				}
				return okBody(ctx, url)
			}}
			p := scheduler.NewPoller(log, store, chk, time.Minute, 50*time.Millisecond)

			start := time.Now()
			report, err := p.RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
			Expect(report.Written).To(Equal(2))

			st, _ := store.last("hang")
			Expect(st).To(Equal(domain.StatusFail))
			st, _ = store.last("ok")
			Expect(st).To(Equal(domain.StatusOK))
		})

		It("runs probes concurrently", func() {
			eps := make([]domain.Endpoint, 10)
			for i := range eps {
				eps[i] = endpoint(fmt.Sprintf("e%d", i), "http://x/slow")
			}
			store := newFakeStore(eps...)
			chk := &funcChecker{fn: func(ctx context.Context, url string) probe.Outcome {
				time.Sleep(100 * time.Millisecond)
				return okBody(ctx, url)
			}}
			p := scheduler.NewPoller(log, store, chk, time.Minute, time.Second)

			start := time.Now()
			_, err := p.RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", 500*time.Millisecond))
			Expect(store.totalWrites()).To(Equal(10))
		})

		It("writes FAIL when a checker panics", func() {
			store := newFakeStore(endpoint("boom", "http://x/boom"), endpoint("ok", "http://x/ok"))
			chk := &funcChecker{fn: func(ctx context.Context, url string) probe.Outcome {
				if url == "http://x/boom" {
					panic("checker bug")
				}
				return okBody(ctx, url)
			}}
			p := scheduler.NewPoller(log, store, chk, time.Minute, time.Second)

			report, err := p.RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Written).To(Equal(2))
			st, _ := store.last("boom")
			Expect(st).To(Equal(domain.StatusFail))
		})

		It("produces the same statuses on repeated cycles", func() {
			store := newFakeStore(endpoint("ok", "http://x/ok"), endpoint("bad", "http://x/bad"))
			chk := &funcChecker{fn: func(ctx context.Context, url string) probe.Outcome {
				if url == "http://x/bad" {
					return probe.Outcome{StatusCode: 200, Body: []byte("NOPE")}
				}
				return okBody(ctx, url)
			}}
			p := scheduler.NewPoller(log, store, chk, time.Minute, time.Second)

			first, err := p.RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			second, err := p.RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.OK).To(Equal(first.OK))
			Expect(second.Fail).To(Equal(first.Fail))
			Expect(store.writes["ok"]).To(Equal([]domain.Status{domain.StatusOK, domain.StatusOK}))
			Expect(store.writes["bad"]).To(Equal([]domain.Status{domain.StatusFail, domain.StatusFail}))
		})

		It("writes nothing when the cycle context is already cancelled", func() {
			store := newFakeStore(endpoint("a", "http://x/a"), endpoint("b", "http://x/b"))
			p := scheduler.NewPoller(log, store, &funcChecker{fn: okBody}, time.Minute, time.Second)

			cctx, cancel := context.WithCancel(ctx)
			cancel()
			report, err := p.RunCycle(cctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Cancelled).To(Equal(2))
			Expect(report.Written).To(BeZero())
			Expect(store.totalWrites()).To(BeZero())
		})

		It("notifies only for successful write-backs", func() {
			store := newFakeStore(endpoint("a", "http://x/a"), endpoint("b", "http://x/b"))
			store.failIDs["b"] = true
			n := &recordingNotifier{}
			p := scheduler.NewPoller(log, store, &funcChecker{fn: okBody}, time.Minute, time.Second)
			p.Notifier = n

			_, err := p.RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n.count()).To(Equal(1))
			Expect(n.events[0].ID).To(Equal(domain.EndpointID("a")))
			Expect(n.events[0].Status).To(Equal(domain.StatusOK))
		})
	})

	Describe("RunCycle against real services", func() {
		var (
			okSrv   *httptest.Server
			failSrv *httptest.Server
			store   *memory.Store
		)

		BeforeEach(func() {
			okSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("OK"))
			}))
			failSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("NOPE"))
			}))
			store = memory.New()
		})

		AfterEach(func() {
			okSrv.Close()
			failSrv.Close()
		})

		statuses := func() map[string]domain.Status {
			all, err := store.ListAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			out := map[string]domain.Status{}
			for _, e := range all {
				out[e.Name] = e.Status
			}
			return out
		}

		It("marks OK, non-matching and unreachable endpoints", func() {
			dead := httptest.NewServer(http.NotFoundHandler())
			deadURL := dead.URL
			dead.Close()

			for _, e := range []domain.Endpoint{
				domain.NewEndpoint(okSrv.URL+"/ok", "A"),
				domain.NewEndpoint(failSrv.URL+"/fail", "B"),
				domain.NewEndpoint(deadURL, "C"),
			} {
				Expect(store.Create(ctx, &e)).To(Succeed())
			}
			Expect(statuses()).To(HaveKeyWithValue("C", domain.StatusUnknown))

			p := scheduler.NewPoller(log, store, probe.NewHTTPChecker(time.Second), time.Minute, time.Second)
			_, err := p.RunCycle(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(statuses()).To(Equal(map[string]domain.Status{
				"A": domain.StatusOK,
				"B": domain.StatusFail,
				"C": domain.StatusFail,
			}))
		})

		It("tolerates an endpoint deleted while its probe is in flight", func() {
			inFlight := make(chan struct{})
			release := make(chan struct{})
			slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				close(inFlight)
				<-release
				w.Write([]byte("OK"))
			}))
			defer slow.Close()

			doomed := domain.NewEndpoint(slow.URL, "doomed")
			keep := domain.NewEndpoint(okSrv.URL, "keep")
			Expect(store.Create(ctx, &doomed)).To(Succeed())
			Expect(store.Create(ctx, &keep)).To(Succeed())

			p := scheduler.NewPoller(log, store, probe.NewHTTPChecker(5*time.Second), time.Minute, 5*time.Second)

			var (
				report scheduler.CycleReport
				err    error
				wg     sync.WaitGroup
			)
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				report, err = p.RunCycle(ctx)
			}()

			Eventually(inFlight).Should(BeClosed())
			Expect(store.Delete(ctx, doomed.ID)).To(Succeed())
			close(release)
			wg.Wait()

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Probed).To(Equal(2))
			Expect(report.WriteErrors).To(Equal(1))
			Expect(report.Written).To(Equal(1))
			Expect(statuses()).To(Equal(map[string]domain.Status{"keep": domain.StatusOK}))
		})
	})

	Describe("Run", func() {
		It("runs an immediate cycle and keeps ticking", func() {
			store := newFakeStore(endpoint("a", "http://x/a"))
			p := scheduler.NewPoller(log, store, &funcChecker{fn: okBody}, 20*time.Millisecond, time.Second)

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				p.Run(runCtx)
			}()

			Eventually(store.totalWrites).Should(BeNumerically(">=", 3))
			cancel()
			Eventually(done).Should(BeClosed())
		})

		It("skips ticks while the previous cycle is still running", func() {
			release := make(chan struct{})
			store := newFakeStore(endpoint("a", "http://x/a"))
			chk := &funcChecker{fn: func(ctx context.Context, url string) probe.Outcome {
				<-release
				return okBody(ctx, url)
			}}
			p := scheduler.NewPoller(log, store, chk, 10*time.Millisecond, 5*time.Second)

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				p.Run(runCtx)
			}()

			Eventually(store.listCalls).Should(Equal(1))
			Consistently(store.listCalls, 100*time.Millisecond, 10*time.Millisecond).Should(Equal(1))

			close(release)
			Eventually(store.listCalls).Should(BeNumerically(">", 1))
			cancel()
			Eventually(done).Should(BeClosed())
		})

		It("abandons in-flight probes on shutdown without writing FAIL", func() {
			store := newFakeStore(endpoint("a", "http://x/a"), endpoint("b", "http://x/b"))
			chk := &funcChecker{fn: func(ctx context.Context, url string) probe.Outcome {
				<-ctx.Done()
				return probe.Outcome{Err: ctx.Err()}
			}}
			p := scheduler.NewPoller(log, store, chk, time.Hour, 5*time.Second)

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				p.Run(runCtx)
			}()

			Eventually(chk.calls.Load).Should(BeEquivalentTo(2))
			cancel()
			Eventually(done).Should(BeClosed())
			Expect(store.totalWrites()).To(BeZero())
		})

		It("returns immediately when the interval is zero", func() {
			store := newFakeStore(endpoint("a", "http://x/a"))
			p := scheduler.NewPoller(log, store, &funcChecker{fn: okBody}, 0, time.Second)
			p.Run(ctx)
			Expect(store.listCalls()).To(BeZero())
		})
	})
})
