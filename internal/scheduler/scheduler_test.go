package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/larkgate/internal/scheduler"
	"github.com/okian/larkgate/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestTrigger(t *testing.T) {
	Convey("Given triggers", t, func() {
		Convey("A daily time becomes a cron expression", func() {
			spec, err := scheduler.Trigger{Daily: "18:30"}.Spec()
			So(err, ShouldBeNil)
			So(spec, ShouldEqual, "30 18 * * *")
		})

		Convey("A cron expression passes through", func() {
			spec, err := scheduler.Trigger{Cron: "0 10 * * 1-5"}.Spec()
			So(err, ShouldBeNil)
			So(spec, ShouldEqual, "0 10 * * 1-5")
		})

		Convey("Bad or ambiguous triggers are rejected", func() {
			for _, tr := range []scheduler.Trigger{{}, {Daily: "25:00"}, {Daily: "6pm"}, {Cron: "* * * * *", Daily: "09:00"}} {
				_, err := tr.Spec()
				So(errors.Is(err, scheduler.ErrInvalidTrigger), ShouldBeTrue)
			}
		})
	})
}

func TestAdd(t *testing.T) {
	Convey("Given a scheduler in Shanghai time", t, func() {
		loc, err := time.LoadLocation("Asia/Shanghai")
		So(err, ShouldBeNil)
		s := scheduler.New(scheduler.WithLocation(loc))

		Convey("When a valid daily job is added", func() {
			So(s.Add(scheduler.Job{ID: "remind", Kind: scheduler.KindDayCheck, Trigger: scheduler.Trigger{Daily: "10:00"}, Enabled: true}), ShouldBeNil)

			Convey("Then it is listed with a next run at 10:00 local time", func() {
				jobs := s.Jobs()
				So(jobs, ShouldHaveLength, 1)
				So(jobs[0].Name, ShouldEqual, "remind")
				So(jobs[0].Trigger, ShouldEqual, "daily 10:00")
				So(jobs[0].NextRunTime, ShouldNotBeNil)
				next := jobs[0].NextRunTime.In(loc)
				So(next.Hour(), ShouldEqual, 10)
				So(next.Minute(), ShouldEqual, 0)
				So(jobs[0].LastRunTime, ShouldBeNil)
			})

			Convey("Then adding the same id again fails", func() {
				err := s.Add(scheduler.Job{ID: "remind", Kind: scheduler.KindDayCheck, Trigger: scheduler.Trigger{Daily: "11:00"}})
				So(errors.Is(err, scheduler.ErrDuplicateJob), ShouldBeTrue)
			})
		})

		Convey("When an invalid cron is added", func() {
			err := s.Add(scheduler.Job{ID: "bad", Kind: scheduler.KindSendBatch, Trigger: scheduler.Trigger{Cron: "61 * * * *"}, Enabled: true})

			Convey("Then it is rejected and not listed", func() {
				So(errors.Is(err, scheduler.ErrInvalidTrigger), ShouldBeTrue)
				So(s.Jobs(), ShouldBeEmpty)
			})
		})

		Convey("When a job has an unknown kind or no id", func() {
			So(errors.Is(s.Add(scheduler.Job{ID: "x", Kind: "dance", Trigger: scheduler.Trigger{Daily: "10:00"}}), scheduler.ErrInvalidJob), ShouldBeTrue)
			So(errors.Is(s.Add(scheduler.Job{Kind: scheduler.KindDayCheck, Trigger: scheduler.Trigger{Daily: "10:00"}}), scheduler.ErrInvalidJob), ShouldBeTrue)
		})

		Convey("When a disabled job is added", func() {
			So(s.Add(scheduler.Job{ID: "off", Kind: scheduler.KindRangeSummary, Trigger: scheduler.Trigger{Cron: "0 9 28 * *"}}), ShouldBeNil)

			Convey("Then it is listed without a next run", func() {
				jobs := s.Jobs()
				So(jobs, ShouldHaveLength, 1)
				So(jobs[0].Enabled, ShouldBeFalse)
				So(jobs[0].NextRunTime, ShouldBeNil)
			})
		})

		Convey("Status reflects the lifecycle", func() {
			So(s.Add(scheduler.Job{ID: "a", Kind: scheduler.KindDayCheck, Trigger: scheduler.Trigger{Daily: "10:00"}, Enabled: true}), ShouldBeNil)

			st := s.Status()
			So(st.Status, ShouldEqual, scheduler.StatusStopped)
			So(st.Type, ShouldEqual, "cron")
			So(st.JobCount, ShouldEqual, 1)
			So(st.Timezone, ShouldEqual, "Asia/Shanghai")

			s.Start(context.Background())
			So(s.Status().Status, ShouldEqual, scheduler.StatusRunning)
			So(s.Stop(context.Background()), ShouldBeNil)
			So(s.Status().Status, ShouldEqual, scheduler.StatusStopped)
		})
	})

	Convey("Given no scheduler at all", t, func() {
		var s *scheduler.Scheduler
		So(s.Status().Status, ShouldEqual, scheduler.StatusNotInitialized)
		So(s.Jobs(), ShouldBeEmpty)
	})
}

func TestRunNow(t *testing.T) {
	Convey("Given a scheduler with a registered handler", t, func() {
		s := scheduler.New()
		var (
			mu   sync.Mutex
			seen []scheduler.Job
		)
		s.Handle(scheduler.KindSendBatch, func(_ context.Context, job scheduler.Job) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, job)
			if job.Param("fail", "") == "yes" {
				return errors.New("chat not found")
			}
			return nil
		})
		So(s.Add(scheduler.Job{
			ID: "hello", Kind: scheduler.KindSendBatch, Trigger: scheduler.Trigger{Daily: "09:00"},
			Params: map[string]string{"chat_id": "oc_1", "text": "hi", "offset": "-1"},
		}), ShouldBeNil)

		Convey("When it is run by hand", func() {
			err := s.RunNow(context.Background(), "hello")

			Convey("Then the handler gets the job with its params", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldHaveLength, 1)
				So(seen[0].Param("chat_id", ""), ShouldEqual, "oc_1")
				So(seen[0].Param("card", "none"), ShouldEqual, "none")
				off, err := seen[0].IntParam("offset", 0)
				So(err, ShouldBeNil)
				So(off, ShouldEqual, -1)
				So(s.Jobs()[0].LastRunTime, ShouldNotBeNil)
				So(s.Jobs()[0].LastError, ShouldBeEmpty)
			})
		})

		Convey("When the handler fails", func() {
			So(s.Add(scheduler.Job{
				ID: "broken", Kind: scheduler.KindSendBatch, Trigger: scheduler.Trigger{Daily: "09:00"},
				Params: map[string]string{"fail": "yes"},
			}), ShouldBeNil)
			err := s.RunNow(context.Background(), "broken")

			Convey("Then the error is returned and remembered", func() {
				So(err, ShouldNotBeNil)
				So(s.Jobs()[1].LastError, ShouldEqual, "chat not found")
			})
		})

		Convey("When a handler panics", func() {
			s.Handle(scheduler.KindDayCheck, func(context.Context, scheduler.Job) error { panic("boom") })
			So(s.Add(scheduler.Job{ID: "panicky", Kind: scheduler.KindDayCheck, Trigger: scheduler.Trigger{Daily: "09:00"}}), ShouldBeNil)

			So(errors.Is(s.RunNow(context.Background(), "panicky"), scheduler.ErrJobPanic), ShouldBeTrue)
		})

		Convey("When the kind has no handler", func() {
			So(s.Add(scheduler.Job{ID: "orphan", Kind: scheduler.KindRangeSummary, Trigger: scheduler.Trigger{Daily: "09:00"}}), ShouldBeNil)
			So(errors.Is(s.RunNow(context.Background(), "orphan"), scheduler.ErrNoHandler), ShouldBeTrue)
		})

		Convey("When the id is unknown", func() {
			So(errors.Is(s.RunNow(context.Background(), "nope"), scheduler.ErrJobNotFound), ShouldBeTrue)
		})

		Convey("When an integer param is malformed", func() {
			_, err := scheduler.Job{Params: map[string]string{"offset": "x"}}.IntParam("offset", 0)
			So(errors.Is(err, scheduler.ErrInvalidJob), ShouldBeTrue)
		})
	})
}

func TestSkipWhileRunning(t *testing.T) {
	Convey("Given a job that blocks", t, func() {
		s := scheduler.New()
		release := make(chan struct{})
		started := make(chan struct{})
		calls := 0
		s.Handle(scheduler.KindDayCheck, func(context.Context, scheduler.Job) error {
			calls++
			close(started)
			<-release
			return nil
		})
		So(s.Add(scheduler.Job{ID: "slow", Kind: scheduler.KindDayCheck, Trigger: scheduler.Trigger{Daily: "09:00"}}), ShouldBeNil)

		done := make(chan error, 1)
		go func() { done <- s.RunNow(context.Background(), "slow") }()
		<-started

		Convey("Then a second run is skipped rather than overlapping", func() {
			So(s.RunNow(context.Background(), "slow"), ShouldBeNil)
			close(release)
			So(<-done, ShouldBeNil)
			So(calls, ShouldEqual, 1)
		})
	})
}
