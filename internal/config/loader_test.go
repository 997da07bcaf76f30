package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/larkgate/internal/config"
	"github.com/okian/larkgate/internal/domain/types"
	"github.com/okian/larkgate/internal/scheduler"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Server.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Dedupe.TTL, convey.ShouldEqual, 10*time.Minute)
				convey.So(cfg.Dedupe.Backend, convey.ShouldEqual, config.BackendMemory)
				convey.So(cfg.Queue.Capacity, convey.ShouldEqual, 1024)
				convey.So(cfg.Attendance.UserField, convey.ShouldEqual, "员工")
				convey.So(cfg.Holiday.Timeout, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.Location().String(), convey.ShouldEqual, "Asia/Shanghai")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("LARKGATE_SERVER__ADDR", ":9090")
			_ = os.Setenv("LARKGATE_DEDUPE__TTL", "2m")
			_ = os.Setenv("LARKGATE_QUEUE__CAPACITY", "64")
			_ = os.Setenv("LARKGATE_LARK__APP_ID", "cli_a")
			_ = os.Setenv("LARKGATE_LARK__APP_SECRET", "s3cret")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Server.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Dedupe.TTL, convey.ShouldEqual, 2*time.Minute)
				convey.So(cfg.Queue.Capacity, convey.ShouldEqual, 64)
				convey.So(cfg.Lark.AppID, convey.ShouldEqual, "cli_a")
				convey.So(cfg.Lark.AppSecret, convey.ShouldEqual, "s3cret")
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
server:
  addr: ":7070"
attendance:
  app_token: bascn123
  table_id: tbl456
  chat_id: oc_team
roster:
  - name: Alice
    external_id: ou_alice
  - name: Bob
    exceptions: [周五, saturday]
  - name: Carol
    off: true
leave:
  approval_codes: [LEAVE-1]
scheduler:
  jobs:
    - id: daily
      kind: day_check
      enabled: true
      trigger:
        daily: "19:00"
      params:
        offset: 0
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("LARKGATE_CONFIG", tmpFile)
			_ = os.Setenv("LARKGATE_SERVER__ADDR", ":6060")

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env still wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Server.Addr, convey.ShouldEqual, ":6060")
				convey.So(cfg.Server.ReadTimeout, convey.ShouldEqual, 10*time.Second)
				convey.So(cfg.Attendance.TableID, convey.ShouldEqual, "tbl456")
				convey.So(cfg.Leave.ApprovalCodes, convey.ShouldResemble, []string{"LEAVE-1"})

				convey.So(cfg.Scheduler.Jobs, convey.ShouldHaveLength, 1)
				job := cfg.Scheduler.Jobs[0]
				convey.So(job.Kind, convey.ShouldEqual, scheduler.KindDayCheck)
				convey.So(job.Trigger.Daily, convey.ShouldEqual, "19:00")
				convey.So(job.Param("offset", ""), convey.ShouldEqual, "0")

				roster, err := cfg.RosterEntries()
				convey.So(err, convey.ShouldBeNil)
				convey.So(roster, convey.ShouldHaveLength, 3)
				convey.So(roster[0].ExternalID, convey.ShouldEqual, "ou_alice")
				convey.So(roster[1].ExceptionWeekdays, convey.ShouldEqual, types.NewWeekdaySet(time.Friday, time.Saturday))
				convey.So(roster[2].OnLeave, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("LARKGATE_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("LARKGATE_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid values", func() {
			_ = os.Setenv("LARKGATE_SERVER__ADDR", "")
			_ = os.Setenv("LARKGATE_DEDUPE__BACKEND", "memcached")
			_ = os.Setenv("LARKGATE_LARK__APP_ID", "cli_only")

			cfg, err := config.Load(ctx)

			convey.Convey("Then every problem is reported", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "server.addr must not be empty")
				convey.So(err.Error(), convey.ShouldContainSubstring, "memcached")
				convey.So(err.Error(), convey.ShouldContainSubstring, "must be set together")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the roster comes from chat without a chat id", func() {
			_ = os.Setenv("LARKGATE_ATTENDANCE__ROSTER_SOURCE", "chat")

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "attendance.chat_id")
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("LARKGATE_QUEUE__CAPACITY", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestValidate(t *testing.T) {
	convey.Convey("Given defaults with a bad roster and job", t, func() {
		cfg := config.New(context.Background())
		cfg.Roster = []config.PersonConfig{{Name: "Dan", Exceptions: []string{"funday"}}}
		cfg.Scheduler.Jobs = []scheduler.Job{{ID: "bad", Kind: scheduler.KindDayCheck, Trigger: scheduler.Trigger{Daily: "7pm"}}}

		err := cfg.Validate()

		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		convey.So(err.Error(), convey.ShouldContainSubstring, "invalid roster entry: Dan")
		convey.So(err.Error(), convey.ShouldContainSubstring, "scheduler job bad")
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "larkgate-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
