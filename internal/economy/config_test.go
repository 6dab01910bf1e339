package economy

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/canvashq/canvas/internal/database"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/notice"
	"github.com/canvashq/canvas/internal/store"
)

type configFixture struct {
	db        *sql.DB
	svc       *ConfigService
	tasks     *store.TaskStore
	scenarios *store.ScenarioStore
	configs   *store.EconConfigStore
}

func setupConfigFixture(t *testing.T) *configFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tasks := store.NewTaskStore(db)
	scenarios := store.NewScenarioStore(db)
	configs := store.NewEconConfigStore(db)
	f := &configFixture{
		db:        db,
		svc:       NewConfigService(db, configs, tasks, scenarios, notice.NopPublisher{}, discardLogger()),
		tasks:     tasks,
		scenarios: scenarios,
		configs:   configs,
	}
	// Audit rows reference the actor account; actor id 1 is this admin.
	mustAccount(t, store.NewAccountStore(db), "admin")
	mustTask(t, tasks, "daily_login", model.TaskDaily, "0.2", 1)
	if _, err := scenarios.Create(model.ConsumptionScenario{
		Key: "featured_slot", Name: "Featured gallery slot", Category: "visibility",
		Price: dec(t, "3"), Active: true,
	}); err != nil {
		t.Fatalf("create scenario: %v", err)
	}
	return f
}

func TestScheduleChangeValidation(t *testing.T) {
	f := setupConfigFixture(t)
	ctx := context.Background()
	reason := "seasonal reward adjustment"

	_, err := f.svc.ScheduleChange(ctx, 1, "daily_login", model.ConfigTaskReward, dec(t, "0.3"), "short", true)
	if !errors.Is(err, ErrReasonTooShort) {
		t.Errorf("short reason err = %v, want ErrReasonTooShort", err)
	}

	_, err = f.svc.ScheduleChange(ctx, 1, "daily_login", model.ConfigTaskReward, dec(t, "-1"), reason, true)
	if !errors.Is(err, ErrInvalidConfigValue) {
		t.Errorf("negative value err = %v, want ErrInvalidConfigValue", err)
	}

	_, err = f.svc.ScheduleChange(ctx, 1, "daily_login", model.ConfigTaskReward, dec(t, "1000001"), reason, true)
	if !errors.Is(err, ErrInvalidConfigValue) {
		t.Errorf("huge value err = %v, want ErrInvalidConfigValue", err)
	}

	_, err = f.svc.ScheduleChange(ctx, 1, "daily_login", model.ConfigType("bogus"), dec(t, "1"), reason, true)
	if !errors.Is(err, ErrUnknownConfigType) {
		t.Errorf("bogus type err = %v, want ErrUnknownConfigType", err)
	}

	_, err = f.svc.ScheduleChange(ctx, 1, "no_such_task", model.ConfigTaskReward, dec(t, "1"), reason, true)
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("unknown target err = %v, want ErrTaskNotFound", err)
	}
}

func TestScheduleChangeImmediate(t *testing.T) {
	f := setupConfigFixture(t)

	created, err := f.svc.ScheduleChange(context.Background(), 1, "daily_login", model.ConfigTaskReward, dec(t, "0.5"), "raise the daily login reward", true)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !created.Applied() {
		t.Error("immediate change should be marked applied")
	}
	if created.ConfigKey != "task_reward_daily_login" {
		t.Errorf("config key = %q, want task_reward_daily_login", created.ConfigKey)
	}

	task, err := f.tasks.GetByKey("daily_login")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !task.RewardPoints.Equal(dec(t, "0.5")) {
		t.Errorf("live reward = %s, want 0.5", task.RewardPoints)
	}
}

func TestScheduleChangeDeferredAndSweep(t *testing.T) {
	f := setupConfigFixture(t)
	ctx := context.Background()

	created, err := f.svc.ScheduleChange(ctx, 1, "featured_slot", model.ConfigConsumptionPrice, dec(t, "5"), "demand-based price bump", false)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if created.Applied() {
		t.Error("deferred change should not be applied yet")
	}
	wantEffective := time.Now().UTC().Add(deferredDelay)
	if diff := created.EffectiveAt.Sub(wantEffective); diff < -time.Minute || diff > time.Minute {
		t.Errorf("effective_at = %s, want ~%s", created.EffectiveAt, wantEffective)
	}

	// The live price stays put until the effective time elapses.
	scenario, _ := f.scenarios.GetByKey("featured_slot")
	if !scenario.Price.Equal(dec(t, "3")) {
		t.Errorf("live price = %s, want untouched 3", scenario.Price)
	}

	early, err := f.svc.ActivationSweep(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("early sweep: %v", err)
	}
	if early != 0 {
		t.Errorf("early sweep applied %d, want 0", early)
	}

	due := time.Now().UTC().Add(deferredDelay + time.Hour)
	applied, err := f.svc.ActivationSweep(ctx, due)
	if err != nil {
		t.Fatalf("due sweep: %v", err)
	}
	if applied != 1 {
		t.Errorf("due sweep applied %d, want 1", applied)
	}

	scenario, _ = f.scenarios.GetByKey("featured_slot")
	if !scenario.Price.Equal(dec(t, "5")) {
		t.Errorf("live price = %s, want 5", scenario.Price)
	}

	// A second sweep over the same records applies nothing.
	again, err := f.svc.ActivationSweep(ctx, due)
	if err != nil {
		t.Fatalf("repeat sweep: %v", err)
	}
	if again != 0 {
		t.Errorf("repeat sweep applied %d, want 0", again)
	}
}

func TestSetActiveToggles(t *testing.T) {
	f := setupConfigFixture(t)
	ctx := context.Background()
	reason := "maintenance window for the task"

	if _, err := f.svc.SetActive(ctx, 1, "daily_login", model.ConfigTaskReward, false, reason); err != nil {
		t.Fatalf("disable task: %v", err)
	}
	task, _ := f.tasks.GetByKey("daily_login")
	if task.Active {
		t.Error("task should be inactive")
	}

	if _, err := f.svc.SetActive(ctx, 1, "daily_login", model.ConfigTaskReward, true, reason); err != nil {
		t.Fatalf("enable task: %v", err)
	}
	task, _ = f.tasks.GetByKey("daily_login")
	if !task.Active {
		t.Error("task should be active again")
	}

	created, err := f.svc.SetActive(ctx, 1, "featured_slot", model.ConfigConsumptionPrice, false, reason)
	if err != nil {
		t.Fatalf("disable scenario: %v", err)
	}
	if created.ConfigKey != "scenario_active_featured_slot" {
		t.Errorf("config key = %q, want scenario_active_featured_slot", created.ConfigKey)
	}
	scenario, _ := f.scenarios.GetByKey("featured_slot")
	if scenario.Active {
		t.Error("scenario should be inactive")
	}
}

func TestListRecentChanges(t *testing.T) {
	f := setupConfigFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ScheduleChange(ctx, 1, "daily_login", model.ConfigTaskReward, dec(t, "0.3"), "first reward adjustment", true); err != nil {
		t.Fatalf("first change: %v", err)
	}
	second, err := f.svc.ScheduleChange(ctx, 1, "daily_login", model.ConfigTaskReward, dec(t, "0.4"), "second reward adjustment", true)
	if err != nil {
		t.Fatalf("second change: %v", err)
	}

	recent, err := f.svc.ListRecentChanges(1)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != second.ID {
		t.Fatalf("recent = %v, want just change %d", recent, second.ID)
	}
}
