package economy

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/metrics"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/notice"
	"github.com/canvashq/canvas/internal/store"
)

const (
	minReasonLength = 10
	deferredDelay   = 24 * time.Hour
)

// maxConfigValue bounds reward and price magnitudes against fat-finger and
// economic-attack values.
var maxConfigValue = decimal.NewFromInt(1_000_000)

// ConfigService versions economic parameters. Every change request appends
// an audit record; the live Task.reward_points or Scenario.price is mutated
// either in the same transaction (immediate) or by the activation sweep once
// the effective time elapses (deferred).
type ConfigService struct {
	db        *sql.DB
	configs   *store.EconConfigStore
	tasks     *store.TaskStore
	scenarios *store.ScenarioStore
	publisher notice.Publisher
	logger    *slog.Logger
}

func NewConfigService(db *sql.DB, configs *store.EconConfigStore, tasks *store.TaskStore, scenarios *store.ScenarioStore, publisher notice.Publisher, logger *slog.Logger) *ConfigService {
	return &ConfigService{db: db, configs: configs, tasks: tasks, scenarios: scenarios, publisher: publisher, logger: logger}
}

// ScheduleChange records a reward or price change. Immediate changes update
// the live value in the same transaction as the audit record; deferred
// changes leave it untouched until the activation sweep observes
// effective_at elapsed.
func (s *ConfigService) ScheduleChange(ctx context.Context, actorID int64, targetKey string, configType model.ConfigType, value decimal.Decimal, reason string, immediate bool) (*model.EconomicConfig, error) {
	if len(strings.TrimSpace(reason)) < minReasonLength {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrReasonTooShort, minReasonLength)
	}
	if value.IsNegative() || value.GreaterThan(maxConfigValue) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfigValue, value)
	}
	if configType != model.ConfigTaskReward && configType != model.ConfigConsumptionPrice {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConfigType, configType)
	}

	now := time.Now().UTC()
	effectiveAt := now
	if !immediate {
		effectiveAt = now.Add(deferredDelay)
	}

	record := model.EconomicConfig{
		ConfigKey:    fmt.Sprintf("%s_%s", configType, targetKey),
		ConfigType:   configType,
		TargetKey:    targetKey,
		Value:        value,
		ChangeReason: reason,
		UpdatedBy:    actorID,
		EffectiveAt:  effectiveAt,
	}

	var created *model.EconomicConfig
	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.checkTargetTx(tx, configType, targetKey); err != nil {
			return err
		}

		var appliedAt *time.Time
		if immediate {
			appliedAt = &now
		}
		var err error
		created, err = s.configs.InsertTx(tx, record, appliedAt)
		if err != nil {
			return err
		}

		if immediate {
			return s.applyLiveTx(tx, configType, targetKey, value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("economic config change scheduled",
		"config_key", created.ConfigKey,
		"value", value,
		"immediate", immediate,
		"effective_at", effectiveAt,
		"actor_id", actorID,
	)

	verb := "takes effect"
	if immediate {
		verb = "took effect"
	}
	s.publisher.Publish(notice.New(
		fmt.Sprintf("Economic parameter change: %s", created.ConfigKey),
		fmt.Sprintf("%s set to %s, %s %s", targetKey, value, verb, effectiveAt.Format(time.RFC3339)),
		reason,
		actorID,
		effectiveAt,
	))
	metrics.NoticesPublished.Inc()

	return created, nil
}

// SetActive toggles a task or scenario on or off. Toggles are always
// immediate; there is no deferred-activation path for them.
func (s *ConfigService) SetActive(ctx context.Context, actorID int64, targetKey string, configType model.ConfigType, active bool, reason string) (*model.EconomicConfig, error) {
	if len(strings.TrimSpace(reason)) < minReasonLength {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrReasonTooShort, minReasonLength)
	}
	if configType != model.ConfigTaskReward && configType != model.ConfigConsumptionPrice {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConfigType, configType)
	}

	now := time.Now().UTC()
	value := decimal.Zero
	if active {
		value = decimal.NewFromInt(1)
	}

	prefix := "task_active"
	if configType == model.ConfigConsumptionPrice {
		prefix = "scenario_active"
	}
	record := model.EconomicConfig{
		ConfigKey:    fmt.Sprintf("%s_%s", prefix, targetKey),
		ConfigType:   configType,
		TargetKey:    targetKey,
		Value:        value,
		ChangeReason: reason,
		UpdatedBy:    actorID,
		EffectiveAt:  now,
	}

	var created *model.EconomicConfig
	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.checkTargetTx(tx, configType, targetKey); err != nil {
			return err
		}

		var err error
		created, err = s.configs.InsertTx(tx, record, &now)
		if err != nil {
			return err
		}

		if configType == model.ConfigTaskReward {
			return s.tasks.SetActiveTx(tx, targetKey, active)
		}
		return s.scenarios.SetActiveTx(tx, targetKey, active)
	})
	if err != nil {
		return nil, err
	}

	state := "disabled"
	if active {
		state = "enabled"
	}
	s.logger.Info("economic target toggled",
		"config_key", created.ConfigKey,
		"active", active,
		"actor_id", actorID,
	)
	s.publisher.Publish(notice.New(
		fmt.Sprintf("%s %s", targetKey, state),
		fmt.Sprintf("%s has been %s", targetKey, state),
		reason,
		actorID,
		now,
	))
	metrics.NoticesPublished.Inc()

	return created, nil
}

// ActivationSweep applies every deferred change whose effective time has
// elapsed, exactly once each. Safe to run concurrently with itself: the
// conditional applied_at stamp decides a single winner per record. Returns
// the number of changes applied.
func (s *ConfigService) ActivationSweep(ctx context.Context, now time.Time) (int, error) {
	pending, err := s.configs.ListPendingDue(now)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, cfg := range pending {
		err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			won, err := s.configs.MarkAppliedTx(tx, cfg.ID, now)
			if err != nil {
				return err
			}
			if !won {
				// Another sweep got here first.
				return nil
			}
			if err := s.applyLiveTx(tx, cfg.ConfigType, cfg.TargetKey, cfg.Value); err != nil {
				return err
			}
			applied++
			return nil
		})
		if err != nil {
			return applied, fmt.Errorf("apply config %d: %w", cfg.ID, err)
		}
	}

	if applied > 0 {
		for i := 0; i < applied; i++ {
			metrics.ConfigActivations.Inc()
		}
		s.logger.Info("deferred config changes applied", "count", applied)
	}
	return applied, nil
}

// StartSweep schedules the activation sweep on a cron expression and returns
// the running scheduler so the caller can stop it on shutdown.
func (s *ConfigService) StartSweep(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := s.ActivationSweep(context.Background(), time.Now().UTC()); err != nil {
			s.logger.Error("activation sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	return c, nil
}

// ListRecentChanges returns the newest audit records for admin screens.
func (s *ConfigService) ListRecentChanges(limit int) ([]model.EconomicConfig, error) {
	return s.configs.ListRecent(limit)
}

func (s *ConfigService) checkTargetTx(tx *sql.Tx, configType model.ConfigType, targetKey string) error {
	switch configType {
	case model.ConfigTaskReward:
		task, err := s.tasks.GetByKeyTx(tx, targetKey)
		if err != nil {
			return err
		}
		if task == nil {
			return fmt.Errorf("%w: %q", ErrTaskNotFound, targetKey)
		}
	case model.ConfigConsumptionPrice:
		scenario, err := s.scenarios.GetByKeyTx(tx, targetKey)
		if err != nil {
			return err
		}
		if scenario == nil {
			return fmt.Errorf("%w: %q", ErrScenarioNotFound, targetKey)
		}
	}
	return nil
}

func (s *ConfigService) applyLiveTx(tx *sql.Tx, configType model.ConfigType, targetKey string, value decimal.Decimal) error {
	if configType == model.ConfigTaskReward {
		return s.tasks.SetRewardTx(tx, targetKey, value)
	}
	return s.scenarios.SetPriceTx(tx, targetKey, value)
}
