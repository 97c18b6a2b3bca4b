package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/bemechallenge/models"
	"github.com/cppla/bemechallenge/utils"
)

// DefaultExpirySpec runs every five minutes, on second zero.
const DefaultExpirySpec = "0 */5 * * * *"

// ChallengeExpiry closes challenges whose end date has passed.
type ChallengeExpiry struct {
	cron   *cron.Cron
	db     *gorm.DB
	spec   string
	now    func() time.Time
	logger *zap.Logger
}

func NewChallengeExpiry(db *gorm.DB, spec string, logger *zap.Logger) *ChallengeExpiry {
	if spec == "" {
		spec = DefaultExpirySpec
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeExpiry{
		cron:   cron.New(cron.WithSeconds()),
		db:     db,
		spec:   spec,
		now:    time.Now,
		logger: logger,
	}
}

func (j *ChallengeExpiry) Start() error {
	_, err := j.cron.AddFunc(j.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error("challenge expiry run failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("challenge expiry scheduler started", zap.String("spec", j.spec))
	return nil
}

// Stop waits for a running job to finish, or for ctx to expire.
func (j *ChallengeExpiry) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
		j.logger.Info("challenge expiry scheduler stopped")
	case <-ctx.Done():
		j.logger.Warn("challenge expiry scheduler stop timed out")
	}
}

// Run closes every open challenge with end_date <= now and returns how many it closed.
func (j *ChallengeExpiry) Run(ctx context.Context) (int64, error) {
	now := j.now().UTC()
	res := j.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("closed = ? AND end_date IS NOT NULL AND end_date <= ?", false, now).
		Update("closed", true)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		utils.InvalidateByPrefix(utils.CacheChallengeListPrefix)
		j.logger.Info("closed expired challenges", zap.Int64("count", res.RowsAffected), zap.Time("now", now))
	}
	return res.RowsAffected, nil
}
