// runner.go - планировщик фоновых задач
//
// Назначение:
// Обертка над robfig/cron: задачи получают базовый context,
// ограничены таймаутом, не перекрываются и не роняют процесс паникой.
// Каждый запуск попадает в метрику job_runs_total и в лог.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"signalhub/internal/metrics"
	"signalhub/pkg/utils"
)

// DefaultJobTimeout таймаут одного запуска задачи
const DefaultJobTimeout = 2 * time.Minute

// JobFunc задача; ошибка логируется и учитывается в метриках
type JobFunc func(ctx context.Context) error

// Runner планировщик задач
type Runner struct {
	cron    *cron.Cron
	log     *utils.Logger
	baseCtx context.Context
	timeout time.Duration
	names   map[cron.EntryID]string
}

// cronLogger адаптер utils.Logger к cron.Logger
type cronLogger struct {
	log *utils.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

// New создает Runner. Расписания принимают 5 полей или 6 с секундами,
// а также дескрипторы вида @every 1m, @hourly.
func New(baseCtx context.Context, timeout time.Duration) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	log := utils.L().WithComponent("jobs")
	clog := cronLogger{log: log}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Runner{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		log:     log,
		baseCtx: baseCtx,
		timeout: timeout,
		names:   make(map[cron.EntryID]string),
	}
}

// Add регистрирует задачу. Пустое расписание отключает задачу (возвращает 0, nil).
func (r *Runner) Add(spec, name string, job JobFunc) (cron.EntryID, error) {
	if spec == "" || spec == "-" {
		r.log.Info("job disabled", utils.String("job", name))
		return 0, nil
	}
	id, err := r.cron.AddFunc(spec, func() { r.run(name, job) })
	if err != nil {
		return 0, fmt.Errorf("schedule job %s (%q): %w", name, spec, err)
	}
	r.names[id] = name
	r.log.Info("job scheduled", utils.String("job", name), utils.String("spec", spec))
	return id, nil
}

func (r *Runner) run(name string, job JobFunc) {
	ctx, cancel := context.WithTimeout(r.baseCtx, r.timeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	metrics.RecordJobRun(name, err)

	fields := []utils.Field{utils.String("job", name), utils.Latency(float64(time.Since(start).Microseconds()) / 1000)}
	if err != nil {
		r.log.Error("job failed", append(fields, utils.Err(err))...)
		return
	}
	r.log.Debug("job finished", fields...)
}

// Jobs возвращает имена зарегистрированных задач
func (r *Runner) Jobs() []string {
	out := make([]string, 0, len(r.names))
	for _, e := range r.cron.Entries() {
		out = append(out, r.names[e.ID])
	}
	return out
}

// Start запускает планировщик в отдельной горутине
func (r *Runner) Start() {
	r.log.Info("cron started", utils.Int("jobs", len(r.names)))
	r.cron.Start()
}

// Stop останавливает планировщик и ждет завершения выполняющихся задач
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("cron stopped")
}
