package services

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"ilmhub_go/config"
	"ilmhub_go/database"
	"ilmhub_go/models"

	"gorm.io/gorm"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusStale    = "stale"
	dependencyStatusDisabled = "disabled"

	defaultServiceName = "IlmHub Session Engine"
	defaultVersion     = "1.0.0"
	defaultTimeout     = 1500 * time.Millisecond

	// The sweeps run every minute; a heartbeat older than this means the
	// scheduler is wedged and time-based transitions are not happening.
	sweepStaleAfter = 5 * time.Minute
)

// HealthService aggregates dependency probes and engine gauges for the
// health endpoint.
type HealthService struct {
	serviceName string
	version     string
	startTime   time.Time
	timeout     time.Duration
}

// HealthReport is the JSON response for the health endpoint.
type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	UptimeHuman   string             `json:"uptime_human"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Engine        EngineGauges       `json:"engine"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	Flags         HealthFlags        `json:"flags"`
}

// DependencyStatus captures the health of a single dependency probe.
type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// EngineGauges counts the work currently flowing through the session
// lifecycle: live sessions, event-log backlog and the payout pipeline.
type EngineGauges struct {
	OngoingSessions    int64  `json:"ongoing_sessions"`
	AwaitingSweep      int64  `json:"awaiting_sweep"`
	OpenJoins          int64  `json:"open_joins"`
	UnmatchedLeaves    int64  `json:"unmatched_leaves"`
	PendingPayouts     int64  `json:"pending_payouts"`
	UnassignedEarnings int64  `json:"unassigned_earnings"`
	LastSweepUnix      *int64 `json:"last_sweep_unix,omitempty"`
	CollectionError    string `json:"collection_error,omitempty"`
}

// RuntimeMetrics captures process-level diagnostics.
type RuntimeMetrics struct {
	Goroutines     int    `json:"goroutines"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	LastGCUnix     *int64 `json:"last_gc_unix,omitempty"`
	GoVersion      string `json:"go_version"`
}

// HealthFlags exposes feature toggles that influence runtime behaviour.
type HealthFlags struct {
	SkipMigrate           bool `json:"skip_migrate"`
	UseRedisNotifications bool `json:"use_redis_notifications"`
	UseRedisIdempotency   bool `json:"use_redis_idempotency"`
}

// NewHealthService creates a HealthService with sensible defaults.
func NewHealthService(serviceName, version string) *HealthService {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultServiceName
	}
	if strings.TrimSpace(version) == "" {
		version = defaultVersion
	}

	return &HealthService{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		timeout:     defaultTimeout,
	}
}

// SetStartTime overrides the start time used for uptime calculations.
func (s *HealthService) SetStartTime(t time.Time) {
	if !t.IsZero() {
		s.startTime = t
	}
}

// SetTimeout overrides the timeout used when probing dependencies.
func (s *HealthService) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// GetHealthReport probes the dependencies and collects the engine gauges.
func (s *HealthService) GetHealthReport() HealthReport {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	now := time.Now()
	report := HealthReport{
		Status:      overallStatusOK,
		Service:     s.serviceName,
		Version:     s.version,
		Environment: currentEnvironment(),
		Time:        now.UTC(),
	}

	uptime := now.Sub(s.startTime)
	if uptime < 0 {
		uptime = 0
	}
	report.UptimeSeconds = uptime.Seconds()
	report.UptimeHuman = humanizeDuration(uptime)

	var deps []DependencyStatus

	dbDep, dbStatus := s.checkDatabase(ctx)
	deps = append(deps, dbDep)
	report.Status = combineStatus(report.Status, dbStatus)

	redisDep, redisStatus := s.checkRedis(ctx)
	deps = append(deps, redisDep)
	report.Status = combineStatus(report.Status, redisStatus)

	sweepAt, sweepOk := LastSweepRun()
	sweepDep, sweepStatus := checkSweeper(now, uptime, sweepAt, sweepOk)
	deps = append(deps, sweepDep)
	report.Status = combineStatus(report.Status, sweepStatus)

	report.Dependencies = deps
	if dbStatus == overallStatusOK {
		report.Engine = collectEngineGauges(database.DB, sweepAt, sweepOk)
	}
	report.Runtime = collectRuntimeMetrics()
	report.Flags = collectFlags()

	return report
}

// HTTPStatusForOverall maps a health status to an HTTP status code.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	switch status {
	case overallStatusCritical:
		return 503
	default:
		return 200
	}
}

func (s *HealthService) checkDatabase(ctx context.Context) (DependencyStatus, string) {
	dep := DependencyStatus{Name: "mysql"}

	if database.DB == nil {
		dep.Status = dependencyStatusDown
		dep.Error = "database connection not initialised"
		return dep, overallStatusCritical
	}

	sqlDB, err := database.DB.DB()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = fmt.Sprintf("sql DB handle error: %v", err)
		return dep, overallStatusCritical
	}

	pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	start := time.Now()
	err = sqlDB.PingContext(pingCtx)
	cancel()
	dep.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep, overallStatusCritical
	}

	dep.Status = dependencyStatusUp
	stats := sqlDB.Stats()
	dep.Details = map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_open_connections": stats.MaxOpenConnections,
	}
	return dep, overallStatusOK
}

func (s *HealthService) checkRedis(ctx context.Context) (DependencyStatus, string) {
	dep := DependencyStatus{Name: "redis"}

	client := database.GetRedisClient()
	useRedis := config.AppConfig != nil && (config.AppConfig.UseRedisNotifications || config.AppConfig.UseRedisIdempotency)

	if client == nil {
		if useRedis {
			dep.Status = dependencyStatusDown
			dep.Error = "redis client not initialised"
			return dep, overallStatusDegraded
		}
		dep.Status = dependencyStatusDisabled
		return dep, overallStatusOK
	}

	pingCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	start := time.Now()
	res := client.Ping(pingCtx)
	cancel()
	dep.LatencyMs = time.Since(start).Milliseconds()

	if err := res.Err(); err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		if useRedis {
			return dep, overallStatusDegraded
		}
		return dep, overallStatusOK
	}

	dep.Status = dependencyStatusUp
	mode := "optional"
	if useRedis {
		mode = "idempotency"
	}
	dep.Details = map[string]interface{}{
		"address": client.Options().Addr,
		"mode":    mode,
	}
	return dep, overallStatusOK
}

// checkSweeper turns the sweep heartbeat into a dependency. A silent sweeper
// degrades the service: webhooks still land but no-shows and overdue
// completions stop resolving.
func checkSweeper(now time.Time, uptime time.Duration, lastRun time.Time, ran bool) (DependencyStatus, string) {
	dep := DependencyStatus{Name: "sweep_scheduler"}

	if !ran {
		if uptime < sweepStaleAfter {
			// Still inside the startup window before the first pass.
			dep.Status = dependencyStatusUp
			return dep, overallStatusOK
		}
		dep.Status = dependencyStatusDown
		dep.Error = "no sweep pass has completed since startup"
		return dep, overallStatusDegraded
	}

	age := now.Sub(lastRun)
	dep.Details = map[string]interface{}{
		"last_run":    lastRun.UTC().Format(time.RFC3339),
		"age_seconds": int64(age.Seconds()),
	}
	if age > sweepStaleAfter {
		dep.Status = dependencyStatusStale
		dep.Error = fmt.Sprintf("last sweep pass finished %s ago", humanizeDuration(age))
		return dep, overallStatusDegraded
	}

	dep.Status = dependencyStatusUp
	return dep, overallStatusOK
}

// collectEngineGauges counts live lifecycle work. Failures are reported in
// the gauges themselves rather than failing the whole health check.
func collectEngineGauges(db *gorm.DB, sweepAt time.Time, sweepOk bool) EngineGauges {
	gauges := EngineGauges{}
	if sweepOk {
		unix := sweepAt.Unix()
		gauges.LastSweepUnix = &unix
	}

	record := func(err error) {
		if err != nil && gauges.CollectionError == "" {
			gauges.CollectionError = err.Error()
		}
	}

	record(countSessionsByStatus(db, []string{models.SessionStatusOngoing}, &gauges.OngoingSessions))
	record(countSessionsByStatus(db, []string{models.SessionStatusScheduled, models.SessionStatusReady}, &gauges.AwaitingSweep))

	record(db.Model(&models.MeetingAttendanceEvent{}).
		Where("event_type IN ? AND left_at IS NULL",
			[]string{models.AttendanceEventJoin, models.AttendanceEventReconnect}).
		Count(&gauges.OpenJoins).Error)

	paired := db.Model(&models.MeetingAttendanceEvent{}).
		Select("leave_event_id").Where("leave_event_id IS NOT NULL")
	record(db.Model(&models.MeetingAttendanceEvent{}).
		Where("event_type IN ? AND event_timestamp >= ? AND event_id NOT IN (?)",
			[]string{models.AttendanceEventLeave, models.AttendanceEventAborted},
			time.Now().Add(-24*time.Hour), paired).
		Count(&gauges.UnmatchedLeaves).Error)

	record(db.Model(&models.TeacherPayout{}).
		Where("status = ?", models.PayoutStatusPending).
		Count(&gauges.PendingPayouts).Error)
	record(db.Model(&models.TeacherEarning{}).
		Where("payout_id IS NULL AND disputed = ?", false).
		Count(&gauges.UnassignedEarnings).Error)

	return gauges
}

func countSessionsByStatus(db *gorm.DB, statuses []string, out *int64) error {
	total := int64(0)
	for _, model := range []interface{}{
		&models.IndividualSession{}, &models.CircleSession{}, &models.CourseSession{},
	} {
		var n int64
		if err := db.Model(model).Where("status IN ?", statuses).Count(&n).Error; err != nil {
			return err
		}
		total += n
	}
	*out = total
	return nil
}

func collectRuntimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	metrics := RuntimeMetrics{
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
		SysBytes:       mem.Sys,
		GoVersion:      runtime.Version(),
	}
	if mem.LastGC != 0 {
		unix := time.Unix(0, int64(mem.LastGC)).Unix()
		metrics.LastGCUnix = &unix
	}
	return metrics
}

func collectFlags() HealthFlags {
	if config.AppConfig == nil {
		return HealthFlags{}
	}
	return HealthFlags{
		SkipMigrate:           config.AppConfig.SkipMigrate,
		UseRedisNotifications: config.AppConfig.UseRedisNotifications,
		UseRedisIdempotency:   config.AppConfig.UseRedisIdempotency,
	}
}

func currentEnvironment() string {
	if config.AppConfig == nil {
		return "unknown"
	}
	env := strings.TrimSpace(config.AppConfig.AppEnv)
	if env == "" {
		return "unknown"
	}
	return env
}

func combineStatus(current, candidate string) string {
	order := map[string]int{
		overallStatusOK:       0,
		overallStatusDegraded: 1,
		overallStatusCritical: 2,
	}
	if _, ok := order[current]; !ok {
		current = overallStatusOK
	}
	if v, ok := order[candidate]; ok && v > order[current] {
		return candidate
	}
	return current
}

func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d %= 24 * time.Hour
	hours := d / time.Hour
	d %= time.Hour
	minutes := d / time.Minute
	d %= time.Minute
	seconds := d / time.Second

	parts := []string{}
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}
