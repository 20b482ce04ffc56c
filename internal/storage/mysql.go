package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/winstondavid829/ats-platform/internal/config"
	"github.com/winstondavid829/ats-platform/internal/storage/models"
	"github.com/winstondavid829/ats-platform/internal/tracing"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("ats-platform/storage/mysql")

// 存储层哨兵错误。上层（lifecycle、parsing）只认这些，不关心GORM细节。
var (
	// ErrApplicationNotFound 申请不存在
	ErrApplicationNotFound = errors.New("application not found")
	// ErrJobNotFound 岗位不存在
	ErrJobNotFound = errors.New("job posting not found")
	// ErrConflict 行锁竞争导致的瞬时冲突，调用方应做有界重试
	ErrConflict = errors.New("concurrent transition conflict")
)

// MySQL死锁/锁等待超时的错误码，映射为ErrConflict
const (
	mysqlErrLockDeadlock    = 1213
	mysqlErrLockWaitTimeout = 1205
)

type otelSpanKey struct{}

// GormTracingPlugin GORM插件，为数据库操作添加OpenTelemetry追踪点
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		newCtx, span := p.tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)

		db.Statement.Context = context.WithValue(newCtx, otelSpanKey{}, span)
	}
}

// after 返回在GORM操作之后执行的回调
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(otelSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				// 记录未找到属于正常业务分支，不算错误
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer: mysqlTracer,
		dbName: dbName,
	}
}

// MySQL 关系型存储，持有申请/岗位/审计/发件箱四张表
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{db: db, cfg: cfg}

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 自动迁移表结构（迁移期间静默GORM日志）
func (m *MySQL) autoMigrateSchema() error {
	silentDB := m.db.Session(&gorm.Session{Logger: logger.Default.LogMode(logger.Silent)})
	if err := silentDB.AutoMigrate(
		&models.JobPosting{},
		&models.Application{},
		&models.StatusAuditEntry{},
		&models.OutboxMessage{},
	); err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// isLockConflict 判断是否为死锁/锁等待超时这类瞬时冲突
func isLockConflict(err error) bool {
	var mysqlErr *gosqlmysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrLockDeadlock || mysqlErr.Number == mysqlErrLockWaitTimeout
	}
	return false
}

// CreateApplicationWithOutbox 在同一个事务里持久化申请和解析任务的发件箱消息。
// 两者同生共死：要么申请创建成功且解析任务必然会被投递，要么都不存在。
func (m *MySQL) CreateApplicationWithOutbox(ctx context.Context, app *models.Application, msg *models.OutboxMessage) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(app).Error; err != nil {
			return fmt.Errorf("创建申请记录失败: %w", err)
		}
		if msg != nil {
			if err := tx.Create(msg).Error; err != nil {
				return fmt.Errorf("写入发件箱消息失败: %w", err)
			}
		}
		return nil
	})
}

// GetApplicationByID 通过ID获取申请
func (m *MySQL) GetApplicationByID(ctx context.Context, applicationID string) (*models.Application, error) {
	var app models.Application
	err := m.db.WithContext(ctx).Where("application_id = ?", applicationID).First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("查询申请失败: %w", err)
	}
	return &app, nil
}

// ListApplications 按岗位/状态过滤的申请列表，最新投递在前
func (m *MySQL) ListApplications(ctx context.Context, jobID string, status models.ApplicationStatus, limit, offset int) ([]models.Application, error) {
	q := m.db.WithContext(ctx).Model(&models.Application{})
	if jobID != "" {
		q = q.Where("job_id = ?", jobID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var apps []models.Application
	if err := q.Order("created_at desc").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("查询申请列表失败: %w", err)
	}
	return apps, nil
}

// TransitionStatus 原子地执行一次状态流转。
//
// 整个 读取-比较-写入-审计 序列在一个事务里完成，申请行通过
// SELECT ... FOR UPDATE 加锁，并发流转在行锁上串行化，不存在
// 两个事务读到同一个旧状态各写一条审计的窗口。
//
// 返回 (申请, 是否发生了有效变更, 错误)。newStatus == 当前状态时
// 完全不写库：不更新时间戳、不追加审计。
func (m *MySQL) TransitionStatus(ctx context.Context, applicationID string, newStatus models.ApplicationStatus, actor *string, note string) (*models.Application, bool, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.TransitionStatus",
		trace.WithAttributes(
			attribute.String("application.id", applicationID),
			attribute.String("application.to_status", newStatus.String()),
		))
	defer span.End()

	var app models.Application
	changed := false

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("application_id = ?", applicationID).
			First(&app).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrApplicationNotFound
			}
			return fmt.Errorf("锁定申请行失败: %w", err)
		}

		if app.Status == newStatus {
			// 同值写入是完整的no-op
			return nil
		}

		now := time.Now()
		fromStatus := app.Status
		if err := tx.Model(&models.Application{}).
			Where("application_id = ?", applicationID).
			Updates(map[string]interface{}{
				"status":     newStatus,
				"updated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("更新申请状态失败: %w", err)
		}

		entry := models.StatusAuditEntry{
			ApplicationID: applicationID,
			FromStatus:    fromStatus,
			ToStatus:      newStatus,
			Actor:         actor,
			Note:          note,
			ChangedAt:     now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("追加状态审计记录失败: %w", err)
		}

		app.Status = newStatus
		app.UpdatedAt = now
		changed = true
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrApplicationNotFound) {
			span.SetStatus(codes.Ok, "application not found")
			return nil, false, ErrApplicationNotFound
		}
		if isLockConflict(err) {
			tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeConflict,
				attribute.String("application.id", applicationID))
			return nil, false, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, false, err
	}

	span.SetAttributes(attribute.Bool("application.status_changed", changed))
	return &app, changed, nil
}

// ListAuditTrail 返回某个申请的全部状态审计记录，最近变更在前
func (m *MySQL) ListAuditTrail(ctx context.Context, applicationID string) ([]models.StatusAuditEntry, error) {
	var entries []models.StatusAuditEntry
	err := m.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("changed_at desc, entry_id desc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("查询状态审计记录失败: %w", err)
	}
	return entries, nil
}

// SaveParsedResult 用一次成功解析的结果整体覆盖申请上的解析字段。
// 覆盖而非合并：后一次成功解析总是完全取代前一次结果。
func (m *MySQL) SaveParsedResult(ctx context.Context, applicationID string, result *models.ParsedResult) error {
	skills := result.Skills
	if skills == nil {
		skills = []string{}
	}
	skillsJSON, err := json.Marshal(skills)
	if err != nil {
		return fmt.Errorf("序列化技能列表失败: %w", err)
	}

	res := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("application_id = ?", applicationID).
		Updates(map[string]interface{}{
			"parsed_skills_json": skillsJSON,
			"parsed_experience":  result.Experience,
			"parsed_education":   result.Education,
			"parsed_email":       result.Email,
			"parsed_phone":       result.Phone,
			"score":              result.Score,
			"parse_status":       models.ParseStatusCompleted,
			"parse_error":        "",
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("保存解析结果失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

// MarkParseFailed 记录一次解析软失败，供排障观察。已有的解析字段保持原样。
func (m *MySQL) MarkParseFailed(ctx context.Context, applicationID string, cause string) error {
	return m.db.WithContext(ctx).Model(&models.Application{}).
		Where("application_id = ?", applicationID).
		Updates(map[string]interface{}{
			"parse_status": models.ParseStatusFailed,
			"parse_error":  cause,
		}).Error
}

// EnqueueParseRequest 为已持久化的申请写入一条解析任务发件箱消息（独立事务）。
// 重新解析走这里；创建路径用 CreateApplicationWithOutbox 合并在同一事务。
func (m *MySQL) EnqueueParseRequest(ctx context.Context, msg *models.OutboxMessage) error {
	if err := m.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("写入发件箱消息失败: %w", err)
	}
	return nil
}

// CreateJobPosting 创建岗位
func (m *MySQL) CreateJobPosting(ctx context.Context, job *models.JobPosting) error {
	if err := m.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("创建岗位失败: %w", err)
	}
	return nil
}

// GetJobPostingByID 通过ID获取岗位
func (m *MySQL) GetJobPostingByID(ctx context.Context, jobID string) (*models.JobPosting, error) {
	var job models.JobPosting
	err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}
	return &job, nil
}

// ListJobPostings 岗位列表，最新在前
func (m *MySQL) ListJobPostings(ctx context.Context, status models.JobStatus) ([]models.JobPosting, error) {
	q := m.db.WithContext(ctx).Model(&models.JobPosting{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []models.JobPosting
	if err := q.Order("created_at desc").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("查询岗位列表失败: %w", err)
	}
	return jobs, nil
}

// UpdateJobStatus 开关岗位（close/reopen）
func (m *MySQL) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus) (*models.JobPosting, error) {
	res := m.db.WithContext(ctx).Model(&models.JobPosting{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{"status": status})
	if res.Error != nil {
		return nil, fmt.Errorf("更新岗位状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrJobNotFound
	}
	return m.GetJobPostingByID(ctx, jobID)
}
