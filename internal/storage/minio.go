package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/winstondavid829/ats-platform/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ObjectStorage 简历文件对象存储接口
type ObjectStorage interface {
	// UploadResumeFile 上传简历原件，返回对象key
	UploadResumeFile(ctx context.Context, applicationID, fileExt string, reader io.Reader, fileSize int64) (string, error)

	// ResumeFileURL 生成简历文件的预签名GET URL，作为file_url传给解析服务
	ResumeFileURL(ctx context.Context, objectKey string) (string, error)

	// DeleteResumeFile 删除简历原件
	DeleteResumeFile(ctx context.Context, objectKey string) error
}

// ErrObjectStorageUnavailable 对象存储未初始化
var ErrObjectStorageUnavailable = errors.New("对象存储未初始化, 无法处理简历文件")

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供简历文件的对象存储
type MinIO struct {
	client        *minio.Client
	cfg           *config.MinIOConfig
	resumeBucket  string
	presignExpiry time.Duration
	logger        *log.Logger
}

// NewMinIO 创建MinIO客户端并准备简历存储桶
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:        client,
		cfg:           cfg,
		resumeBucket:  cfg.ResumeBucket,
		presignExpiry: time.Duration(cfg.PresignExpiryMinutes) * time.Minute,
		logger:        logger,
	}

	if err := m.ensureBucketExists(cfg.ResumeBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保简历存储桶 %s 存在失败: %w", cfg.ResumeBucket, err)
	}

	if cfg.ResumeExpireDays > 0 {
		if err := m.setupBucketLifecycle(context.Background(), cfg.ResumeBucket, "expire-resumes", cfg.ResumeExpireDays); err != nil {
			// 生命周期规则失败不致命
			logger.Printf("[MinIO] Warning: failed to set lifecycle rule: %v", err)
		}
	}

	logger.Printf("[MinIO] Client initialized for endpoint %s, bucket %s", cfg.Endpoint, cfg.ResumeBucket)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		if err := m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] Bucket %s created", bucketName)
	}
	return nil
}

// setupBucketLifecycle 为存储桶设置对象过期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// UploadResumeFile 上传简历原件。
// 对象key形如 resume/{applicationID}/original{.ext}。
func (m *MinIO) UploadResumeFile(ctx context.Context, applicationID, fileExt string, reader io.Reader, fileSize int64) (string, error) {
	if m == nil {
		return "", ErrObjectStorageUnavailable
	}
	objectKey := fmt.Sprintf("resume/%s/original%s", applicationID, fileExt)
	contentType := resumeContentType(fileExt)

	_, err := m.client.PutObject(ctx, m.resumeBucket, objectKey, reader, fileSize,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传简历 %s/%s 失败: %w", m.resumeBucket, objectKey, err)
	}
	return objectKey, nil
}

// ResumeFileURL 生成预签名GET URL。
// 有效期必须覆盖外部解析服务的整个超时窗口，否则对方下载到一半URL过期。
func (m *MinIO) ResumeFileURL(ctx context.Context, objectKey string) (string, error) {
	if m == nil {
		return "", ErrObjectStorageUnavailable
	}
	u, err := m.client.PresignedGetObject(ctx, m.resumeBucket, objectKey, m.presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名URL失败 (%s): %w", objectKey, err)
	}
	return u.String(), nil
}

// DeleteResumeFile 删除简历原件
func (m *MinIO) DeleteResumeFile(ctx context.Context, objectKey string) error {
	if m == nil {
		return ErrObjectStorageUnavailable
	}
	if err := m.client.RemoveObject(ctx, m.resumeBucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除简历 %s 失败: %w", objectKey, err)
	}
	return nil
}

// resumeContentType 按扩展名推断Content-Type
func resumeContentType(fileExt string) string {
	switch strings.ToLower(fileExt) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
