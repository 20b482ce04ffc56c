package parsing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/winstondavid829/ats-platform/internal/config"
	"github.com/winstondavid829/ats-platform/internal/storage"
	"github.com/winstondavid829/ats-platform/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeParsedFieldsStore 内存版解析字段存储
type fakeParsedFieldsStore struct {
	apps map[string]*models.Application
	jobs map[string]*models.JobPosting

	saved      map[string]*models.ParsedResult
	failures   map[string]string
	saveErr    error
	jobLoadErr error
}

func newFakeParsedFieldsStore() *fakeParsedFieldsStore {
	return &fakeParsedFieldsStore{
		apps:     make(map[string]*models.Application),
		jobs:     make(map[string]*models.JobPosting),
		saved:    make(map[string]*models.ParsedResult),
		failures: make(map[string]string),
	}
}

func (s *fakeParsedFieldsStore) GetApplicationByID(ctx context.Context, applicationID string) (*models.Application, error) {
	app, ok := s.apps[applicationID]
	if !ok {
		return nil, storage.ErrApplicationNotFound
	}
	return app, nil
}

func (s *fakeParsedFieldsStore) GetJobPostingByID(ctx context.Context, jobID string) (*models.JobPosting, error) {
	if s.jobLoadErr != nil {
		return nil, s.jobLoadErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	return job, nil
}

func (s *fakeParsedFieldsStore) SaveParsedResult(ctx context.Context, applicationID string, result *models.ParsedResult) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[applicationID] = result
	return nil
}

func (s *fakeParsedFieldsStore) MarkParseFailed(ctx context.Context, applicationID string, cause string) error {
	s.failures[applicationID] = cause
	return nil
}

// fakeFileURLProvider 固定地址的文件URL提供者
type fakeFileURLProvider struct {
	err error
}

func (f *fakeFileURLProvider) ResumeFileURL(ctx context.Context, objectKey string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "http://files.test/" + objectKey, nil
}

func seedApplication(store *fakeParsedFieldsStore) {
	store.apps["app-1"] = &models.Application{
		ApplicationID:   "app-1",
		JobID:           "job-1",
		ResumeObjectKey: "resume/app-1/original.pdf",
		Status:          models.StatusNew,
	}
	store.jobs["job-1"] = &models.JobPosting{
		JobID:        "job-1",
		Status:       models.JobStatusActive,
		Requirements: "Go\nMySQL",
	}
}

// parserServer 返回固定解析结果的httptest服务
func parserServer(t *testing.T, result map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(result)
	}))
}

// TestOrchestratorParseSuccessOverwritesFields 验证成功解析整体覆盖并持久化
func TestOrchestratorParseSuccessOverwritesFields(t *testing.T) {
	store := newFakeParsedFieldsStore()
	seedApplication(store)

	server := parserServer(t, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"skills": []string{"Go", "Kafka"}, "experience": "4年", "education": "本科",
			"email": "c@example.com", "phone": "13911112222", "score": 72,
		},
	})
	defer server.Close()

	o := NewOrchestrator(store, &fakeFileURLProvider{}, NewClient(&config.ParserConfig{BaseURL: server.URL, TimeoutSeconds: 5}), nil)
	o.Parse(context.Background(), "app-1")

	require.Contains(t, store.saved, "app-1", "成功解析应持久化结果")
	saved := store.saved["app-1"]
	assert.Equal(t, []string{"Go", "Kafka"}, saved.Skills)
	assert.Equal(t, 72, saved.Score)
	assert.Empty(t, store.failures, "成功时不应记失败")
}

// TestOrchestratorSecondParseReplacesFirst 验证重复解析只保留最近一次结果
func TestOrchestratorSecondParseReplacesFirst(t *testing.T) {
	store := newFakeParsedFieldsStore()
	seedApplication(store)

	response := map[string]interface{}{
		"success": true,
		"data":    map[string]interface{}{"skills": []string{"Go"}, "score": 90},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	o := NewOrchestrator(store, &fakeFileURLProvider{}, NewClient(&config.ParserConfig{BaseURL: server.URL, TimeoutSeconds: 5}), nil)

	o.Parse(context.Background(), "app-1")
	require.Equal(t, 90, store.saved["app-1"].Score)

	// 第二次解析返回更低的分数和不同的技能集，结果应整体替换而不是合并
	response["data"] = map[string]interface{}{"skills": []string{"Excel"}, "score": 35}
	o.Parse(context.Background(), "app-1")

	saved := store.saved["app-1"]
	assert.Equal(t, []string{"Excel"}, saved.Skills, "第二次结果应完全取代第一次")
	assert.Equal(t, 35, saved.Score)
}

// TestOrchestratorSoftFailureOnParserError 验证外部失败不落结果只记失败标记
func TestOrchestratorSoftFailureOnParserError(t *testing.T) {
	store := newFakeParsedFieldsStore()
	seedApplication(store)

	server := parserServer(t, map[string]interface{}{"success": false, "error": "corrupt pdf"})
	defer server.Close()

	o := NewOrchestrator(store, &fakeFileURLProvider{}, NewClient(&config.ParserConfig{BaseURL: server.URL, TimeoutSeconds: 5}), nil)
	o.Parse(context.Background(), "app-1")

	assert.Empty(t, store.saved, "失败时已有解析字段保持原样")
	require.Contains(t, store.failures, "app-1")
	assert.Contains(t, store.failures["app-1"], "corrupt pdf")
}

// TestOrchestratorSoftFailureOnConnectionError 验证连接失败也是软失败
func TestOrchestratorSoftFailureOnConnectionError(t *testing.T) {
	store := newFakeParsedFieldsStore()
	seedApplication(store)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	o := NewOrchestrator(store, &fakeFileURLProvider{}, NewClient(&config.ParserConfig{BaseURL: url, TimeoutSeconds: 2}), nil)
	o.Parse(context.Background(), "app-1")

	assert.Empty(t, store.saved)
	assert.Contains(t, store.failures, "app-1")
}

// TestOrchestratorMissingApplicationIsNotFailure 验证申请已删除时静默放弃
func TestOrchestratorMissingApplicationIsNotFailure(t *testing.T) {
	store := newFakeParsedFieldsStore()

	o := NewOrchestrator(store, &fakeFileURLProvider{}, resumeParserFunc(
		func(ctx context.Context, fileURL string, reqs []string) (*models.ParsedResult, error) {
			t.Fatal("申请不存在时不应调用外部解析服务")
			return nil, nil
		}), nil)
	o.Parse(context.Background(), "ghost")

	assert.Empty(t, store.saved)
	assert.Empty(t, store.failures, "投递/删除竞态不算解析失败")
}

// TestOrchestratorFileURLFailure 验证预签名地址生成失败按软失败处理
func TestOrchestratorFileURLFailure(t *testing.T) {
	store := newFakeParsedFieldsStore()
	seedApplication(store)

	o := NewOrchestrator(store, &fakeFileURLProvider{err: errors.New("minio unreachable")}, resumeParserFunc(
		func(ctx context.Context, fileURL string, reqs []string) (*models.ParsedResult, error) {
			t.Fatal("拿不到文件地址时不应调用外部解析服务")
			return nil, nil
		}), nil)
	o.Parse(context.Background(), "app-1")

	assert.Empty(t, store.saved)
	assert.Contains(t, store.failures, "app-1")
}

// TestOrchestratorPassesJobRequirements 验证岗位要求被切分后随请求发出
func TestOrchestratorPassesJobRequirements(t *testing.T) {
	store := newFakeParsedFieldsStore()
	seedApplication(store)

	var gotReqs []string
	o := NewOrchestrator(store, &fakeFileURLProvider{}, resumeParserFunc(
		func(ctx context.Context, fileURL string, reqs []string) (*models.ParsedResult, error) {
			gotReqs = reqs
			return &models.ParsedResult{Skills: []string{}, Score: 10}, nil
		}), nil)
	o.Parse(context.Background(), "app-1")

	assert.Equal(t, []string{"Go", "MySQL"}, gotReqs)
}

// resumeParserFunc 函数适配器，测试里直接注入解析行为
type resumeParserFunc func(ctx context.Context, fileURL string, jobRequirements []string) (*models.ParsedResult, error)

func (f resumeParserFunc) Parse(ctx context.Context, fileURL string, jobRequirements []string) (*models.ParsedResult, error) {
	return f(ctx, fileURL, jobRequirements)
}
