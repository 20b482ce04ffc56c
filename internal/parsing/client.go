package parsing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/winstondavid829/ats-platform/internal/config"
	"github.com/winstondavid829/ats-platform/internal/storage/models"
)

// parseEndpointPath 外部解析服务的唯一端点，接口契约固定
const parseEndpointPath = "/parse-resume"

// parseRequest 解析请求体。file_url 是简历原件的可访问地址，
// job_requirements 是岗位要求关键词列表。
type parseRequest struct {
	FileURL         string   `json:"file_url"`
	JobRequirements []string `json:"job_requirements"`
}

// parseResponse 解析服务的统一响应包裹
type parseResponse struct {
	Success bool           `json:"success"`
	Data    *parsedPayload `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type parsedPayload struct {
	Skills     []string `json:"skills"`
	Experience string   `json:"experience"`
	Education  string   `json:"education"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Score      int      `json:"score"`
}

// Client 外部简历解析服务的HTTP客户端。
// 解析/打分算法整体是黑盒，这里只实现固定的请求响应契约。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建解析服务客户端。超时默认为协议约定的180秒。
func NewClient(cfg *config.ParserConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// Parse 同步调用解析服务。
// 超时、连接失败、非200、success=false 都以error返回，由编排器
// 统一按软失败消化；成功时返回整套解析字段。
func (c *Client) Parse(ctx context.Context, fileURL string, jobRequirements []string) (*models.ParsedResult, error) {
	if jobRequirements == nil {
		jobRequirements = []string{}
	}
	body, err := json.Marshal(parseRequest{
		FileURL:         fileURL,
		JobRequirements: jobRequirements,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化解析请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+parseEndpointPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("构造解析请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用解析服务失败 (耗时%s): %w", time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("解析服务返回非200状态码 %d: %s", resp.StatusCode, string(raw))
	}

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析服务响应体格式错误: %w", err)
	}
	if !parsed.Success || parsed.Data == nil {
		if parsed.Error != "" {
			return nil, fmt.Errorf("解析服务报告失败: %s", parsed.Error)
		}
		return nil, fmt.Errorf("解析服务报告失败且未提供原因")
	}

	score := parsed.Data.Score
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	return &models.ParsedResult{
		Skills:     parsed.Data.Skills,
		Experience: parsed.Data.Experience,
		Education:  parsed.Data.Education,
		Email:      parsed.Data.Email,
		Phone:      parsed.Data.Phone,
		Score:      score,
	}, nil
}
