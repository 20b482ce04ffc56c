package parsing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/winstondavid829/ats-platform/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, timeoutSeconds int) *Client {
	return NewClient(&config.ParserConfig{BaseURL: baseURL, TimeoutSeconds: timeoutSeconds})
}

// TestClientParseSuccess 验证成功响应被完整映射
func TestClientParseSuccess(t *testing.T) {
	var gotBody parseRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/parse-resume", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"skills":     []string{"Go", "MySQL"},
				"experience": "5年后端开发",
				"education":  "计算机本科",
				"email":      "candidate@example.com",
				"phone":      "13800001111",
				"score":      87,
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5)
	result, err := client.Parse(context.Background(), "http://files.test/resume.pdf", []string{"Go", "MySQL"})
	require.NoError(t, err)

	assert.Equal(t, "http://files.test/resume.pdf", gotBody.FileURL)
	assert.Equal(t, []string{"Go", "MySQL"}, gotBody.JobRequirements)
	assert.Equal(t, []string{"Go", "MySQL"}, result.Skills)
	assert.Equal(t, "5年后端开发", result.Experience)
	assert.Equal(t, "计算机本科", result.Education)
	assert.Equal(t, "candidate@example.com", result.Email)
	assert.Equal(t, "13800001111", result.Phone)
	assert.Equal(t, 87, result.Score)
}

// TestClientParseClampsScore 验证越界分数被钳到[0,100]
func TestClientParseClampsScore(t *testing.T) {
	score := 150
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"skills": []string{}, "score": score},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5)
	result, err := client.Parse(context.Background(), "http://files.test/r.pdf", nil)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Score)

	score = -3
	result, err = client.Parse(context.Background(), "http://files.test/r.pdf", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Score)
}

// TestClientParseNon200 验证非200状态码按失败处理
func TestClientParseNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5)
	_, err := client.Parse(context.Background(), "http://files.test/r.pdf", nil)
	assert.Error(t, err)
}

// TestClientParseUnsuccessfulResponse 验证success=false携带原因时按失败处理
func TestClientParseUnsuccessfulResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "unsupported file format",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5)
	_, err := client.Parse(context.Background(), "http://files.test/r.pdf", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file format")
}

// TestClientParseMalformedBody 验证响应体不是JSON时按失败处理
func TestClientParseMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5)
	_, err := client.Parse(context.Background(), "http://files.test/r.pdf", nil)
	assert.Error(t, err)
}

// TestClientParseTimeout 验证超过配置超时的调用报错返回
func TestClientParseTimeout(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(3 * time.Second):
		case <-done:
		}
	}))
	defer server.Close()
	defer close(done)

	client := newTestClient(server.URL, 1)
	start := time.Now()
	_, err := client.Parse(context.Background(), "http://files.test/r.pdf", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second, "应在配置的超时时间附近返回而不是等服务端")
}

// TestClientParseConnectionFailure 验证目标不可达时报错返回
func TestClientParseConnectionFailure(t *testing.T) {
	// 立即关掉的server保证端口拒绝连接
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(url, 2)
	_, err := client.Parse(context.Background(), "http://files.test/r.pdf", nil)
	assert.Error(t, err)
}
