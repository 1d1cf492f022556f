package httptransport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/auth"
	"tempbox/backend/internal/config"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/storage/memory"
)

func newTestRouter(t *testing.T) (*gin.Engine, *service.MailboxService, *service.MessageService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			AllowedDomains: []string{"tempbox.dev"},
			DefaultTTL:     time.Hour,
			MaxPerIP:       100,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}

	store := memory.NewStore()
	log := zap.NewNop()
	mailboxes := service.NewMailboxService(store, cfg, log)
	messages := service.NewMessageService(store)

	router := NewRouter(RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxes,
		MessageService: messages,
		AuthManager:    auth.NewManager("", "", time.Minute),
		Logger:         log,
	})
	return router, mailboxes, messages
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp Response
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestCreateMailboxEndpoint(t *testing.T) {
	t.Run("创建成功返回令牌", func(t *testing.T) {
		router, _, _ := newTestRouter(t)

		w, resp := doJSON(t, router, http.MethodPost, "/v1/mailboxes",
			map[string]string{"prefix": "alice"}, nil)

		require.Equal(t, http.StatusCreated, w.Code)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "alice@tempbox.dev", data["address"])
		assert.NotEmpty(t, data["token"])
	})

	t.Run("非法前缀返回400", func(t *testing.T) {
		router, _, _ := newTestRouter(t)

		w, _ := doJSON(t, router, http.MethodPost, "/v1/mailboxes",
			map[string]string{"prefix": "a..b"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("非法有效期返回400", func(t *testing.T) {
		router, _, _ := newTestRouter(t)

		w, _ := doJSON(t, router, http.MethodPost, "/v1/mailboxes",
			map[string]string{"expiresIn": "banana"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMailboxTokenAuth(t *testing.T) {
	router, mailboxes, _ := newTestRouter(t)

	mailbox, err := mailboxes.Create(service.CreateMailboxInput{Prefix: "alice"})
	require.NoError(t, err)

	t.Run("缺少令牌返回401", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodGet, "/v1/mailboxes/"+mailbox.ID+"/messages", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("错误令牌返回401", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodGet, "/v1/mailboxes/"+mailbox.ID+"/messages", nil,
			map[string]string{"X-Mailbox-Token": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("正确令牌返回邮件列表", func(t *testing.T) {
		w, resp := doJSON(t, router, http.MethodGet, "/v1/mailboxes/"+mailbox.ID+"/messages", nil,
			map[string]string{"X-Mailbox-Token": mailbox.Token})
		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(0), data["count"])
	})

	t.Run("不存在的邮箱返回404", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodGet, "/v1/mailboxes/ghost/messages", nil,
			map[string]string{"X-Mailbox-Token": "whatever"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListDomainsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w, resp := doJSON(t, router, http.MethodGet, "/v1/domains", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"tempbox.dev"}, data["domains"])
}

func TestAdminDisabled(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/v1/admin/login",
		map[string]string{"password": "whatever"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/v1/admin/mailboxes", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteMailboxEndpoint(t *testing.T) {
	router, mailboxes, _ := newTestRouter(t)

	mailbox, err := mailboxes.Create(service.CreateMailboxInput{Prefix: "alice"})
	require.NoError(t, err)

	w, _ := doJSON(t, router, http.MethodDelete, "/v1/mailboxes/"+mailbox.ID, nil,
		map[string]string{"X-Mailbox-Token": mailbox.Token})
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err = mailboxes.Get(mailbox.ID)
	assert.Error(t, err)
}
