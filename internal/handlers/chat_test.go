package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/artinerary/messaging-backend/internal/database"
	"github.com/artinerary/messaging-backend/internal/models"
	"github.com/artinerary/messaging-backend/internal/services"
	"github.com/artinerary/messaging-backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBCounter int64

// SetupTestDB initializes an in-memory SQLite DB for testing
func SetupTestDB() {
	logger.Init("test")
	dsn := fmt.Sprintf("file:handlers_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
	db, _ := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	database.DB = db
	database.DB.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.PrivateMessage{},
		&models.ConversationHidden{},
		&models.UserOnlineStatus{},
	)
}

func seedUser(t *testing.T, id string) {
	t.Helper()
	assert.NoError(t, database.DB.Create(&models.User{ID: id, Username: id, Email: id + "@example.com"}).Error)
}

func postJSON(c *gin.Context, path string, body interface{}) {
	data, _ := json.Marshal(body)
	c.Request, _ = http.NewRequest("POST", path, bytes.NewBuffer(data))
	c.Request.Header.Set("Content-Type", "application/json")
}

func TestSendMessage_FirstContact(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "sm_alice")
	seedUser(t, "sm_bob")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/api/chat/messages", map[string]string{
		"recipientId": "sm_bob",
		"content":     "hi bob",
	})
	c.Set("userId", "sm_alice")

	SendMessage(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Status  string `json:"status"`
		Message struct {
			ID      uint   `json:"id"`
			Content string `json:"content"`
			Sender  string `json:"sender"`
			IsMine  bool   `json:"isMine"`
		} `json:"message"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "success", response.Status)
	assert.Equal(t, "hi bob", response.Message.Content)
	assert.Equal(t, "sm_alice", response.Message.Sender)
	assert.True(t, response.Message.IsMine)

	// One canonical conversation row
	var conv models.Conversation
	assert.NoError(t, database.DB.First(&conv, "user1_id = ? AND user2_id = ?", "sm_alice", "sm_bob").Error)

	unread, _ := services.UnreadCount(&conv, "sm_bob")
	assert.Equal(t, int64(1), unread)
}

func TestSendMessage_SelfRejected(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "sm_self")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/api/chat/messages", map[string]string{
		"recipientId": "sm_self",
		"content":     "talking to myself",
	})
	c.Set("userId", "sm_self")

	SendMessage(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessage_WhitespaceRejected(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "sm_ws_a")
	seedUser(t, "sm_ws_b")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/api/chat/messages", map[string]string{
		"recipientId": "sm_ws_b",
		"content":     "   ",
	})
	c.Set("userId", "sm_ws_a")

	SendMessage(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	database.DB.Model(&models.PrivateMessage{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestSendMessage_UnknownRecipient(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "sm_lonely")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/api/chat/messages", map[string]string{
		"recipientId": "sm_ghost",
		"content":     "anyone there?",
	})
	c.Set("userId", "sm_lonely")

	SendMessage(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetNewMessages_MarksRead(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "gn_a")
	seedUser(t, "gn_b")

	conv, _, err := services.GetOrCreateConversation("gn_a", "gn_b")
	assert.NoError(t, err)
	sent, err := services.AppendMessage(conv, "gn_a", "hello")
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/api/chat/messages/gn_a?lastId=0", nil)
	c.Params = gin.Params{{Key: "userId", Value: "gn_a"}}
	c.Set("userId", "gn_b")

	GetNewMessages(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Status   string `json:"status"`
		Messages []struct {
			ID     uint `json:"id"`
			IsMine bool `json:"isMine"`
		} `json:"messages"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Len(t, response.Messages, 1)
	assert.Equal(t, sent.ID, response.Messages[0].ID)
	assert.False(t, response.Messages[0].IsMine)

	unread, _ := services.UnreadCount(conv, "gn_b")
	assert.Equal(t, int64(0), unread)
}

func TestGetNewMessages_NoConversationIsEmptySuccess(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "gn_x")
	seedUser(t, "gn_y")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/api/chat/messages/gn_y", nil)
	c.Params = gin.Params{{Key: "userId", Value: "gn_y"}}
	c.Set("userId", "gn_x")

	GetNewMessages(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Messages []interface{} `json:"messages"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Len(t, response.Messages, 0)
}

func TestHideConversation_IdempotentByOverwrite(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "hc_a")
	seedUser(t, "hc_b")

	conv, _, _ := services.GetOrCreateConversation("hc_a", "hc_b")
	services.AppendMessage(conv, "hc_b", "soon to be hidden")

	hide := func() int {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest("POST", "/api/chat/conversations/"+conv.ID+"/hide", nil)
		c.Params = gin.Params{{Key: "conversationId", Value: conv.ID}}
		c.Set("userId", "hc_a")
		HideConversation(c)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, hide())
	first, _ := services.HorizonFor(conv.ID, "hc_a")
	assert.NotNil(t, first)

	assert.Equal(t, http.StatusOK, hide())
	second, _ := services.HorizonFor(conv.ID, "hc_a")
	assert.NotNil(t, second)
	assert.True(t, second.After(*first))
}

func TestHideConversation_MalformedIDNotFound(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "hcm_a")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/api/chat/conversations/not-a-uuid/hide", nil)
	c.Params = gin.Params{{Key: "conversationId", Value: "not-a-uuid"}}
	c.Set("userId", "hcm_a")

	HideConversation(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHideConversation_NonParticipantForbidden(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "hcf_a")
	seedUser(t, "hcf_b")
	seedUser(t, "hcf_c")

	conv, _, _ := services.GetOrCreateConversation("hcf_a", "hcf_b")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/api/chat/conversations/"+conv.ID+"/hide", nil)
	c.Params = gin.Params{{Key: "conversationId", Value: conv.ID}}
	c.Set("userId", "hcf_c")

	HideConversation(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOpenConversation_FromEventEstablishesHorizon(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "oc_a")
	seedUser(t, "oc_b")

	conv, _, _ := services.GetOrCreateConversation("oc_a", "oc_b")
	services.AppendMessage(conv, "oc_b", "history")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/api/chat/conversations/oc_b?from_event=true", nil)
	c.Params = gin.Params{{Key: "userId", Value: "oc_b"}}
	c.Set("userId", "oc_a")

	OpenConversation(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Messages []interface{} `json:"messages"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Len(t, response.Messages, 0)

	horizon, _ := services.HorizonFor(conv.ID, "oc_a")
	assert.NotNil(t, horizon)
}

func TestGetUnreadTotal(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "ut_me")
	seedUser(t, "ut_x")

	conv, _, _ := services.GetOrCreateConversation("ut_me", "ut_x")
	services.AppendMessage(conv, "ut_x", "one")
	services.AppendMessage(conv, "ut_x", "two")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/api/chat/unread-count", nil)
	c.Set("userId", "ut_me")

	GetUnreadTotal(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Count int64 `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, int64(2), response.Count)
}

func TestUpdateOnlineStatus(t *testing.T) {
	SetupTestDB()
	gin.SetMode(gin.TestMode)

	seedUser(t, "os_me")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/api/chat/online", nil)
	c.Set("userId", "os_me")

	UpdateOnlineStatus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, services.IsOnline("os_me"))
}
