package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SuperChat/middleware/security"
	"SuperChat/module/chat/conversation"
	"SuperChat/module/chat/delivery"
	"SuperChat/module/chat/message"
	chatmodel "SuperChat/module/chat/model"

	"github.com/gin-gonic/gin"
)

type apiFixture struct {
	convs      *conversation.MemStore
	msgs       *message.MemStore
	deliveries *delivery.MemStore
	engine     *gin.Engine
}

// asUser injects the authenticated subject the way the auth middleware does.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(security.CtxUserIDKey, userID)
		c.Next()
	}
}

func newAPIFixture(t *testing.T, userID string) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fx := &apiFixture{
		convs:      conversation.NewMemStore(),
		msgs:       message.NewMemStore(),
		deliveries: delivery.NewMemStore(),
	}
	tracker := delivery.NewTracker(fx.deliveries, fx.msgs, nil, nil, delivery.TrackerConf{})
	h := NewHandler(fx.convs, conversation.NewGate(fx.convs), fx.msgs, tracker)

	fx.engine = gin.New()
	h.RegisterRoutes(fx.engine.Group("/api", asUser(userID)))
	return fx
}

func (fx *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)
	return w
}

func seedConversation(t *testing.T, fx *apiFixture, members ...string) {
	t.Helper()
	err := fx.convs.Create(context.Background(), &chatmodel.Conversation{
		ConversationID: "c1",
		CreatorID:      members[0],
		Members:        members,
		CreateTime:     time.Now(),
		UpdateTime:     time.Now(),
	})
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
}

func TestCreateConversation(t *testing.T) {
	fx := newAPIFixture(t, "alice")

	w := fx.do(t, http.MethodPost, "/api/conversations", `{"conversation_id":"c1","members":["bob","alice","bob"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	conv, err := fx.convs.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.CreatorID != "alice" {
		t.Fatalf("creator %q", conv.CreatorID)
	}
	if len(conv.Members) != 2 {
		t.Fatalf("members deduped badly: %v", conv.Members)
	}

	// same id again conflicts
	w = fx.do(t, http.MethodPost, "/api/conversations", `{"conversation_id":"c1"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate create status %d", w.Code)
	}
}

func TestGetConversationRequiresMembership(t *testing.T) {
	fx := newAPIFixture(t, "mallory")
	seedConversation(t, fx, "alice", "bob")

	if w := fx.do(t, http.MethodGet, "/api/conversations/c1", ""); w.Code != http.StatusForbidden {
		t.Fatalf("status %d", w.Code)
	}
	if w := fx.do(t, http.MethodGet, "/api/conversations/ghost", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestMemberManagement(t *testing.T) {
	fx := newAPIFixture(t, "alice")
	seedConversation(t, fx, "alice", "bob")

	if w := fx.do(t, http.MethodPost, "/api/conversations/c1/members", `{"user_id":"carol"}`); w.Code != http.StatusOK {
		t.Fatalf("add member status %d: %s", w.Code, w.Body.String())
	}
	conv, _ := fx.convs.Get(context.Background(), "c1")
	if !conv.HasMember("carol") {
		t.Fatalf("carol missing: %v", conv.Members)
	}

	// creator removes another member
	if w := fx.do(t, http.MethodDelete, "/api/conversations/c1/members/carol", ""); w.Code != http.StatusOK {
		t.Fatalf("remove member status %d", w.Code)
	}
	conv, _ = fx.convs.Get(context.Background(), "c1")
	if conv.HasMember("carol") {
		t.Fatalf("carol still present: %v", conv.Members)
	}
}

func TestRemoveMemberOnlySelfOrCreator(t *testing.T) {
	fx := newAPIFixture(t, "bob")
	seedConversation(t, fx, "alice", "bob", "carol")

	if w := fx.do(t, http.MethodDelete, "/api/conversations/c1/members/carol", ""); w.Code != http.StatusForbidden {
		t.Fatalf("non-creator removed someone else, status %d", w.Code)
	}
	if w := fx.do(t, http.MethodDelete, "/api/conversations/c1/members/bob", ""); w.Code != http.StatusOK {
		t.Fatalf("member could not leave, status %d", w.Code)
	}
}

func TestArchiveCreatorOnly(t *testing.T) {
	fx := newAPIFixture(t, "bob")
	seedConversation(t, fx, "alice", "bob")

	if w := fx.do(t, http.MethodPost, "/api/conversations/c1/archive", ""); w.Code != http.StatusForbidden {
		t.Fatalf("non-creator archived, status %d", w.Code)
	}

	fx2 := newAPIFixture(t, "alice")
	seedConversation(t, fx2, "alice", "bob")
	if w := fx2.do(t, http.MethodPost, "/api/conversations/c1/archive", ""); w.Code != http.StatusOK {
		t.Fatalf("creator archive status %d", w.Code)
	}
	conv, _ := fx2.convs.Get(context.Background(), "c1")
	if !conv.Archived {
		t.Fatal("archive flag not set")
	}
}

func TestListMessagesPagination(t *testing.T) {
	fx := newAPIFixture(t, "bob")
	seedConversation(t, fx, "alice", "bob")

	for i := 1; i <= 5; i++ {
		err := fx.msgs.Insert(context.Background(), &chatmodel.MessageModel{
			ConversationID: "c1",
			Seq:            int64(i),
			ServerMsgID:    fmt.Sprintf("srv-%d", i),
			SenderID:       "alice",
			Content:        "m",
			CreateTime:     time.Now().UnixMilli(),
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	w := fx.do(t, http.MethodGet, "/api/conversations/c1/messages?from_seq=2&limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Messages []struct {
			Seq int64 `json:"seq"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Seq != 3 || resp.Messages[1].Seq != 4 {
		t.Fatalf("page: %+v", resp.Messages)
	}
}

func TestListMessagesOnArchivedConversation(t *testing.T) {
	fx := newAPIFixture(t, "bob")
	seedConversation(t, fx, "alice", "bob")
	if err := fx.convs.Archive(context.Background(), "c1"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	// history stays readable after archive
	if w := fx.do(t, http.MethodGet, "/api/conversations/c1/messages", ""); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

func TestDeliveryStatusEndpoint(t *testing.T) {
	fx := newAPIFixture(t, "bob")
	seedConversation(t, fx, "alice", "bob")

	err := fx.deliveries.Insert(context.Background(), []*chatmodel.DeliveryRecord{{
		ServerMsgID:    "srv-1",
		ConversationID: "c1",
		RecipientID:    "bob",
		Status:         chatmodel.DeliveryDelivered,
	}})
	if err != nil {
		t.Fatalf("insert record: %v", err)
	}

	w := fx.do(t, http.MethodGet, "/api/deliveries/srv-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "delivered" {
		t.Fatalf("status %q", resp["status"])
	}

	if w := fx.do(t, http.MethodGet, "/api/deliveries/ghost", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown record status %d", w.Code)
	}
}
