package api

import (
	"net/http"
	"strconv"
	"time"

	"SuperChat/middleware/security"
	"SuperChat/module/chat/conversation"
	"SuperChat/module/chat/delivery"
	"SuperChat/module/chat/message"
	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"
	"SuperChat/tools/ids"

	"github.com/gin-gonic/gin"
)

// Handler is the REST surface next to the websocket: conversation
// management, history reads and delivery state.
type Handler struct {
	convs   conversation.Store
	gate    *conversation.Gate
	msgs    message.Store
	tracker *delivery.Tracker
}

func NewHandler(convs conversation.Store, gate *conversation.Gate, msgs message.Store, tracker *delivery.Tracker) *Handler {
	return &Handler{convs: convs, gate: gate, msgs: msgs, tracker: tracker}
}

func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/conversations", h.CreateConversation)
	g.GET("/conversations/:id", h.GetConversation)
	g.POST("/conversations/:id/members", h.AddMember)
	g.DELETE("/conversations/:id/members/:userID", h.RemoveMember)
	g.POST("/conversations/:id/archive", h.Archive)
	g.GET("/conversations/:id/messages", h.ListMessages)
	g.GET("/deliveries/:serverMsgID", h.DeliveryStatus)
}

type createConversationReq struct {
	ConversationID string   `json:"conversation_id"`
	Members        []string `json:"members"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	userID := security.UserIDFrom(c)
	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, errs.ErrArgs.WrapMsg("bad body"))
		return
	}
	convID := req.ConversationID
	if convID == "" {
		convID = ids.GenerateString()
	}

	members := []string{userID}
	seen := map[string]bool{userID: true}
	for _, m := range req.Members {
		if m != "" && !seen[m] {
			seen[m] = true
			members = append(members, m)
		}
	}

	now := time.Now()
	conv := &chatmodel.Conversation{
		ConversationID: convID,
		CreatorID:      userID,
		Members:        members,
		CreateTime:     now,
		UpdateTime:     now,
	}
	if err := h.convs.Create(c.Request.Context(), conv); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.gate.Resolve(c.Request.Context(), security.UserIDFrom(c), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

type memberReq struct {
	UserID string `json:"user_id"`
}

func (h *Handler) AddMember(c *gin.Context) {
	convID := c.Param("id")
	var req memberReq
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		writeErr(c, errs.ErrArgs.WrapMsg("user_id required"))
		return
	}
	// only current members may grow the conversation
	if _, err := h.gate.Resolve(c.Request.Context(), security.UserIDFrom(c), convID); err != nil {
		writeErr(c, err)
		return
	}
	if err := h.convs.AddMember(c.Request.Context(), convID, req.UserID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) RemoveMember(c *gin.Context) {
	convID := c.Param("id")
	target := c.Param("userID")
	caller := security.UserIDFrom(c)

	conv, err := h.gate.Resolve(c.Request.Context(), caller, convID)
	if err != nil {
		writeErr(c, err)
		return
	}
	// a member may leave; only the creator removes others
	if target != caller && conv.CreatorID != caller {
		writeErr(c, errs.ErrForbidden.WrapMsg("only the creator removes members"))
		return
	}
	if err := h.convs.RemoveMember(c.Request.Context(), convID, target); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) Archive(c *gin.Context) {
	convID := c.Param("id")
	caller := security.UserIDFrom(c)

	conv, err := h.convs.Get(c.Request.Context(), convID)
	if err != nil {
		writeErr(c, err)
		return
	}
	if conv.CreatorID != caller {
		writeErr(c, errs.ErrForbidden.WrapMsg("only the creator archives"))
		return
	}
	if err := h.convs.Archive(c.Request.Context(), convID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) ListMessages(c *gin.Context) {
	convID := c.Param("id")
	caller := security.UserIDFrom(c)

	conv, err := h.convs.Get(c.Request.Context(), convID)
	if err != nil {
		writeErr(c, err)
		return
	}
	// history on an archived conversation stays readable for members
	if !conv.HasMember(caller) {
		writeErr(c, errs.ErrForbidden.WrapMsg("not a member"))
		return
	}

	fromSeq := parseInt64(c.Query("from_seq"), 0)
	limit := parseInt64(c.Query("limit"), 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	msgs, err := h.msgs.List(c.Request.Context(), convID, fromSeq, limit)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) DeliveryStatus(c *gin.Context) {
	status, err := h.tracker.Status(c.Request.Context(), c.Param("serverMsgID"), security.UserIDFrom(c))
	if err != nil && errs.Code(err) != errs.ErrDeliveryExpired.ECode() {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status.String()})
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func writeErr(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{
		"code": errs.Code(err),
		"msg":  err.Error(),
	})
}

func httpStatus(err error) int {
	switch errs.Code(err) {
	case errs.ErrArgs.ECode():
		return http.StatusBadRequest
	case errs.ErrUnauthorized.ECode(), errs.ErrAuthTimeout.ECode(), errs.ErrTokenInvalid.ECode():
		return http.StatusUnauthorized
	case errs.ErrForbidden.ECode():
		return http.StatusForbidden
	case errs.ErrRecordNotFound.ECode():
		return http.StatusNotFound
	case errs.ErrRecordExists.ECode():
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
