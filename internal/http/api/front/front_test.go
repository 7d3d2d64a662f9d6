package front

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/bot"
)

type echoDispatcher struct {
	got []bot.Update
}

func (e *echoDispatcher) Handle(_ context.Context, u bot.Update) []bot.Reply {
	e.got = append(e.got, u)
	return []bot.Reply{{Text: "echo " + u.Command}}
}

func post(r *gin.Engine, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v0/bot/updates", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestUpdates_RequiresBotToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	d := &echoDispatcher{}
	RegisterFrontRoutes(r, d, "bot-token")

	for _, auth := range []string{"", "bot-token", "Bearer wrong"} {
		if rec := post(r, auth, `{"user_id":1,"command":"start"}`); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status=401 for %q, got %d", auth, rec.Code)
		}
	}
	if len(d.got) != 0 {
		t.Fatalf("expected no dispatched updates, got %d", len(d.got))
	}
}

func TestUpdates_DispatchesAndReturnsReplies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	d := &echoDispatcher{}
	RegisterFrontRoutes(r, d, "bot-token")

	if rec := post(r, "Bearer bot-token", `{"command":"start"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status=400 without user_id, got %d", rec.Code)
	}

	rec := post(r, "Bearer bot-token", `{"user_id":42,"username":"alice","command":"start"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status=200, got %d", rec.Code)
	}
	var out struct {
		ChatID  int64       `json:"chat_id"`
		Replies []bot.Reply `json:"replies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ChatID != 42 || len(out.Replies) != 1 || out.Replies[0].Text != "echo start" {
		t.Fatalf("unexpected response %+v", out)
	}
	if len(d.got) != 1 || d.got[0].Username != "alice" {
		t.Fatalf("unexpected dispatched updates %+v", d.got)
	}
}
