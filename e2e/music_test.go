package e2e

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestGenerate_Success(t *testing.T) {
	ta := setupApp(t)
	owner := createUser(t, ta.app, "neon")

	resp := submit(t, ta.app, owner, "")
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	expect := map[string]interface{}{
		"prompt":       "late night synthwave",
		"style":        "synthwave",
		"duration":     float64(120),
		"title":        "Neon",
		"ownerId":      owner,
		"status":       "processing",
		"generationId": "gen-1",
	}
	for k, v := range expect {
		if body[k] != v {
			t.Errorf("expected %s=%v, got %v", k, v, body[k])
		}
	}
	if _, ok := body["audioUrl"]; ok {
		t.Error("expected no audioUrl before completion")
	}

	if cookie := ta.suno.cookies[0]; cookie != "session=e2e" {
		t.Errorf("expected session cookie to be forwarded, got %q", cookie)
	}
}

func TestGenerate_ValidationError(t *testing.T) {
	ta := setupApp(t)
	owner := createUser(t, ta.app, "validator")

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing prompt", fmt.Sprintf(`{"style":"pop","duration":60,"ownerId":%q}`, owner), "prompt"},
		{"blank style", fmt.Sprintf(`{"prompt":"x","style":"   ","duration":60,"ownerId":%q}`, owner), "style"},
		{"duration too short", fmt.Sprintf(`{"prompt":"x","style":"pop","duration":5,"ownerId":%q}`, owner), "duration"},
		{"owner not a uuid", `{"prompt":"x","style":"pop","duration":60,"ownerId":"nope"}`, "ownerId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/music/generate", tt.body)
			assertStatus(t, resp, http.StatusBadRequest)

			e := errorBody(t, resp)
			if e["code"] != "VALIDATION_ERROR" {
				t.Errorf("expected VALIDATION_ERROR, got %v", e["code"])
			}
			details, _ := e["details"].(map[string]interface{})
			if _, ok := details[tt.field]; !ok {
				t.Errorf("expected %s in details, got %v", tt.field, e["details"])
			}
		})
	}

	if calls := ta.suno.generateCalls(); calls != 0 {
		t.Errorf("expected no external calls, got %d", calls)
	}
}

func TestGenerate_InvalidJSON(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/music/generate", `{"prompt":`)
	assertErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestGenerate_UnknownOwner(t *testing.T) {
	ta := setupApp(t)

	resp := submit(t, ta.app, uuid.NewString(), "")
	assertErrorCode(t, resp, http.StatusNotFound, "NOT_FOUND")

	list := parseJSON(t, doAuthRequest(t, ta.app, http.MethodGet, "/api/music", ""))
	if list["totalItems"] != float64(0) {
		t.Errorf("expected no records, got %v", list["totalItems"])
	}
}

func TestGenerate_RetriesOnce(t *testing.T) {
	ta := setupApp(t)
	ta.suno.failGenerate = 1
	owner := createUser(t, ta.app, "retry")

	resp := submit(t, ta.app, owner, "")
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["generationId"] != "gen-2" {
		t.Errorf("expected generationId gen-2, got %v", body["generationId"])
	}
	if calls := ta.suno.generateCalls(); calls != 2 {
		t.Errorf("expected 2 external calls, got %d", calls)
	}
}

func TestGenerate_AllAttemptsFail(t *testing.T) {
	ta := setupApp(t)
	ta.suno.failGenerate = 10
	owner := createUser(t, ta.app, "unlucky")

	resp := submit(t, ta.app, owner, "")
	assertErrorCode(t, resp, http.StatusInternalServerError, "GENERATION_FAILED")

	if calls := ta.suno.generateCalls(); calls != 2 {
		t.Errorf("expected 2 external calls, got %d", calls)
	}

	list := parseJSON(t, doAuthRequest(t, ta.app, http.MethodGet, "/api/music", ""))
	items, _ := list["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected 1 record, got %d", len(items))
	}
	rec := items[0].(map[string]interface{})
	if rec["status"] != "failed" {
		t.Errorf("expected failed record, got %v", rec["status"])
	}
	if msg, _ := rec["errorMessage"].(string); msg == "" {
		t.Error("expected an error message on the failed record")
	}
	if _, ok := rec["generationId"]; ok {
		t.Error("expected no generation id on the failed record")
	}
}

func TestGenerate_EmptyIDStopsImmediately(t *testing.T) {
	ta := setupApp(t)
	ta.suno.emptyID = true
	owner := createUser(t, ta.app, "empty")

	resp := submit(t, ta.app, owner, "")
	assertErrorCode(t, resp, http.StatusInternalServerError, "GENERATION_FAILED")

	if calls := ta.suno.generateCalls(); calls != 1 {
		t.Errorf("expected a single external call, got %d", calls)
	}
}

func TestGenerate_Async(t *testing.T) {
	ta := setupApp(t)
	owner := createUser(t, ta.app, "async")

	resp := submit(t, ta.app, owner, "?async=true")
	assertStatus(t, resp, http.StatusAccepted)

	body := parseJSON(t, resp)
	if body["status"] != "processing" {
		t.Errorf("expected processing, got %v", body["status"])
	}
	if len(ta.queue.ids) != 1 || ta.queue.ids[0] != body["id"] {
		t.Errorf("expected the record to be queued, got %v", ta.queue.ids)
	}
	if calls := ta.suno.generateCalls(); calls != 0 {
		t.Errorf("expected no inline external call, got %d", calls)
	}
}

func TestGetMusic(t *testing.T) {
	ta := setupApp(t)
	owner := createUser(t, ta.app, "getter")
	created := parseJSON(t, submit(t, ta.app, owner, ""))

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/music/"+created["id"].(string), "")
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	if body["id"] != created["id"] {
		t.Errorf("expected id %v, got %v", created["id"], body["id"])
	}

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/music/"+uuid.NewString(), "")
	assertErrorCode(t, resp, http.StatusNotFound, "NOT_FOUND")

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/music/not-a-uuid", "")
	assertErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestListMusic_Pagination(t *testing.T) {
	ta := setupApp(t)
	owner := createUser(t, ta.app, "prolific")

	var ids []string
	for i := 0; i < 15; i++ {
		resp := submit(t, ta.app, owner, "")
		assertStatus(t, resp, http.StatusOK)
		ids = append(ids, parseJSON(t, resp)["id"].(string))
	}

	first := parseJSON(t, doAuthRequest(t, ta.app, http.MethodGet, "/api/music?page=0&size=10", ""))
	items := first["items"].([]interface{})
	if len(items) != 10 {
		t.Fatalf("expected 10 items, got %d", len(items))
	}
	if first["totalItems"] != float64(15) || first["totalPages"] != float64(2) {
		t.Errorf("unexpected totals: %v items, %v pages", first["totalItems"], first["totalPages"])
	}
	if newest := items[0].(map[string]interface{})["id"]; newest != ids[14] {
		t.Errorf("expected newest record first, got %v", newest)
	}

	second := parseJSON(t, doAuthRequest(t, ta.app, http.MethodGet, "/api/music?page=1&size=10", ""))
	if n := len(second["items"].([]interface{})); n != 5 {
		t.Errorf("expected 5 items on page 1, got %d", n)
	}

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/music?size=1000", "")
	assertErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	ta := setupApp(t)
	owner := createUser(t, ta.app, "finisher")
	id := parseJSON(t, submit(t, ta.app, owner, ""))["id"].(string)

	resp := doAuthRequest(t, ta.app, http.MethodPut, "/api/music/"+id+"/status?url=https://cdn.example.com/a.mp3&lyrics=la%20la", "")
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	if body["status"] != "completed" || body["audioUrl"] != "https://cdn.example.com/a.mp3" || body["lyrics"] != "la la" {
		t.Errorf("unexpected completed record: %v", body)
	}

	resp = doAuthRequest(t, ta.app, http.MethodPut, "/api/music/"+id+"/status?url=https://cdn.example.com/b.mp3", "")
	assertErrorCode(t, resp, http.StatusConflict, "INVALID_STATE")

	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/music/"+id+"/cancel", "")
	assertErrorCode(t, resp, http.StatusConflict, "INVALID_STATE")

	resp = doAuthRequest(t, ta.app, http.MethodPut, "/api/music/"+uuid.NewString()+"/status?url=https://cdn.example.com/c.mp3", "")
	assertErrorCode(t, resp, http.StatusNotFound, "NOT_FOUND")
}

func TestUpdateStatus_RejectsBadURL(t *testing.T) {
	ta := setupApp(t)
	owner := createUser(t, ta.app, "badurl")
	id := parseJSON(t, submit(t, ta.app, owner, ""))["id"].(string)

	for _, q := range []string{"", "?url=", "?url=not-a-url"} {
		resp := doAuthRequest(t, ta.app, http.MethodPut, "/api/music/"+id+"/status"+q, "")
		assertErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")
	}
}

func TestCancelMusic(t *testing.T) {
	ta := setupApp(t)
	owner := createUser(t, ta.app, "canceller")
	id := parseJSON(t, submit(t, ta.app, owner, ""))["id"].(string)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/music/"+id+"/cancel", "")
	assertStatus(t, resp, http.StatusOK)
	if status := parseJSON(t, resp)["status"]; status != "cancelled" {
		t.Errorf("expected cancelled, got %v", status)
	}

	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/music/"+id+"/cancel", "")
	assertErrorCode(t, resp, http.StatusConflict, "INVALID_STATE")
}

func TestDeleteMusic_RemovesStoredAudio(t *testing.T) {
	ta := setupApp(t)
	owner := createUser(t, ta.app, "deleter")
	id := parseJSON(t, submit(t, ta.app, owner, ""))["id"].(string)

	upload := parseJSON(t, uploadFile(t, ta.app, "track.mp3", []byte("ID3 fake mp3 payload")))
	filename := upload["filename"].(string)
	url := upload["url"].(string)

	resp := doAuthRequest(t, ta.app, http.MethodPut, "/api/music/"+id+"/status?url="+url, "")
	assertStatus(t, resp, http.StatusOK)

	resp = doAuthRequest(t, ta.app, http.MethodDelete, "/api/music/"+id, "")
	assertStatus(t, resp, http.StatusNoContent)

	info := parseJSON(t, doAuthRequest(t, ta.app, http.MethodGet, "/api/storage/"+filename+"/info", ""))
	if info["exists"] != false {
		t.Errorf("expected stored audio to be removed, got %v", info)
	}

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/music/"+id, "")
	assertErrorCode(t, resp, http.StatusNotFound, "NOT_FOUND")

	resp = doAuthRequest(t, ta.app, http.MethodDelete, "/api/music/"+id, "")
	assertErrorCode(t, resp, http.StatusNotFound, "NOT_FOUND")
}

func TestQuota(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/music/quota", "")
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	if body["creditsLeft"] != float64(40) || body["monthlyLimit"] != float64(50) {
		t.Errorf("unexpected quota: %v", body)
	}

	ta.suno.failQuota = true
	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/music/quota", "")
	assertErrorCode(t, resp, http.StatusBadGateway, "EXTERNAL_API_ERROR")
}
