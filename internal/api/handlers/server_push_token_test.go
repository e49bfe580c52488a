package handlers

import (
	"net/http"
	"testing"
	"time"

	"sitefoundry.io/foreman/internal/token"
)

const registrationBody = `{
	"userId": "u1",
	"userType": "staff",
	"token": "ExpoPushToken[abcdef123456]",
	"platform": "android",
	"deviceId": "device-1",
	"deviceName": "Pixel 8"
}`

func TestPostPushTokenRegisters(t *testing.T) {
	f := newFixture()
	router := f.newRouter("u1")

	w, body := doJSON(t, router, http.MethodPost, "/push-token", registrationBody, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["success"] != true {
		t.Fatalf("success = %v", body["success"])
	}
	if len(f.repo.records) != 1 {
		t.Fatalf("stored records = %d, want 1", len(f.repo.records))
	}
	// The raw token value never appears in the response.
	tok := body["token"].(map[string]interface{})
	if _, leaked := tok["token"]; leaked {
		t.Fatal("raw token value leaked into the response")
	}
}

func TestPostPushTokenRejectsForeignUser(t *testing.T) {
	f := newFixture()
	router := f.newRouter("someone-else")

	w, body := doJSON(t, router, http.MethodPost, "/push-token", registrationBody, nil)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if body["code"] != "USER_MISMATCH" {
		t.Fatalf("code = %v", body["code"])
	}
	if len(f.repo.records) != 0 {
		t.Fatal("token stored despite user mismatch")
	}
}

func TestPostPushTokenRejectsUnsafeDeviceName(t *testing.T) {
	f := newFixture()
	router := f.newRouter("u1")

	body := `{"userId":"u1","token":"ExpoPushToken[abcdef123456]","deviceName":"<script>alert(1)</script>"}`
	w, decoded := doJSON(t, router, http.MethodPost, "/push-token", body, nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if decoded["code"] != "UNSAFE_INPUT" {
		t.Fatalf("code = %v", decoded["code"])
	}
}

func TestPostPushTokenRejectsMalformedToken(t *testing.T) {
	f := newFixture()
	router := f.newRouter("u1")

	body := `{"userId":"u1","token":"UNREGISTERED"}`
	w, decoded := doJSON(t, router, http.MethodPost, "/push-token", body, nil)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if decoded["code"] != "TOKEN_VALIDATION" {
		t.Fatalf("code = %v", decoded["code"])
	}
}

func TestGetPushTokensListsWithoutTokenValue(t *testing.T) {
	f := newFixture()
	f.repo.records = []token.PushToken{{
		UserID:   "u1",
		Token:    "ExpoPushToken[secret]",
		Platform: token.PlatformIOS,
		IsActive: true,
		LastUsed: time.Now(),
	}}
	router := f.newRouter("u1")

	w, body := doJSON(t, router, http.MethodGet, "/push-token?userId=u1", "", nil)

	if w.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("status = %d, count = %v", w.Code, body["count"])
	}
	tokens := body["tokens"].([]interface{})
	first := tokens[0].(map[string]interface{})
	if _, leaked := first["token"]; leaked {
		t.Fatal("raw token value leaked into the listing")
	}
}

func TestDeletePushTokenRequiresFilter(t *testing.T) {
	f := newFixture()
	router := f.newRouter("u1")

	w, _ := doJSON(t, router, http.MethodDelete, "/push-token", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDeletePushTokenDeactivates(t *testing.T) {
	f := newFixture()
	f.repo.deactivated = 2
	router := f.newRouter("u1")

	w, body := doJSON(t, router, http.MethodDelete, "/push-token?userId=u1", "", nil)
	if w.Code != http.StatusOK || body["deactivated"] != float64(2) {
		t.Fatalf("status = %d, deactivated = %v", w.Code, body["deactivated"])
	}
}

func TestDeletePushTokenNotFound(t *testing.T) {
	f := newFixture()
	f.repo.deactivated = 0
	router := f.newRouter("u1")

	w, body := doJSON(t, router, http.MethodDelete, "/push-token?token=ExpoPushToken[gone]", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body["code"] != "PUSH_TOKEN_NOT_FOUND" {
		t.Fatalf("code = %v", body["code"])
	}
}
