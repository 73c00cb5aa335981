package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"qms/ticketing/internal/announce"
)

func TestParseRole(t *testing.T) {
	if role, err := parseRole("controller"); err != nil || role != announce.RoleController {
		t.Fatalf("unexpected role %q err=%v", role, err)
	}
	if role, err := parseRole("display"); err != nil || role != announce.RoleDisplay {
		t.Fatalf("unexpected role %q err=%v", role, err)
	}
	if _, err := parseRole("kiosk"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestVoicesHandlerLoadsDevice(t *testing.T) {
	device := announce.NewDeviceVoices()
	changed := 0
	device.OnVoicesChanged(func() { changed++ })
	handler := voicesHandler(device)

	body := `{"voices":[{"name":"Luciana","lang":"pt-BR","default":true}]}`
	resp := httptest.NewRecorder()
	handler(resp, httptest.NewRequest(http.MethodPost, "/voices", strings.NewReader(body)))

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
	voices, loaded := device.Voices()
	if !loaded || len(voices) != 1 || voices[0].Name != "Luciana" {
		t.Fatalf("unexpected voices %+v loaded=%v", voices, loaded)
	}
	if changed != 1 {
		t.Fatalf("expected one change notification, got %d", changed)
	}

	resp = httptest.NewRecorder()
	handler(resp, httptest.NewRequest(http.MethodPost, "/voices", strings.NewReader(`{"voices":1}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}
