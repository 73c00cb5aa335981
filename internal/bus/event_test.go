package bus

import (
	"encoding/json"
	"strings"
	"testing"

	"qms/ticketing/internal/models"
)

func TestWireFormUsesPortugueseTypeNames(t *testing.T) {
	cases := []struct {
		payload Payload
		want    string
	}{
		{TicketIssued{}, "senha_emitida"},
		{TicketCalled{}, "senha_chamada"},
		{TicketServiceStarted{}, "senha_atendendo"},
		{TicketFinished{}, "senha_finalizada"},
		{TicketCancelled{}, "senha_cancelada"},
		{StationUpdated{}, "guiche_atualizado"},
		{ConfigUpdated{Config: &models.QueueConfig{}}, "config_atualizada"},
	}
	for _, tt := range cases {
		raw, err := json.Marshal(Event{Data: tt.payload, Timestamp: 1, Source: "test"})
		if err != nil {
			t.Fatalf("marshal %T: %v", tt.payload, err)
		}
		if !strings.Contains(string(raw), `"type":"`+tt.want+`"`) {
			t.Fatalf("%T encoded as %s", tt.payload, raw)
		}
		var back Event
		if err := json.Unmarshal(raw, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.want, err)
		}
		if back.Data.Type() != Type(tt.want) {
			t.Fatalf("decoded %s as %T", tt.want, back.Data)
		}
	}
}

func TestConfigUpdatedAcceptsServiceList(t *testing.T) {
	raw := `{"type":"config_atualizada","data":[{"service_id":"comum","code":"C"}],"timestamp":5,"source":"ConfiguracaoSenha"}`
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cfg, ok := e.Data.(ConfigUpdated)
	if !ok || cfg.Config != nil || len(cfg.Services) != 1 || cfg.Services[0].Code != "C" {
		t.Fatalf("unexpected payload %+v", e.Data)
	}
}

func TestUnknownTypeRejected(t *testing.T) {
	var e Event
	if err := json.Unmarshal([]byte(`{"type":"nope","data":{}}`), &e); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
