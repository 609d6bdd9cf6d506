package bridge

import (
	"strings"
	"testing"
)

func TestEncodeDecodeAuthToken(t *testing.T) {
	msg := AuthToken{CorrelationID: "corr-1", Token: "tok-abc"}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(string(data), `"type":"AUTH_TOKEN"`) {
		t.Errorf("encoded message missing type discriminator: %s", data)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	got, ok := decoded.(AuthToken)
	if !ok {
		t.Fatalf("decoded message type = %T, want AuthToken", decoded)
	}
	if got != msg {
		t.Errorf("decoded = %+v, want %+v", got, msg)
	}
}

func TestEncodeDecodeAuthResponse(t *testing.T) {
	tests := []struct {
		name string
		msg  AuthResponse
	}{
		{"success", AuthResponse{CorrelationID: "c1", Success: true}},
		{"failure", AuthResponse{CorrelationID: "c2", Success: false, Error: "token expired"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode returned error: %v", err)
			}
			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			got, ok := decoded.(AuthResponse)
			if !ok {
				t.Fatalf("decoded message type = %T, want AuthResponse", decoded)
			}
			if got != tt.msg {
				t.Errorf("decoded = %+v, want %+v", got, tt.msg)
			}
		})
	}
}

func TestEncodeDecodeValidateMessages(t *testing.T) {
	req := ValidateConnection{CorrelationID: "v1"}
	data, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got, ok := decoded.(ValidateConnection); !ok || got != req {
		t.Errorf("decoded = %+v (%T), want %+v", decoded, decoded, req)
	}

	resp := ValidateResponse{CorrelationID: "v1", Success: false, Error: "not connected"}
	data, err = Encode(resp)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	decoded, err = Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got, ok := decoded.(ValidateResponse); !ok || got != resp {
		t.Errorf("decoded = %+v (%T), want %+v", decoded, decoded, resp)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"SOMETHING_ELSE","correlationId":"x"}`))
	if err == nil {
		t.Fatal("Decode should reject unknown message type")
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if err == nil {
		t.Fatal("Decode should reject invalid JSON")
	}
}
