package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want any
	}{
		{name: "integer", in: `42`, want: int64(42)},
		{name: "float", in: `1.5`, want: float64(1.5)},
		{name: "string", in: `"abc-123"`, want: "abc-123"},
		{name: "numeric string stays string", in: `"42"`, want: "42"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var id RequestID
			if err := json.Unmarshal([]byte(tc.in), &id); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.in, err)
			}
			if id.Value() != tc.want {
				t.Fatalf("value = %v (%T), want %v (%T)", id.Value(), id.Value(), tc.want, tc.want)
			}

			out, err := json.Marshal(&id)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != tc.in {
				t.Fatalf("round trip = %s, want %s", out, tc.in)
			}
		})
	}
}

func TestRequestIDRejectsNonScalar(t *testing.T) {
	var id RequestID
	if err := json.Unmarshal([]byte(`{"a":1}`), &id); err == nil {
		t.Fatal("expected error for object ID")
	}
	if err := json.Unmarshal([]byte(`[1]`), &id); err == nil {
		t.Fatal("expected error for array ID")
	}
}

func TestAnyMessageClassification(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want MessageType
	}{
		{name: "request", in: `{"jsonrpc":"2.0","method":"ping","id":1}`, want: MessageTypeRequest},
		{name: "notification", in: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, want: MessageTypeNotification},
		{name: "result response", in: `{"jsonrpc":"2.0","result":{},"id":1}`, want: MessageTypeResponse},
		{name: "error response", in: `{"jsonrpc":"2.0","error":{"code":-32601,"message":"nope"},"id":1}`, want: MessageTypeResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg AnyMessage
			if err := json.Unmarshal([]byte(tc.in), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := msg.Type(); got != tc.want {
				t.Fatalf("type = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestAnyMessageRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{name: "wrong version", in: `{"jsonrpc":"1.0","method":"ping","id":1}`},
		{name: "missing version", in: `{"method":"ping","id":1}`},
		{name: "method with result", in: `{"jsonrpc":"2.0","method":"ping","result":{},"id":1}`},
		{name: "result and error", in: `{"jsonrpc":"2.0","result":{},"error":{"code":-32000,"message":"x"},"id":1}`},
		{name: "neither result nor error", in: `{"jsonrpc":"2.0","id":1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg AnyMessage
			if err := json.Unmarshal([]byte(tc.in), &msg); err == nil {
				t.Fatalf("expected error for %s", tc.in)
			}
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(NewRequestID("req-1"), ErrorCodeResourceNotFound, "resource not found", map[string]string{"uri": "mem://missing"})

	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var msg AnyMessage
	if err := json.Unmarshal(out, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type() != MessageTypeResponse {
		t.Fatalf("type = %s, want response", msg.Type())
	}
	if msg.Error == nil || msg.Error.Code != ErrorCodeResourceNotFound {
		t.Fatalf("error = %+v, want code %d", msg.Error, ErrorCodeResourceNotFound)
	}
	if msg.ID.Value() != "req-1" {
		t.Fatalf("id = %v, want req-1", msg.ID.Value())
	}
}

func TestNewNotificationHasNoID(t *testing.T) {
	req, err := NewNotification("notifications/progress", map[string]any{"progressToken": "t", "progress": 0.5})
	if err != nil {
		t.Fatalf("build notification: %v", err)
	}
	if !req.IsNotification() {
		t.Fatal("expected notification")
	}

	out, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(out, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["id"]; ok {
		t.Fatalf("notification must not carry an id: %s", out)
	}
}
