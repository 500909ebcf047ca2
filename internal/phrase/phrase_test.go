package phrase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDefaultMessagePerLanguage(t *testing.T) {
	cases := []struct {
		lang string
		want string
	}{
		{"en", "Your ride for Bs. 50.00 is confirmed!"},
		{"es", "¡Tu viaje por Bs. 50.00 está confirmado!"},
		{"pt", "Sua viagem de Bs. 50.00 está confirmada!"},
		{"fr", "Your ride for Bs. 50.00 is confirmed!"}, // unknown falls back to English
		{"", "Your ride for Bs. 50.00 is confirmed!"},
	}
	for _, tc := range cases {
		if got := DefaultMessage(50, tc.lang); !strings.HasPrefix(got, tc.want) {
			t.Errorf("DefaultMessage(50, %q) = %q, want prefix %q", tc.lang, got, tc.want)
		}
	}
}

func TestClientUsesServiceResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization header = %q", got)
		}
		w.Write([]byte(`{"text":"Enjoy the ride!"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	if got := c.ConfirmationMessage(context.Background(), 50, "en"); got != "Enjoy the ride!" {
		t.Errorf("message = %q", got)
	}
}

func TestClientFallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	got := c.ConfirmationMessage(context.Background(), 75, "es")
	if !strings.Contains(got, "Bs. 75.00") {
		t.Errorf("fallback message = %q", got)
	}

	var nilClient *Client
	if got := nilClient.ConfirmationMessage(context.Background(), 10, "en"); !strings.Contains(got, "Bs. 10.00") {
		t.Errorf("nil client message = %q", got)
	}
}
