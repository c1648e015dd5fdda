package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/optima-bank/loyalty/internal/platform/auth"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

// clientKeyHeader identifies anonymous cart owners. Authenticated requests
// derive the cart key from the verified user id instead.
const clientKeyHeader = "X-Client-ID"

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// NewPointsPrinter builds the locale-aware printer used to render point
// balances with digit grouping.
func NewPointsPrinter(locale string) *message.Printer {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

func formatPoints(printer *message.Printer, points int64) string {
	if printer == nil {
		printer = message.NewPrinter(language.English)
	}
	return printer.Sprintf("%d", points)
}

// resolveCartKey derives the cart owner key: the verified user id when a
// session is attached, the client-supplied key header otherwise.
func resolveCartKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		if uid := strings.TrimSpace(identity.UID); uid != "" {
			return uid
		}
	}
	return strings.TrimSpace(r.Header.Get(clientKeyHeader))
}

func bearerTokenFromContext(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		return identity.AccessToken()
	}
	return ""
}
