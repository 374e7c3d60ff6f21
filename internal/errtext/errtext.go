// Package errtext turns backend and provider errors into the short Spanish
// phrases shown to dashboard users, and exposes raw error fields for the
// diagnostics view.
package errtext

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const Fallback = "Ocurrió un error inesperado"

type phrase struct {
	match string
	text  string
}

// Known fragments, matched case-insensitively against the error text.
var phrases = []phrase{
	{"invalid login credentials", "Credenciales incorrectas"},
	{"invalid login", "Credenciales incorrectas"},
	{"invalid_credentials", "Credenciales incorrectas"},
	{"email not confirmed", "Email no confirmado"},
	{"email_not_confirmed", "Email no confirmado"},
	{"user already registered", "El usuario ya está registrado"},
	{"user_exists", "El usuario ya está registrado"},
	{"rate limit", "Demasiados intentos, esperá unos minutos"},
	{"rate_limited", "Demasiados intentos, esperá unos minutos"},
	{"too many requests", "Demasiados intentos, esperá unos minutos"},
	{"password should be at least", "La contraseña es demasiado corta"},
	{"weak_password", "La contraseña es demasiado corta"},
	{"failed to fetch", "No se pudo conectar con el servidor"},
	{"connection refused", "No se pudo conectar con el servidor"},
	{"provider_unavailable", "No se pudo conectar con el servidor"},
	{"row-level security", "No tenés permisos para esta acción"},
	{"permission denied", "No tenés permisos para esta acción"},
	{"forbidden", "No tenés permisos para esta acción"},
	{"garage_out_of_scope", "No tenés acceso a esta cochera"},
	{"cell_busy", "Ya se está guardando este valor"},
	{"username_taken", "Ese nombre de usuario ya está en uso"},
	{"invalid_tax_id", "El CUIT debe tener 11 dígitos"},
	{"invalid_amount", "El importe no es válido"},
	{"duplicate_code", "Ya existe un tipo de vehículo con ese nombre"},
	{"invalid_structure", "La estructura del edificio no es válida"},
	{"not_confirmed", "La confirmación no coincide"},
	{"not_master", "Esta acción está reservada a la cuenta maestra"},
	{"not_found", "No se encontró lo que buscabas"},
}

// Translate returns a user-facing phrase for err. Unknown errors map to Fallback,
// the raw message is never returned.
func Translate(err error) string {
	if err == nil {
		return ""
	}
	if isNetwork(err) {
		return "No se pudo conectar con el servidor"
	}
	return TranslateMessage(err.Error())
}

func TranslateMessage(msg string) string {
	lower := strings.ToLower(strings.TrimSpace(msg))
	if lower == "" {
		return Fallback
	}
	for _, p := range phrases {
		if strings.Contains(lower, p.match) {
			return p.text
		}
	}
	return Fallback
}

func isNetwork(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// RawError carries backend error fields verbatim.
type RawError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Raw extracts code/message/detail/hint from postgres errors raised through
// either driver. Other errors only carry a message.
func Raw(err error) RawError {
	if err == nil {
		return RawError{}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return RawError{Code: pgErr.Code, Message: pgErr.Message, Detail: pgErr.Detail, Hint: pgErr.Hint}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return RawError{Code: string(pqErr.Code), Message: pqErr.Message, Detail: pqErr.Detail, Hint: pqErr.Hint}
	}
	return RawError{Message: err.Error()}
}
