package session

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fauter/cochera-admin/internal/role"
)

var (
	ErrInvalidShadowRecord = errors.New("invalid_shadow_record")
	ErrStoreDisposed       = errors.New("session_store_disposed")
)

// Claims is the subset of access token claims the dashboard reads.
type Claims struct {
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
}

// Standard is an identity issued by the hosted auth provider.
type Standard struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Claims       Claims
}

func (s *Standard) clone() *Standard {
	if s == nil {
		return nil
	}
	out := *s
	out.Claims.UserMetadata = cloneMap(s.Claims.UserMetadata)
	out.Claims.AppMetadata = cloneMap(s.Claims.AppMetadata)
	return &out
}

// ShadowRecord is the employee record returned by the employee login procedure.
// It is the JSON blob kept in ephemeral storage for the life of the tab.
type ShadowRecord struct {
	ID          string                   `json:"id"`
	FullName    string                   `json:"full_name"`
	Role        string                   `json:"role"`
	OwnerID     string                   `json:"owner_id"`
	GarageID    *string                  `json:"garage_id,omitempty"`
	Permissions *role.PermissionDocument `json:"permissions,omitempty"`
}

// Shadow is an employee identity with no provider token.
type Shadow struct {
	ID          string
	FullName    string
	Role        role.Role
	OwnerID     string
	GarageID    string
	Permissions role.PermissionDocument
}

func (s *Shadow) clone() *Shadow {
	if s == nil {
		return nil
	}
	out := *s
	out.Permissions = role.PermissionDocument{
		AllowedGarages: append([]string{}, s.Permissions.AllowedGarages...),
		Sections:       append([]string{}, s.Permissions.Sections...),
	}
	return &out
}

// ShadowFromRecord validates a record and turns it into a Shadow identity. A
// garage binding without an explicit allow-list is treated as a one-entry list.
func ShadowFromRecord(rec ShadowRecord) (*Shadow, error) {
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return nil, ErrInvalidShadowRecord
	}
	r, err := role.Parse(rec.Role)
	if err != nil || !r.Delegated() {
		return nil, ErrInvalidShadowRecord
	}
	shadow := &Shadow{
		ID:       id,
		FullName: strings.TrimSpace(rec.FullName),
		Role:     r,
		OwnerID:  strings.TrimSpace(rec.OwnerID),
	}
	if rec.GarageID != nil {
		shadow.GarageID = strings.TrimSpace(*rec.GarageID)
	}
	var doc role.PermissionDocument
	if rec.Permissions != nil {
		doc = *rec.Permissions
	}
	if len(doc.AllowedGarages) == 0 && shadow.GarageID != "" {
		doc.AllowedGarages = []string{shadow.GarageID}
	}
	shadow.Permissions = doc.Normalize()
	return shadow, nil
}

// Record is the inverse of ShadowFromRecord.
func (s *Shadow) Record() ShadowRecord {
	doc := s.Permissions.Normalize()
	rec := ShadowRecord{
		ID:          s.ID,
		FullName:    s.FullName,
		Role:        string(s.Role),
		OwnerID:     s.OwnerID,
		Permissions: &doc,
	}
	if s.GarageID != "" {
		g := s.GarageID
		rec.GarageID = &g
	}
	return rec
}

// decodeShadow parses a stored blob. Any failure is reported as
// ErrInvalidShadowRecord so callers can treat it as absence.
func decodeShadow(blob []byte) (*Shadow, error) {
	var rec ShadowRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, ErrInvalidShadowRecord
	}
	return ShadowFromRecord(rec)
}

type Kind int

const (
	KindNone Kind = iota
	KindStandard
	KindShadow
)

func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindShadow:
		return "shadow"
	default:
		return "none"
	}
}

// Identity holds at most one of Standard or Shadow.
type Identity struct {
	Standard *Standard
	Shadow   *Shadow
}

func (i Identity) Kind() Kind {
	switch {
	case i.Standard != nil:
		return KindStandard
	case i.Shadow != nil:
		return KindShadow
	default:
		return KindNone
	}
}

func (i Identity) Authenticated() bool {
	return i.Kind() != KindNone
}

func (i Identity) UserID() string {
	switch {
	case i.Standard != nil:
		return i.Standard.UserID
	case i.Shadow != nil:
		return i.Shadow.ID
	default:
		return ""
	}
}

func (i Identity) clone() Identity {
	return Identity{Standard: i.Standard.clone(), Shadow: i.Shadow.clone()}
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
