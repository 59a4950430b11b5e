package interfaces

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is the account type an identity has chosen. A fresh identity starts
// as RoleUnset and picks a role through the (out of scope) role-selection
// flow; this core only ever reads it.
type Role string

const (
	// RoleUnset marks an identity that has not picked a role yet.
	RoleUnset Role = ""

	// RoleStudent owns documents and submits verification requests.
	RoleStudent Role = "student"

	// RoleInstitution issues documents and resolves verification requests.
	RoleInstitution Role = "institution"

	// RoleEmployer can be granted read access out of scope; it never holds
	// documents or keys.
	RoleEmployer Role = "employer"
)

// ParseRole validates a role string from an external source.
// The empty string parses to RoleUnset.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case RoleUnset:
		return RoleUnset, nil
	case RoleStudent:
		return RoleStudent, nil
	case RoleInstitution:
		return RoleInstitution, nil
	case RoleEmployer:
		return RoleEmployer, nil
	default:
		return RoleUnset, fmt.Errorf("unknown role %q", s)
	}
}

// Chosen reports whether the identity has picked a role.
func (r Role) Chosen() bool {
	return r != RoleUnset
}

// String returns the role name, or "unset".
func (r Role) String() string {
	if r == RoleUnset {
		return "unset"
	}
	return string(r)
}

// Identity is the authenticated principal as supplied by the identity
// provider. The core trusts the (ID, Email, Role) triple unconditionally and
// performs no credential verification itself.
type Identity struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail lowercases and trims an email address. Emails are compared
// and stored exclusively in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EncryptionParams are the per-document AEAD parameters recorded in the
// registry alongside the content id. They duplicate the envelope-embedded
// copy so a document stays decryptable if the stored envelope omits them.
type EncryptionParams struct {
	IV        string `json:"iv"`        // base64, 12 bytes decoded
	Tag       string `json:"tag"`       // base64 AEAD tag
	Algorithm string `json:"algorithm"` // e.g. "aes-256-gcm"
}

// Document is the registry record for one issued or uploaded document. The
// plaintext itself never appears here; ContentID resolves to an envelope
// encrypted under the owner's user key.
type Document struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	ContentID   ContentID
	Encryption  EncryptionParams

	// AttestedBy holds the display name of the institution that attested
	// this document, empty if unattested.
	AttestedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attested reports whether an institution has vouched for this document.
func (d *Document) Attested() bool {
	return d.AttestedBy != ""
}

// RequestStatus is the state of a verification request. Only pending
// requests are ever persisted: approval and rejection delete the row.
type RequestStatus string

// StatusPending is the only stored status; resolution is row deletion.
const StatusPending RequestStatus = "pending"

// VerificationRequest asks an institution to attest one of a student's
// documents. At most one pending request exists per (document, student,
// institution) triple.
type VerificationRequest struct {
	ID            string
	DocumentID    string
	StudentID     string
	InstitutionID string
	Status        RequestStatus

	// Remarks is an optional note the institution attaches when resolving.
	// It travels in the resolution response only; the row is gone afterwards.
	Remarks string

	CreatedAt time.Time
}

// Envelope is the only representation of document content that crosses the
// blob store boundary. Field names are pinned to the wire format; iv, tag
// and algorithm may be omitted by older envelopes, in which case the
// registry's EncryptionParams copy applies.
type Envelope struct {
	EncryptedData string `json:"encryptedData"`
	IV            string `json:"iv,omitempty"`
	Tag           string `json:"tag,omitempty"`
	Algorithm     string `json:"algorithm,omitempty"`
	OwnerID       string `json:"userId,omitempty"`
}

// Encode serializes the envelope to its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses envelope bytes fetched from the blob store.
// Returns ErrMalformedEnvelope if the payload is not valid envelope JSON or
// carries no ciphertext.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.EncryptedData == "" {
		return nil, fmt.Errorf("%w: missing encryptedData", ErrMalformedEnvelope)
	}
	return &env, nil
}
