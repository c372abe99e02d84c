package model

// Credential is a single stored password entry. ID is assigned by the store
// and is never reused, even after the credential is deleted.
type Credential struct {
	ID          int64
	Name        string
	Description string
	Secret      string
}

// CredentialFields holds the caller-supplied values for a new credential.
type CredentialFields struct {
	Name        string
	Description string
	Secret      string
}

// CredentialPatch is a partial update. Nil fields are left unchanged.
type CredentialPatch struct {
	Name        *string
	Description *string
	Secret      *string
}

// Apply returns a copy of c with every non-nil field of p merged in.
func (p CredentialPatch) Apply(c Credential) Credential {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Secret != nil {
		c.Secret = *p.Secret
	}
	return c
}
