package ledger

// Identity is an opaque, pre-authenticated principal. Session handling and
// signature verification happen at the wallet boundary; by the time an
// Identity reaches the ledger it is trusted.
type Identity string

func (i Identity) String() string { return string(i) }

// AccessControl resolves whether a caller may perform privileged operations
// (fee changes, treasury withdrawal). A single admin identity is configured
// at startup and compared per call.
type AccessControl struct {
	admin Identity
}

func NewAccessControl(admin Identity) AccessControl {
	return AccessControl{admin: admin}
}

func (a AccessControl) Admin() Identity { return a.admin }

// Authorize returns ErrUnauthorized unless caller is the configured admin.
func (a AccessControl) Authorize(caller Identity) error {
	if caller == "" || caller != a.admin {
		return ErrUnauthorized
	}
	return nil
}
