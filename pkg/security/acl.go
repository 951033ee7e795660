package security

// ACL entry types.
const (
	ACLUser  = 1
	ACLGroup = 2
	ACLOther = 4
	ACLMask  = 8
)

// ACLEntry grants a permission set to one principal class.
type ACLEntry struct {
	Type  int
	ID    uint32 // uid for ACLUser entries, gid for ACLGroup entries
	Perms uint32
}

// ACL is an ordered access control list. Evaluation order: a matching user
// entry decides immediately; then group entries (intersected with the mask
// entry when present); then the other entry.
type ACL struct {
	Entries []ACLEntry
}

// mask returns the effective mask, or all bits when no mask entry exists.
func (a *ACL) mask() uint32 {
	for _, e := range a.Entries {
		if e.Type == ACLMask {
			return e.Perms
		}
	}
	return PermRead | PermWrite | PermExecute
}

// CheckAccess reports whether uid/gid holds every bit in requested. Root is
// always allowed.
func (a *ACL) CheckAccess(uid, gid uint32, requested uint32) bool {
	if uid == 0 {
		return true
	}

	for _, e := range a.Entries {
		if e.Type == ACLUser && e.ID == uid {
			return e.Perms&requested == requested
		}
	}

	mask := a.mask()
	for _, e := range a.Entries {
		if e.Type == ACLGroup && e.ID == gid {
			if (e.Perms&mask)&requested == requested {
				return true
			}
		}
	}

	for _, e := range a.Entries {
		if e.Type == ACLOther {
			return e.Perms&requested == requested
		}
	}
	return false
}
