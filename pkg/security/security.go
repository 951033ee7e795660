/*
Package security supplies the identity, permission, ACL, and audit
collaborators consumed by the VFS layer. The VFS never decides access on
its own: it fetches a file's owner and mode from the driver, asks this
package whether the calling identity may proceed, and records the outcome
with the auditor.
*/
package security

import (
	"errors"
	"log"
)

// Permission bits, combinable.
const (
	PermRead    = 4
	PermWrite   = 2
	PermExecute = 1
)

// Access errors
var (
	ErrAccessDenied = errors.New("security: access denied")
	ErrNoACLEntry   = errors.New("security: no matching acl entry")
)

// Identity reports the uid/gid of the calling context.
type Identity interface {
	CurrentUID() uint32
	CurrentGID() uint32
}

// StaticIdentity is a fixed identity, useful for tests and single-user
// systems.
type StaticIdentity struct {
	UID uint32
	GID uint32
}

// CurrentUID returns the fixed uid.
func (s StaticIdentity) CurrentUID() uint32 { return s.UID }

// CurrentGID returns the fixed gid.
func (s StaticIdentity) CurrentGID() uint32 { return s.GID }

// RootIdentity is uid 0 / gid 0, which every check allows.
var RootIdentity = StaticIdentity{UID: 0, GID: 0}

// FilePerm is the Unix-style ownership and mode of a file.
type FilePerm struct {
	Mode uint32
	UID  uint32
	GID  uint32
}

// check tests one permission bit against the owner/group/other classes in
// that order. Root bypasses all checks.
func (p FilePerm) check(uid, gid uint32, bit uint32) bool {
	if uid == 0 {
		return true
	}
	if uid == p.UID {
		return p.Mode&(bit<<6) != 0
	}
	if gid == p.GID {
		return p.Mode&(bit<<3) != 0
	}
	return p.Mode&bit != 0
}

// CheckRead reports whether uid/gid may read the file.
func (p FilePerm) CheckRead(uid, gid uint32) bool {
	return p.check(uid, gid, PermRead)
}

// CheckWrite reports whether uid/gid may write the file.
func (p FilePerm) CheckWrite(uid, gid uint32) bool {
	return p.check(uid, gid, PermWrite)
}

// CheckExecute reports whether uid/gid may execute the file.
func (p FilePerm) CheckExecute(uid, gid uint32) bool {
	return p.check(uid, gid, PermExecute)
}

// AuditEvent classifies an audited operation.
type AuditEvent string

const (
	AuditOpen   AuditEvent = "open"
	AuditDenied AuditEvent = "denied"
	AuditMount  AuditEvent = "mount"
)

// Auditor records security-relevant filesystem events.
type Auditor interface {
	Log(event AuditEvent, uid, gid uint32, allowed bool, object, action string)
}

// LogAuditor writes audit events to the standard logger.
type LogAuditor struct{}

// Log records one event.
func (LogAuditor) Log(event AuditEvent, uid, gid uint32, allowed bool, object, action string) {
	verdict := "allow"
	if !allowed {
		verdict = "deny"
	}
	log.Printf("audit: event=%s uid=%d gid=%d verdict=%s object=%q action=%s",
		event, uid, gid, verdict, object, action)
}

// NopAuditor discards all events.
type NopAuditor struct{}

// Log discards the event.
func (NopAuditor) Log(AuditEvent, uint32, uint32, bool, string, string) {}
