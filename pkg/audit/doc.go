// Package audit records privileged gateway actions.
//
// Events are append-only rows in audit_logs stamped with the organization,
// the actor and a timestamp. Invitations are tracked separately in
// user_invite_logs, where the only permitted change is setting accepted_at.
//
// A typical setup writes to the database and mirrors each event into the
// structured log:
//
//	dbLogger, _ := audit.NewDBLogger(db)
//	logger := audit.NewMultiLogger(dbLogger, audit.NewLogSink(appLogger))
//	ev := audit.NewEvent(ctx, orgID, actorID, audit.ActionEvidenceUpload, audit.EntityEvidence, evidenceID)
//	_ = logger.Log(ctx, ev.WithDetail("storage_path", path))
package audit
