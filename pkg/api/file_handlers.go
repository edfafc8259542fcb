package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/audit"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/files"
	"github.com/platinummonkey/grc-gateway/pkg/httputil"
)

const (
	opUploadEvidence = "upload_evidence"
	opDeleteEvidence = "delete_evidence"
	opUploadPolicy   = "upload_policy"
	opDeletePolicy   = "delete_policy"
)

// FileHandlers handles evidence and policy file uploads and deletions
type FileHandlers struct {
	handlerBase
	files          FileService
	maxUploadBytes int64
}

// NewFileHandlers creates a new FileHandlers. maxUploadBytes bounds the
// decoded file size; 0 disables the check.
func NewFileHandlers(base handlerBase, fileService FileService, maxUploadBytes int64) *FileHandlers {
	return &FileHandlers{handlerBase: base, files: fileService, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes registers file routes on an authenticated router
func (h *FileHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/upload-evidence", h.UploadEvidence).Methods(http.MethodPost)
	router.HandleFunc("/delete-evidence", h.DeleteEvidence).Methods(http.MethodPost)
	router.HandleFunc("/upload-policy", h.UploadPolicy).Methods(http.MethodPost)
	router.HandleFunc("/delete-policy", h.DeletePolicy).Methods(http.MethodPost)
}

// UploadEvidence stores an evidence file against a control of the caller's
// organization and returns a short-lived download URL
func (h *FileHandlers) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleManager)
	if err != nil {
		h.fail(w, r, opUploadEvidence, err)
		return
	}

	var req UploadEvidenceRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		h.fail(w, r, opUploadEvidence, err)
		return
	}
	data, err := h.decodeFile(req.FileData)
	if err != nil {
		h.fail(w, r, opUploadEvidence, err)
		return
	}

	ctx := r.Context()
	result, err := h.files.UploadEvidence(ctx, files.Upload{
		OrgID:       caller.OrgID,
		ActorID:     caller.UserID(),
		EntityID:    req.ControlID,
		FileName:    files.SanitizeFileName(req.FileName),
		ContentType: req.ContentType,
		Data:        data,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.fail(w, r, opUploadEvidence, err)
		return
	}

	h.record(ctx, audit.NewEvent(ctx, caller.OrgID, caller.UserID(), audit.ActionEvidenceUpload, audit.EntityEvidence, result.Evidence.ID).
		WithDetail("control_id", req.ControlID).
		WithDetail("storage_path", result.Evidence.StoragePath).
		WithDetail("file_size", result.Evidence.FileSize))

	h.succeed(w, opUploadEvidence, map[string]interface{}{
		"evidence":   result.Evidence,
		"signed_url": result.SignedURL,
	})
}

// DeleteEvidence removes an evidence row and its object
func (h *FileHandlers) DeleteEvidence(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleManager)
	if err != nil {
		h.fail(w, r, opDeleteEvidence, err)
		return
	}

	var req DeleteFileRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		h.fail(w, r, opDeleteEvidence, err)
		return
	}

	ctx := r.Context()
	evidence, err := h.files.DeleteEvidence(ctx, files.Deletion{OrgID: caller.OrgID, ID: req.ID, StoragePath: req.StoragePath})
	if err != nil {
		h.fail(w, r, opDeleteEvidence, err)
		return
	}

	h.record(ctx, audit.NewEvent(ctx, caller.OrgID, caller.UserID(), audit.ActionEvidenceDelete, audit.EntityEvidence, evidence.ID).
		WithDetail("control_id", evidence.ControlID).
		WithDetail("storage_path", evidence.StoragePath))

	h.succeed(w, opDeleteEvidence, map[string]interface{}{"deleted": evidence.ID})
}

// UploadPolicy stores a document against a policy of the caller's organization
func (h *FileHandlers) UploadPolicy(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleManager)
	if err != nil {
		h.fail(w, r, opUploadPolicy, err)
		return
	}

	var req UploadPolicyRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		h.fail(w, r, opUploadPolicy, err)
		return
	}
	data, err := h.decodeFile(req.FileData)
	if err != nil {
		h.fail(w, r, opUploadPolicy, err)
		return
	}

	ctx := r.Context()
	result, err := h.files.UploadPolicyFile(ctx, files.Upload{
		OrgID:       caller.OrgID,
		ActorID:     caller.UserID(),
		EntityID:    req.PolicyID,
		FileName:    files.SanitizeFileName(req.FileName),
		ContentType: req.ContentType,
		Data:        data,
		Version:     req.Version,
	})
	if err != nil {
		h.fail(w, r, opUploadPolicy, err)
		return
	}

	h.record(ctx, audit.NewEvent(ctx, caller.OrgID, caller.UserID(), audit.ActionPolicyFileUpload, audit.EntityPolicyFile, result.PolicyFile.ID).
		WithDetail("policy_id", req.PolicyID).
		WithDetail("storage_path", result.PolicyFile.StoragePath).
		WithDetail("file_size", result.PolicyFile.FileSize))

	h.succeed(w, opUploadPolicy, map[string]interface{}{
		"policy_file": result.PolicyFile,
		"signed_url":  result.SignedURL,
	})
}

// DeletePolicy removes a policy file row and its object
func (h *FileHandlers) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	caller, err := h.admit(r, auth.RoleManager)
	if err != nil {
		h.fail(w, r, opDeletePolicy, err)
		return
	}

	var req DeleteFileRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		h.fail(w, r, opDeletePolicy, err)
		return
	}

	ctx := r.Context()
	policyFile, err := h.files.DeletePolicyFile(ctx, files.Deletion{OrgID: caller.OrgID, ID: req.ID, StoragePath: req.StoragePath})
	if err != nil {
		h.fail(w, r, opDeletePolicy, err)
		return
	}

	h.record(ctx, audit.NewEvent(ctx, caller.OrgID, caller.UserID(), audit.ActionPolicyFileDelete, audit.EntityPolicyFile, policyFile.ID).
		WithDetail("policy_id", policyFile.PolicyID).
		WithDetail("storage_path", policyFile.StoragePath))

	h.succeed(w, opDeletePolicy, map[string]interface{}{"deleted": policyFile.ID})
}

// decodeFile decodes standard base64, with or without a data URL prefix
func (h *FileHandlers) decodeFile(encoded string) ([]byte, error) {
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, apperr.BadRequest("file_data is not valid base64")
	}
	if len(data) == 0 {
		return nil, apperr.BadRequest("file is empty")
	}
	if h.maxUploadBytes > 0 && int64(len(data)) > h.maxUploadBytes {
		return nil, apperr.BadRequest(fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
	}
	return data, nil
}
