package server

import (
	"net/http"
	"strings"

	"github.com/bookden/bookden/internal/auditlog"
	"github.com/bookden/bookden/internal/gate"
	"github.com/bookden/bookden/internal/registry"
	"github.com/rs/zerolog/log"
)

// handleListMembers returns the tenant's membership roster.
func (d *Deps) handleListMembers(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant

	members, err := d.Registry.ListMembers(tenant.ID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to list members")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if members == nil {
		members = []*registry.Membership{}
	}
	writeJSON(w, http.StatusOK, members)
}

type putMemberRequest struct {
	IdentityID string        `json:"identity_id"`
	Role       registry.Role `json:"role"`
}

// handlePutMember grants a membership or changes a member's role. Owner-role
// changes are reserved to owners, and a tenant can never lose its last owner.
func (d *Deps) handlePutMember(w http.ResponseWriter, r *http.Request) {
	verdict := gate.VerdictFrom(r.Context())
	tenant, actor := verdict.Tenant, verdict.Identity

	var req putMemberRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.IdentityID = strings.TrimSpace(req.IdentityID)
	if req.IdentityID == "" {
		writeError(w, http.StatusBadRequest, "identity_id is required")
		return
	}
	if !registry.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "role must be owner, admin, or staff")
		return
	}

	currentRole, err := d.Registry.RoleOf(req.IdentityID, tenant.ID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Role lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Only owners may grant the owner role or touch an existing owner.
	if (req.Role == registry.RoleOwner || currentRole == registry.RoleOwner) && verdict.Role != registry.RoleOwner {
		writeError(w, http.StatusForbidden, "only an owner can manage owner roles")
		return
	}

	// Demoting an owner requires that another owner remains.
	if currentRole == registry.RoleOwner && req.Role != registry.RoleOwner {
		sole, err := d.soleOwner(tenant.ID, req.IdentityID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if sole {
			writeError(w, http.StatusConflict, "a tenant must keep at least one owner")
			return
		}
	}

	if err := d.Registry.PutMembership(&registry.Membership{
		TenantID:   tenant.ID,
		IdentityID: req.IdentityID,
		Role:       req.Role,
	}); err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to put membership")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	d.Audit.RecordMembershipChange(tenant.ID, actor.Subject, req.IdentityID, req.Role, auditlog.ClientIP(r))

	writeJSON(w, http.StatusOK, map[string]string{
		"tenant_id":   tenant.ID,
		"identity_id": req.IdentityID,
		"role":        string(req.Role),
	})
}

// handleRemoveMember deletes a membership, keeping the last-owner guard.
func (d *Deps) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	verdict := gate.VerdictFrom(r.Context())
	tenant, actor := verdict.Tenant, verdict.Identity

	identityID := strings.TrimSpace(r.PathValue("identity_id"))
	if identityID == "" {
		writeError(w, http.StatusBadRequest, "identity_id is required")
		return
	}

	currentRole, err := d.Registry.RoleOf(identityID, tenant.ID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Role lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if currentRole == registry.RoleNone {
		writeError(w, http.StatusNotFound, "membership not found")
		return
	}
	if currentRole == registry.RoleOwner {
		if verdict.Role != registry.RoleOwner {
			writeError(w, http.StatusForbidden, "only an owner can remove an owner")
			return
		}
		sole, err := d.soleOwner(tenant.ID, identityID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if sole {
			writeError(w, http.StatusConflict, "a tenant must keep at least one owner")
			return
		}
	}

	if err := d.Registry.DeleteMembership(tenant.ID, identityID); err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to delete membership")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	d.Audit.RecordMembershipRemoval(tenant.ID, actor.Subject, identityID, auditlog.ClientIP(r))

	w.WriteHeader(http.StatusNoContent)
}

// soleOwner reports whether identityID is the tenant's only owner.
func (d *Deps) soleOwner(tenantID, identityID string) (bool, error) {
	members, err := d.Registry.ListMembers(tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to list members")
		return false, err
	}
	for _, m := range members {
		if m.Role == registry.RoleOwner && m.IdentityID != identityID {
			return false, nil
		}
	}
	return true, nil
}
