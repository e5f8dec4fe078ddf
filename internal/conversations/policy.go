package conversations

import (
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/users"
)

// Guards run before any durable write and never mutate state.

func checkCreate(actor users.User) error {
	if actor.Role != users.RoleClient {
		return apperr.Forbidden(opCreate, "client_required", "only clients can open conversations")
	}
	return nil
}

func checkClaim(actor users.User, conversation Conversation) error {
	if !actor.IsAttendant() {
		return apperr.Forbidden(opClaim, "attendant_required", "only attendants can claim conversations")
	}
	if conversation.Assigned() {
		return apperr.Forbidden(opClaim, "already_assigned", "conversation already has an attendant")
	}
	return nil
}

func checkStatusEdit(actor users.User, conversation Conversation, target Status) error {
	if !conversation.AssignedTo(actor.ID) {
		return apperr.Forbidden(opUpdateStatus, "not_assigned_attendant", "only the assigned attendant can change the status")
	}
	return checkStatusTarget(target)
}

func checkStatusTarget(target Status) error {
	switch target {
	case StatusAttending, StatusClosed:
		return nil
	case StatusPending:
		return apperr.New(apperr.CategoryValidationFailed, opUpdateStatus, "invalid_transition", "a conversation cannot return to pending", nil)
	default:
		return apperr.Invalid(opUpdateStatus, "status", "status must be attending or closed")
	}
}

func checkRead(operation string, actor users.User, conversation Conversation) error {
	if conversation.ClientID == actor.ID || conversation.AssignedTo(actor.ID) {
		return nil
	}
	if actor.IsAttendant() && conversation.Status == StatusPending && !conversation.Assigned() {
		return nil
	}
	return apperr.Forbidden(operation, "read_not_allowed", "no access to this conversation")
}

func checkWrite(operation string, actor users.User, conversation Conversation) error {
	if conversation.ClientID != actor.ID && !conversation.AssignedTo(actor.ID) {
		return apperr.Forbidden(operation, "write_not_allowed", "only the client or the assigned attendant can write here")
	}
	if conversation.Status == StatusClosed {
		return apperr.Forbidden(operation, "conversation_closed", "conversation is closed")
	}
	return nil
}
