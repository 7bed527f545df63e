package assignment

import (
	"context"
	"fmt"

	"ordering-and-delivery/internal/models"
	"ordering-and-delivery/pkg/clock"
	"ordering-and-delivery/pkg/notifier"
)

// ServiceInterface defines the assignment operations.
type ServiceInterface interface {
	AssignOrder(ctx context.Context, actor models.Actor, orderID string, req *models.AssignOrderRequest) (*models.Assignment, error)
	ListTeamMembers(ctx context.Context, activeOnly bool) ([]*models.User, error)
	GetWorkload(ctx context.Context, teamMemberID string) (*models.Workload, error)
}

// Service binds orders to delivery team members. Assigning a pending order
// implicitly confirms it; the bind and the status advance land as one
// guarded write with a single history entry.
type Service struct {
	repo   RepositoryInterface
	notify *notifier.Dispatcher
	clock  clock.Clock
}

func NewService(repo RepositoryInterface, dispatcher *notifier.Dispatcher, clk clock.Clock) *Service {
	return &Service{repo: repo, notify: dispatcher, clock: clk}
}

// AssignOrder validates the team member's eligibility and binds the order.
// Any non-terminal order may be assigned or reassigned.
func (s *Service) AssignOrder(ctx context.Context, actor models.Actor, orderID string, req *models.AssignOrderRequest) (*models.Assignment, error) {
	member, err := s.repo.FindUser(ctx, req.TeamMemberID)
	if err != nil {
		return nil, fmt.Errorf("service.AssignOrder: %w", err)
	}
	if member.Role != models.RoleTeamMember {
		return nil, fmt.Errorf("service.AssignOrder: %w: %s", models.ErrAgentWrongRole, member.ID)
	}
	if !member.IsActive {
		return nil, fmt.Errorf("service.AssignOrder: %w: %s", models.ErrAgentInactive, member.Name)
	}

	o, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.AssignOrder: %w", err)
	}

	now := s.clock.Now()
	var to models.OrderStatus
	var note string
	switch {
	case o.Status.IsTerminal():
		return nil, fmt.Errorf("service.AssignOrder: %w", &models.InvalidTransitionError{From: o.Status, To: models.StatusConfirmed})
	case o.Status == models.StatusPending:
		to = models.StatusConfirmed
		note = fmt.Sprintf("Assigned to %s and confirmed", member.Name)
	default:
		to = o.Status
		if o.AssignedTo != nil && *o.AssignedTo != member.ID {
			note = fmt.Sprintf("Reassigned to %s", member.Name)
		} else {
			note = fmt.Sprintf("Assigned to %s", member.Name)
		}
	}

	entry := models.StatusEntry{
		Status:    to,
		Timestamp: now,
		Actor:     actor.ID,
		Note:      note,
	}
	if err := s.repo.Assign(ctx, orderID, member.ID, o.Status, to, entry); err != nil {
		return nil, fmt.Errorf("service.AssignOrder: %w", err)
	}

	if s.notify != nil {
		recipient := models.User{ID: o.CustomerID}
		if u, err := s.repo.FindUser(ctx, o.CustomerID); err == nil {
			recipient = *u
		}
		s.notify.Dispatch(notifier.Event{
			Type:        notifier.EventAssignmentCreated,
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      to,
			Recipient:   recipient,
			Agent:       member,
			OccurredAt:  now,
		})
	}

	return &models.Assignment{
		OrderID:      o.ID,
		OrderNumber:  o.OrderNumber,
		TeamMemberID: member.ID,
		MemberName:   member.Name,
		Status:       to,
		AssignedAt:   now,
	}, nil
}

func (s *Service) ListTeamMembers(ctx context.Context, activeOnly bool) ([]*models.User, error) {
	members, err := s.repo.ListTeamMembers(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("service.ListTeamMembers: %w", err)
	}
	return members, nil
}

// GetWorkload reports how many in-flight orders a team member currently
// holds. Deactivating a member does not shed their load; existing
// assignments ride to completion.
func (s *Service) GetWorkload(ctx context.Context, teamMemberID string) (*models.Workload, error) {
	member, err := s.repo.FindUser(ctx, teamMemberID)
	if err != nil {
		return nil, fmt.Errorf("service.GetWorkload: %w", err)
	}
	if member.Role != models.RoleTeamMember {
		return nil, fmt.Errorf("service.GetWorkload: %w: %s", models.ErrAgentWrongRole, member.ID)
	}
	count, err := s.repo.CountActiveAssignments(ctx, teamMemberID)
	if err != nil {
		return nil, fmt.Errorf("service.GetWorkload: %w", err)
	}
	return &models.Workload{
		TeamMemberID: member.ID,
		MemberName:   member.Name,
		IsActive:     member.IsActive,
		ActiveOrders: count,
	}, nil
}
