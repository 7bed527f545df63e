package models

import "time"

// Assignment is the result of binding an order to a team member.
type Assignment struct {
	OrderID      string      `json:"order_id"`
	OrderNumber  string      `json:"order_number"`
	TeamMemberID string      `json:"team_member_id"`
	MemberName   string      `json:"member_name"`
	Status       OrderStatus `json:"status"`
	AssignedAt   time.Time   `json:"assigned_at"`
}

// Workload summarizes a team member's in-flight assignments.
type Workload struct {
	TeamMemberID string `json:"team_member_id"`
	MemberName   string `json:"member_name"`
	IsActive     bool   `json:"is_active"`
	ActiveOrders int    `json:"active_orders"`
}
