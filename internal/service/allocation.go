package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
)

var (
	federationRatio = decimal.RequireFromString("0.50")
	leadRatio       = decimal.RequireFromString("0.60")
)

// round2 rounds half away from zero to two decimal places.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SplitRevenue divides a category's collected total into the federation share and the instructor pool.
// The pool is the remainder so both always sum to the total.
func SplitRevenue(total decimal.Decimal) (federation, pool decimal.Decimal) {
	federation = round2(total.Mul(federationRatio))
	return federation, total.Sub(federation)
}

// SplitPool divides the instructor pool into the lead and assistant pools.
func SplitPool(pool decimal.Decimal) (lead, assistant decimal.Decimal) {
	lead = round2(pool.Mul(leadRatio))
	return lead, pool.Sub(lead)
}

// Allocation is the full breakdown of one (category, month) computation.
type Allocation struct {
	TotalCollected       decimal.Decimal
	FederationShare      decimal.Decimal
	InstructorPool       decimal.Decimal
	LeadPool             decimal.Decimal
	AssistantPool        decimal.Decimal
	LeadAssignments      int
	AssistantAssignments int
	LeadRate             decimal.Decimal
	AssistantRate        decimal.Decimal
	LeadResidual         decimal.Decimal
	AssistantResidual    decimal.Decimal
	Shares               []dto.InstructorShare
}

type shareKey struct {
	instructorID string
	role         models.AssignmentRole
}

// Allocate computes every instructor's share for the given assignments.
// Each amount is round2(role_pool * classes / role_count); the leftover cents stay unallocated
// and are reported as residuals. A role without assignments has a zero rate.
func Allocate(total decimal.Decimal, assignments []models.TeachingAssignment) Allocation {
	federation, pool := SplitRevenue(total)
	leadPool, assistantPool := SplitPool(pool)

	result := Allocation{
		TotalCollected:    total,
		FederationShare:   federation,
		InstructorPool:    pool,
		LeadPool:          leadPool,
		AssistantPool:     assistantPool,
		LeadRate:          decimal.Zero,
		AssistantRate:     decimal.Zero,
		LeadResidual:      leadPool,
		AssistantResidual: assistantPool,
	}

	classes := make(map[shareKey]int)
	for _, assignment := range assignments {
		if !assignment.Role.Valid() {
			continue
		}
		if assignment.Role == models.RoleLead {
			result.LeadAssignments++
		} else {
			result.AssistantAssignments++
		}
		classes[shareKey{instructorID: assignment.InstructorID, role: assignment.Role}]++
	}

	if result.LeadAssignments > 0 {
		result.LeadRate = round2(leadPool.Div(decimal.NewFromInt(int64(result.LeadAssignments))))
	}
	if result.AssistantAssignments > 0 {
		result.AssistantRate = round2(assistantPool.Div(decimal.NewFromInt(int64(result.AssistantAssignments))))
	}

	keys := make([]shareKey, 0, len(classes))
	for key := range classes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].role != keys[j].role {
			return keys[i].role == models.RoleLead
		}
		return keys[i].instructorID < keys[j].instructorID
	})

	result.Shares = make([]dto.InstructorShare, 0, len(keys))
	for _, key := range keys {
		count := classes[key]
		rolePool, roleCount, rate := leadPool, result.LeadAssignments, result.LeadRate
		if key.role == models.RoleAssistant {
			rolePool, roleCount, rate = assistantPool, result.AssistantAssignments, result.AssistantRate
		}
		amount := round2(rolePool.Mul(decimal.NewFromInt(int64(count))).Div(decimal.NewFromInt(int64(roleCount))))
		result.Shares = append(result.Shares, dto.InstructorShare{
			InstructorID: key.instructorID,
			Role:         key.role,
			Classes:      count,
			Rate:         rate,
			Amount:       amount,
		})
		if key.role == models.RoleLead {
			result.LeadResidual = result.LeadResidual.Sub(amount)
		} else {
			result.AssistantResidual = result.AssistantResidual.Sub(amount)
		}
	}

	return result
}
