package http

import (
	"time"

	settlement "rentledger/internal/settlement/domain"
)

type itemDTO struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	MeterID        string `json:"meter_id,omitempty"`
	FixedUtilityID string `json:"fixed_utility_id,omitempty"`
	Name           string `json:"name"`
	Unit           string `json:"unit,omitempty"`
	Consumption    string `json:"consumption,omitempty"`
	Rate           string `json:"rate,omitempty"`
	TotalCost      string `json:"total_cost"`
}

type shareDTO struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	ActiveDays   int    `json:"active_days"`
	ShareRatio   string `json:"share_ratio"`
	FinalAmount  string `json:"final_amount"`
	AdvancesPaid string `json:"advances_paid,omitempty"`
	BalanceDue   string `json:"balance_due,omitempty"`
}

type settlementDTO struct {
	ID          string     `json:"id"`
	PropertyID  string     `json:"property_id"`
	Title       string     `json:"title"`
	PeriodStart string     `json:"period_start"`
	PeriodEnd   string     `json:"period_end"`
	Approach    string     `json:"approach"`
	Status      string     `json:"status"`
	TotalAmount string     `json:"total_amount"`
	Currency    string     `json:"currency"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	VoidedAt    *time.Time `json:"voided_at,omitempty"`
	VoidReason  string     `json:"void_reason,omitempty"`
	Items       []itemDTO  `json:"items"`
	Shares      []shareDTO `json:"shares"`
}

func toSettlementDTO(stl *settlement.Settlement) settlementDTO {
	dto := settlementDTO{
		ID:          stl.ID,
		PropertyID:  stl.PropertyID,
		Title:       stl.Title,
		PeriodStart: stl.PeriodStart.Format(dateLayout),
		PeriodEnd:   stl.PeriodEnd.Format(dateLayout),
		Approach:    string(stl.Approach),
		Status:      string(stl.Status),
		TotalAmount: stl.TotalAmount.StringFixed(2),
		Currency:    stl.Currency,
		VoidReason:  stl.VoidReason,
		Items:       make([]itemDTO, 0, len(stl.Items)),
		Shares:      make([]shareDTO, 0, len(stl.Shares)),
	}
	if !stl.FinalizedAt.IsZero() {
		t := stl.FinalizedAt
		dto.FinalizedAt = &t
	}
	if !stl.VoidedAt.IsZero() {
		t := stl.VoidedAt
		dto.VoidedAt = &t
	}
	for _, item := range stl.Items {
		d := itemDTO{
			ID:             item.ID,
			Kind:           string(item.Kind),
			MeterID:        item.MeterID,
			FixedUtilityID: item.FixedUtilityID,
			Name:           item.Name,
			TotalCost:      item.TotalCost.StringFixed(2),
		}
		if item.Kind == settlement.ItemKindMeter {
			d.Unit = item.Unit
			d.Consumption = item.Consumption.StringFixed(2)
			d.Rate = item.Rate.StringFixed(4)
		}
		dto.Items = append(dto.Items, d)
	}
	for _, share := range stl.Shares {
		d := shareDTO{
			ID:          share.ID,
			TenantID:    share.TenantID,
			ActiveDays:  share.ActiveDays,
			ShareRatio:  share.ShareRatio.StringFixed(4),
			FinalAmount: share.FinalAmount.StringFixed(2),
		}
		if stl.Approach == settlement.ApproachAdvancePayment {
			d.AdvancesPaid = share.AdvancesPaid.StringFixed(2)
			d.BalanceDue = share.BalanceDue.StringFixed(2)
		}
		dto.Shares = append(dto.Shares, d)
	}
	return dto
}
