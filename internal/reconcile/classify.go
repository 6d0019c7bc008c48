package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/agrovale/paysync-worker/internal/models"
)

// ItemCategory is the classification of a bank individual-status string.
type ItemCategory string

const (
	CategoryPending   ItemCategory = "pending"
	CategorySuccess   ItemCategory = "success"
	CategoryCancelled ItemCategory = "cancelled"
	CategoryRejected  ItemCategory = "rejected"
	CategoryBlocked   ItemCategory = "blocked"
	CategoryUnknown   ItemCategory = "unknown"
)

var itemStateCategories = map[string]ItemCategory{
	"PENDENTE":          CategoryPending,
	"CONSISTENTE":       CategoryPending,
	"AGENDADO":          CategoryPending,
	"AGUARDANDO DEBITO": CategoryPending,
	"DEBITADO":          CategoryPending,
	"PAGO":              CategorySuccess,
	"CANCELADO":         CategoryCancelled,
	"DEVOLVIDO":         CategoryCancelled,
	"REJEITADO":         CategoryRejected,
	"INCONSISTENTE":     CategoryRejected,
	"VENCIDO":           CategoryRejected,
	"BLOQUEADO":         CategoryBlocked,
}

var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeExternalState folds a bank status string to the canonical form
// used by the classification table: upper-cased, accents stripped,
// whitespace collapsed.
func NormalizeExternalState(raw string) string {
	folded, _, err := transform.String(stripDiacritics, raw)
	if err != nil {
		folded = raw
	}
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}

// ClassifyItemState maps a raw individual-status string to its category.
// Anything the table does not know is unknown, which behaves like "still
// pending" and keeps the item polled instead of failing the job.
func ClassifyItemState(raw string) ItemCategory {
	if category, ok := itemStateCategories[NormalizeExternalState(raw)]; ok {
		return category
	}
	return CategoryUnknown
}

// ClassifyBatchState maps a bank requisition state code to the internal
// batch status. Unmapped codes classify as sent: the batch reached the bank
// but the code carries no verdict.
func ClassifyBatchState(code int) models.BatchStatus {
	switch code {
	case models.BankBatchStateConsistent, models.BankBatchStatePendingAction:
		return models.BatchStatusPending
	case models.BankBatchStateSomeInconsistent, models.BankBatchStateInProcess,
		models.BankBatchStatePreparingRemittance, models.BankBatchStateReleased,
		models.BankBatchStatePreparingReleased:
		return models.BatchStatusProcessing
	case models.BankBatchStateAllInconsistent, models.BankBatchStateRejected:
		return models.BatchStatusRejected
	case models.BankBatchStateProcessed:
		return models.BatchStatusCompleted
	default:
		return models.BatchStatusSent
	}
}

// ResolveAuthoritativeState merges the locally stored external state with a
// fresh external read. Local wins once a terminal rejection has been locally
// recorded; the bank can still report a live state for a batch that item
// level blocks have already condemned.
func ResolveAuthoritativeState(local *int, external *int) *int {
	if local != nil && *local == models.BankBatchStateRejected {
		return local
	}
	if external != nil {
		return external
	}
	return local
}

// IsItemDefinitive reports whether the item's fate is settled, either by a
// terminal internal status or by a classified external state.
func IsItemDefinitive(item models.PaymentItem) bool {
	if item.InternalStatus == models.ItemStatusProcessed || item.InternalStatus == models.ItemStatusRejected {
		return true
	}
	category := classifyStoredState(item)
	return category != CategoryPending && category != CategoryUnknown
}

// CanMarkBatchRejected is the rejection gate: every item must be definitive
// and at least one must be rejected or blocked. A fast-failing item cannot
// condemn a batch whose siblings are still settling.
func CanMarkBatchRejected(items []models.PaymentItem) bool {
	if len(items) == 0 {
		return false
	}
	anyRejected := false
	for _, item := range items {
		if !IsItemDefinitive(item) {
			return false
		}
		if itemRejectedOrBlocked(item) {
			anyRejected = true
		}
	}
	return anyRejected
}

func itemRejectedOrBlocked(item models.PaymentItem) bool {
	if item.InternalStatus == models.ItemStatusRejected || item.InternalStatus == models.ItemStatusBlocked {
		return true
	}
	category := classifyStoredState(item)
	return category == CategoryRejected || category == CategoryBlocked
}

func classifyStoredState(item models.PaymentItem) ItemCategory {
	if item.ExternalIndividualState == nil {
		return CategoryUnknown
	}
	return ClassifyItemState(*item.ExternalIndividualState)
}
