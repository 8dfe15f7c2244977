package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Ключи metadata позиций и товаров. Полуструктурированные значения хранятся
// в JSONB, поэтому числа после round-trip могут приходить как float64 —
// читать их нужно через аксессоры ниже.
const (
	MetaWarehouse               = "warehouse_location"
	MetaDeliveryDays            = "delivery_days"
	MetaDeliveryEmail           = "delivery_email"
	MetaActivationKey           = "activation_key"
	MetaReleaseDate             = "release_date"
	MetaMaxCancellationDate     = "max_cancellation_date"
	MetaTaxID                   = "tax_id"
	MetaPaymentTerms            = "payment_terms"
	MetaGroupID                 = "group_id"
	MetaPreorderDiscountMinor   = "preorder_discount_minor"
	MetaVolumeDiscountMinor     = "volume_discount_minor"
	MetaDistributionRightsUntil = "distribution_rights_until"
)

// MetaString читает строковое значение metadata; отсутствие — пустая строка.
func MetaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	v, ok := meta[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// MetaInt64 читает числовое значение metadata независимо от того, каким
// числовым типом оно приехало после сериализации.
func MetaInt64(meta map[string]any, key string) (int64, bool) {
	if meta == nil {
		return 0, false
	}
	switch v := meta[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// CloneMetadata делает неглубокую копию map, чтобы снапшоты заказов
// в хранилищах не делили mutable scratch-структуру с вызывающим кодом.
func CloneMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	dst := make(map[string]any, len(meta))
	for k, v := range meta {
		dst[k] = v
	}
	return dst
}
