package pipeline

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

const (
	// corporateTaxIDDigits — длина нормализованного налогового идентификатора (CNPJ).
	corporateTaxIDDigits = 14
	// corporateDiscountBlock — размер блока, на который даётся оптовая скидка.
	corporateDiscountBlock = 100
	// corporateDiscountPercent — размер оптовой скидки на полный блок.
	corporateDiscountPercent = 15
)

// CorporateConfig задаёт денежные пороги корпоративных закупок в минимальных единицах.
type CorporateConfig struct {
	// CreditLimitMinor — жёсткий потолок суммы заказа.
	CreditLimitMinor int64
	// ReviewThresholdMinor — сумма, выше которой заказ уходит на ручную проверку.
	ReviewThresholdMinor int64
}

// CorporateHandler обрабатывает корпоративные оптовые закупки.
type CorporateHandler struct {
	cfg    CorporateConfig
	logger *log.Entry
}

// NewCorporateHandler создаёт хендлер корпоративных закупок.
func NewCorporateHandler(cfg CorporateConfig, logger *log.Entry) *CorporateHandler {
	if logger == nil {
		logger = log.WithField("component", "corporate-handler")
	}
	return &CorporateHandler{cfg: cfg, logger: logger}
}

// Category возвращает категорию corporate.
func (h *CorporateHandler) Category() domain.Category {
	return domain.CategoryCorporate
}

// Validate проверяет налоговый идентификатор, условия оплаты и кредитный лимит.
func (h *CorporateHandler) Validate(_ context.Context, _ domain.UnitOfWork, item *domain.OrderItem, _ *domain.Product, order *domain.Order) (domain.Result, error) {
	if normalizeTaxID(domain.MetaString(item.Metadata, domain.MetaTaxID)) == "" {
		return domain.Fail(domain.CodeInvalidCorporateData), nil
	}
	if normalizePaymentTerms(domain.MetaString(item.Metadata, domain.MetaPaymentTerms)) == "" {
		return domain.Fail(domain.CodeInvalidCorporateData), nil
	}

	if h.cfg.CreditLimitMinor > 0 && order.AmountMinor > h.cfg.CreditLimitMinor {
		return domain.Fail(domain.CodeCreditLimitExceeded), nil
	}
	if h.cfg.ReviewThresholdMinor > 0 && order.AmountMinor > h.cfg.ReviewThresholdMinor {
		return domain.ReviewRequired(), nil
	}

	return domain.OK(), nil
}

// Process применяет оптовую скидку за полные блоки по 100 единиц и
// сохраняет нормализованные условия оплаты в metadata позиции.
func (h *CorporateHandler) Process(_ context.Context, _ domain.UnitOfWork, item *domain.OrderItem, _ *domain.Product, order *domain.Order) (domain.Result, error) {
	if item.Metadata == nil {
		item.Metadata = make(map[string]any)
	}

	blocks := int64(item.Qty) / corporateDiscountBlock
	if blocks > 0 {
		discounted := blocks * corporateDiscountBlock
		discount := discounted * item.PriceMinor * corporateDiscountPercent / 100
		item.Metadata[domain.MetaVolumeDiscountMinor] = discount

		h.logger.WithFields(log.Fields{
			"order_id":       order.ID,
			"item_id":        item.ID,
			"qty":            item.Qty,
			"discount_minor": discount,
		}).Debug("corporate volume discount applied")
	}

	item.Metadata[domain.MetaTaxID] = normalizeTaxID(domain.MetaString(item.Metadata, domain.MetaTaxID))
	item.Metadata[domain.MetaPaymentTerms] = normalizePaymentTerms(domain.MetaString(item.Metadata, domain.MetaPaymentTerms))

	return domain.OK(), nil
}

// normalizeTaxID оставляет только цифры; пустая строка — идентификатор невалиден.
func normalizeTaxID(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() != corporateTaxIDDigits {
		return ""
	}
	return digits.String()
}

// normalizePaymentTerms приводит условия оплаты к форме NET_30/NET_60/NET_90;
// пустая строка — условие не распознано.
func normalizePaymentTerms(raw string) string {
	term := strings.ToUpper(strings.TrimSpace(raw))
	term = strings.NewReplacer(" ", "_", "-", "_").Replace(term)
	switch term {
	case "NET_30", "NET_60", "NET_90":
		return term
	default:
		return ""
	}
}

var _ ItemHandler = (*CorporateHandler)(nil)
