package domain

// Outcome определяет исход одной фазы pipeline для позиции или заказа.
type Outcome string

const (
	// OutcomeOK — правило прошло, pipeline продолжает работу.
	OutcomeOK Outcome = "ok"
	// OutcomeFailed — бизнес-правило нарушено, заказ уходит в failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeReviewRequired — заказ требует ручной проверки оператором.
	OutcomeReviewRequired Outcome = "review_required"
)

// ErrorCode — символьный код бизнес-ошибки. Бизнес-нарушения всегда
// возвращаются кодами внутри Result, а не ошибками Go: error зарезервирован
// для инфраструктурных сбоев.
type ErrorCode string

const (
	// Доступность товара.
	CodeOutOfStock                ErrorCode = "OUT_OF_STOCK"
	CodeLicenseUnavailable        ErrorCode = "LICENSE_UNAVAILABLE"
	CodePreorderSoldOut           ErrorCode = "PRE_ORDER_SOLD_OUT"
	CodeDistributionRightsExpired ErrorCode = "DISTRIBUTION_RIGHTS_EXPIRED"
	CodeWarehouseUnavailable      ErrorCode = "WAREHOUSE_UNAVAILABLE"

	// Владение и дубликаты.
	CodeAlreadyOwned                ErrorCode = "ALREADY_OWNED"
	CodeDuplicateActiveSubscription ErrorCode = "DUPLICATE_ACTIVE_SUBSCRIPTION"
	CodeIncompatibleSubscriptions   ErrorCode = "INCOMPATIBLE_SUBSCRIPTIONS"
	CodeSubscriptionLimitExceeded   ErrorCode = "SUBSCRIPTION_LIMIT_EXCEEDED"

	// Качество данных.
	CodeInvalidCorporateData ErrorCode = "INVALID_CORPORATE_DATA"
	CodeInvalidReleaseDate   ErrorCode = "INVALID_RELEASE_DATE"
	CodeReleaseDatePassed    ErrorCode = "RELEASE_DATE_PASSED"

	// Финансы.
	CodeCreditLimitExceeded ErrorCode = "CREDIT_LIMIT_EXCEEDED"
	CodePaymentFailed       ErrorCode = "PAYMENT_FAILED"
	CodeFraudDetected       ErrorCode = "FRAUD_DETECTED"

	// Служебные.
	CodeInvalidOrderState ErrorCode = "INVALID_ORDER_STATE"
	CodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// Result — исход validate/process для одного правила или всего pipeline.
// Три исхода взаимоисключающие и терминальные для вызывающей фазы.
type Result struct {
	Outcome Outcome
	Codes   []ErrorCode
}

// OK возвращает успешный результат.
func OK() Result {
	return Result{Outcome: OutcomeOK}
}

// Fail возвращает результат с нарушенными бизнес-правилами.
func Fail(codes ...ErrorCode) Result {
	return Result{Outcome: OutcomeFailed, Codes: codes}
}

// ReviewRequired возвращает результат "нужна ручная проверка".
func ReviewRequired(codes ...ErrorCode) Result {
	return Result{Outcome: OutcomeReviewRequired, Codes: codes}
}

// IsOK сообщает, что правило прошло без замечаний.
func (r Result) IsOK() bool {
	return r.Outcome == OutcomeOK
}

// IsFailed сообщает, что нарушено бизнес-правило.
func (r Result) IsFailed() bool {
	return r.Outcome == OutcomeFailed
}

// NeedsReview сообщает, что заказ должен уйти на ручную проверку.
func (r Result) NeedsReview() bool {
	return r.Outcome == OutcomeReviewRequired
}

// CodeStrings возвращает коды ошибок строками для логов и событий.
func (r Result) CodeStrings() []string {
	if len(r.Codes) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Codes))
	for _, code := range r.Codes {
		out = append(out, string(code))
	}
	return out
}
