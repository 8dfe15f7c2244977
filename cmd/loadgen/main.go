package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ofs/internal/storage/postgres"
)

const (
	defaultAmount = int64(1000)
	defaultQty    = int32(1)

	outcomeOK    = "OK"
	outcomeError = "ERROR"
)

type loadCategory string

const (
	categoryMixed loadCategory = "mixed"
)

type config struct {
	brokers       []string
	topic         string
	dsn           string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	category      loadCategory
	duplicateRate int
	currency      string
	amountMinor   int64
	customerTag   string
	outputPath    string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type stepReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Outcomes  map[string]int64 `json:"outcomes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	SuccessScenarios  int64                 `json:"success_scenarios"`
	FailedScenarios   int64                 `json:"failed_scenarios"`
	ErrorRate         float64               `json:"error_rate"`
	EPS               float64               `json:"events_per_second"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Steps             map[string]stepReport `json:"steps"`
}

type stepStats struct {
	calls     int64
	success   int64
	failed    int64
	outcomes  map[string]int64
	latencies []float64
}

type collector struct {
	mu    sync.Mutex
	steps map[string]*stepStats
}

func newCollector() *collector {
	return &collector{
		steps: make(map[string]*stepStats),
	}
}

func (c *collector) record(step string, latency time.Duration, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.steps[step]
	if !ok {
		stats = &stepStats{
			outcomes: make(map[string]int64),
		}
		c.steps[step] = stats
	}

	stats.calls++
	if outcome == outcomeOK {
		stats.success++
	} else {
		stats.failed++
	}
	stats.outcomes[outcome]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(name string) (stepReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.steps[name]
	if !ok {
		return stepReport{}, false
	}

	outcomesCopy := make(map[string]int64, len(stats.outcomes))
	for outcome, count := range stats.outcomes {
		outcomesCopy[outcome] = count
	}

	return stepReport{
		Calls:     stats.calls,
		Success:   stats.success,
		Failed:    stats.failed,
		ErrorRate: ratio(stats.failed, stats.calls),
		Outcomes:  outcomesCopy,
		LatencyMs: buildLatencySummary(stats.latencies),
	}, true
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Steps:           make(map[string]stepReport, len(c.steps)),
	}

	scenarioStats := c.steps["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.EPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.steps {
		outcomesCopy := make(map[string]int64, len(stats.outcomes))
		for outcome, count := range stats.outcomes {
			outcomesCopy[outcome] = count
		}
		result.Steps[name] = stepReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Outcomes:  outcomesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var brokersRaw string
	var categoryValue string
	var durationValue string

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: OFS_KAFKA_BROKERS)")
	flag.StringVar(&cfg.topic, "topic", kafka.TopicOrderCreated, "target topic for order.created events")
	flag.StringVar(&cfg.dsn, "dsn", "", "optional Postgres DSN for seeding pending orders (fallback: OFS_POSTGRES_DSN)")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 16, "number of concurrent workers")
	flag.StringVar(&categoryValue, "category", string(categoryMixed), "item category: physical | digital | subscription | preorder | corporate | mixed")
	flag.IntVar(&cfg.duplicateRate, "duplicate-rate", 0, "probability in percent of re-publishing the same event id (0..100)")
	flag.StringVar(&cfg.currency, "currency", "BRL", "order currency")
	flag.Int64Var(&cfg.amountMinor, "amount-minor", defaultAmount, "order item price in minor units")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("OFS_KAFKA_BROKERS")
	}
	for _, broker := range strings.Split(brokersRaw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}
	if len(cfg.brokers) == 0 {
		return cfg, errors.New("kafka brokers are required (-brokers or OFS_KAFKA_BROKERS)")
	}

	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = os.Getenv("OFS_POSTGRES_DSN")
	}
	cfg.dsn = strings.TrimSpace(cfg.dsn)

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	category, err := parseCategory(categoryValue)
	if err != nil {
		return cfg, err
	}
	cfg.category = category

	if strings.TrimSpace(cfg.topic) == "" {
		return cfg, errors.New("topic is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.amountMinor <= 0 {
		return cfg, errors.New("amount-minor must be > 0")
	}
	if cfg.duplicateRate < 0 || cfg.duplicateRate > 100 {
		return cfg, errors.New("duplicate-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.currency) == "" {
		return cfg, errors.New("currency is required")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseCategory(value string) (loadCategory, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == string(categoryMixed) {
		return categoryMixed, nil
	}
	if domain.Category(trimmed).Valid() {
		return loadCategory(trimmed), nil
	}
	return "", fmt.Errorf("unsupported category: %s", value)
}

// eventPublisher — минимальный интерфейс для публикации событий,
// чтобы сценарий можно было тестировать без брокера.
type eventPublisher interface {
	PublishEvent(topic string, key string, event interface{}) error
}

// seedStore — подмножество storage backend, нужное генератору для
// посева товаров и pending-заказов.
type seedStore interface {
	Orders() domain.OrderRepository
	Products() domain.ProductRepository
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to create kafka producer: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = producer.Close() }()

	var seeder seedStore
	if cfg.dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, openErr := postgres.Open(ctx, cfg.dsn)
		cancel()
		if openErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open postgres store: %v\n", openErr)
			os.Exit(1)
		}
		defer func() { _ = store.Close() }()
		seeder = store
	} else {
		fmt.Println("no dsn configured: publishing events without seeding, consumer records them as skipped")
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	products, err := seedProducts(seeder, cfg, runID)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to seed products: %v\n", err)
		os.Exit(1)
	}

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(producer, seeder, products, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// scenarioCategories задает ротацию категорий в режиме mixed.
var scenarioCategories = []domain.Category{
	domain.CategoryPhysical,
	domain.CategoryDigital,
	domain.CategorySubscription,
	domain.CategoryPreorder,
	domain.CategoryCorporate,
}

func pickCategory(cfg config, index int) domain.Category {
	if cfg.category != categoryMixed {
		return domain.Category(cfg.category)
	}
	return scenarioCategories[index%len(scenarioCategories)]
}

// seedProducts создает по одному активному товару на категорию. Метаданные
// подбираются так, чтобы валидация хендлеров проходила: group_id для
// подписок, будущая дата релиза для предзаказов. Остаток не отслеживается,
// чтобы длинный прогон не упирался в out-of-stock.
func seedProducts(seeder seedStore, cfg config, runID string) (map[domain.Category]string, error) {
	products := make(map[domain.Category]string, len(scenarioCategories))
	for _, category := range scenarioCategories {
		products[category] = fmt.Sprintf("prod-%s-%s", category, runID)
	}
	if seeder == nil {
		return products, nil
	}

	releaseDate := time.Now().UTC().AddDate(0, 1, 0).Format("2006-01-02")
	for _, category := range scenarioCategories {
		product := domain.Product{
			ID:         products[category],
			Category:   category,
			PriceMinor: cfg.amountMinor,
			Active:     true,
		}
		switch category {
		case domain.CategorySubscription:
			product.Metadata = map[string]any{domain.MetaGroupID: "load-" + runID}
		case domain.CategoryPreorder:
			product.Metadata = map[string]any{domain.MetaReleaseDate: releaseDate}
		}
		if err := seeder.Products().Create(product); err != nil {
			return nil, fmt.Errorf("create product %s: %w", product.ID, err)
		}
	}
	return products, nil
}

// itemMetadata возвращает метаданные позиции, проходящие валидацию
// хендлера соответствующей категории.
func itemMetadata(category domain.Category, customerID string) map[string]any {
	switch category {
	case domain.CategoryPhysical:
		return map[string]any{domain.MetaWarehouse: "SP"}
	case domain.CategoryDigital:
		return map[string]any{domain.MetaDeliveryEmail: customerID + "@load.test"}
	case domain.CategoryPreorder:
		return map[string]any{domain.MetaWarehouse: "RJ"}
	case domain.CategoryCorporate:
		return map[string]any{
			domain.MetaTaxID:        "12.345.678/0001-95",
			domain.MetaPaymentTerms: "NET_30",
		}
	default:
		return nil
	}
}

func buildScenarioOrder(cfg config, category domain.Category, productID string, index int, runID string) domain.Order {
	customerID := fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index)
	now := time.Now().UTC()
	return domain.Order{
		ID:          fmt.Sprintf("order-%s-%d", runID, index),
		CustomerID:  customerID,
		Status:      domain.OrderStatusPending,
		Currency:    cfg.currency,
		AmountMinor: cfg.amountMinor * int64(defaultQty),
		Items: []domain.OrderItem{
			{
				ID:         uuid.NewString(),
				ProductID:  productID,
				Qty:        defaultQty,
				PriceMinor: cfg.amountMinor,
				Metadata:   itemMetadata(category, customerID),
			},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func runScenario(
	publisher eventPublisher,
	seeder seedStore,
	products map[domain.Category]string,
	cfg config,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioOutcome := outcomeOK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioOutcome)
	}()

	category := pickCategory(cfg, index)
	order := buildScenarioOrder(cfg, category, products[category], index, runID)

	if seeder != nil {
		seedStart := time.Now()
		err := seeder.Orders().Create(order)
		col.record("seed", time.Since(seedStart), outcomeOf(err))
		if err != nil {
			scenarioOutcome = outcomeError
			return fmt.Errorf("seed order %s: %w", order.ID, err)
		}
	}

	event := kafka.NewOrderCreatedEvent(&order, fmt.Sprintf("loadgen-%s", runID))

	publishStart := time.Now()
	err := publisher.PublishEvent(cfg.topic, order.ID, event)
	col.record("publish", time.Since(publishStart), outcomeOf(err))
	if err != nil {
		scenarioOutcome = outcomeError
		return fmt.Errorf("publish event %s: %w", event.EventID, err)
	}

	// Повторная публикация того же event_id нагружает dedup ledger:
	// consumer обязан отбросить дубликат без повторных эффектов.
	if shouldDuplicate(index, cfg.duplicateRate) {
		duplicateStart := time.Now()
		err = publisher.PublishEvent(cfg.topic, order.ID, event)
		col.record("publish-duplicate", time.Since(duplicateStart), outcomeOf(err))
		if err != nil {
			scenarioOutcome = outcomeError
			return fmt.Errorf("publish duplicate %s: %w", event.EventID, err)
		}
	}

	return nil
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeOK
	}
	return outcomeError
}

func shouldDuplicate(index, duplicateRate int) bool {
	if duplicateRate <= 0 {
		return false
	}
	if duplicateRate >= 100 {
		return true
	}
	return index%100 < duplicateRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load generation summary")
	fmt.Printf("category=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.category,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs eps=%.2f\n", result.DurationSeconds, result.EPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	stepNames := make([]string, 0, len(result.Steps))
	for name := range result.Steps {
		if name == "scenario" {
			continue
		}
		stepNames = append(stepNames, name)
	}
	sort.Strings(stepNames)
	for _, name := range stepNames {
		stats := result.Steps[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
