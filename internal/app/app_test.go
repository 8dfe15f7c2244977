package app

import (
	"reflect"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/metrics"
)

func TestSplitBrokers(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"k1:9092", []string{"k1:9092"}},
		{"k1:9092,k2:9092", []string{"k1:9092", "k2:9092"}},
		{" k1:9092 , k2:9092 ,", []string{"k1:9092", "k2:9092"}},
	}

	for _, tc := range cases {
		got := splitBrokers(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitBrokers(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestBuildPipeline_CoversAllCategories(t *testing.T) {
	cfg := DefaultConfig()
	logger := log.WithField("test", "build-pipeline")

	pipe, err := buildPipeline(cfg, logger, metrics.NewPipelineMetrics())
	if err != nil {
		t.Fatalf("buildPipeline failed: %v", err)
	}
	if pipe == nil {
		t.Fatal("expected non-nil pipeline")
	}

	categories := pipe.Registry().Categories()
	want := []domain.Category{
		domain.CategoryCorporate,
		domain.CategoryDigital,
		domain.CategoryPhysical,
		domain.CategoryPreorder,
		domain.CategorySubscription,
	}
	if len(categories) != len(want) {
		t.Fatalf("expected %d categories, got %d: %v", len(want), len(categories), categories)
	}
	for i, c := range want {
		if categories[i] != c {
			t.Errorf("category[%d] = %s, want %s", i, categories[i], c)
		}
	}
}
