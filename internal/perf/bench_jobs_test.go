package perf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type failingReconciler struct{}

func (failingReconciler) ReconcileAll(context.Context) ([]inventory.Reconciliation, error) {
	return nil, errors.New("connection reset")
}

func TestReconcileJobThroughputAndReliability(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := inventory.NewService(store.Inventory(), store, store, inventory.ServiceConfig{})
	for i := 0; i < 200; i++ {
		_, err := ledger.RegisterProduct(ctx, inventory.ProductInput{
			SKU:          "SKU-" + decimal.NewFromInt(int64(i)).String(),
			Name:         "product",
			Category:     inventory.CategoryRawMaterial,
			OpeningStock: decimal.NewFromInt(int64(i%17 + 1)),
		})
		require.NoError(t, err)
	}

	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := &jobs.InventoryReconcileJob{Ledger: ledger, Logger: logger, Metrics: metrics}
	task, err := jobs.NewInventoryReconcileTask(time.Now())
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		require.NoError(t, job.Handle(ctx, task))
	}
	broken := &jobs.InventoryReconcileJob{Ledger: failingReconciler{}, Logger: logger, Metrics: metrics}
	for i := 0; i < 2; i++ {
		require.Error(t, broken.Handle(ctx, task))
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	labels := map[string]string{"job": jobs.TaskInventoryReconcile}
	success := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskInventoryReconcile, "status": "success"})
	failure := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskInventoryReconcile, "status": "failure"})
	require.Equal(t, float64(30), success)
	require.Equal(t, float64(2), failure)

	mean := histogramMean(t, families, "odyssey_job_duration_seconds", labels)
	if mean > 0.5 {
		t.Fatalf("reconcile duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
