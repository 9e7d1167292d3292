package adminapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/montanaflynn/stats"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/metrics"
)

func registerDashboardRoutes() {
	webserver.ApiGET("/dashboard/metrics", dashboardMetrics)
	webserver.ApiGET("/dashboard/system", dashboardSystem)
}

type revenuePoint struct {
	Day     string `json:"day"`
	Revenue int64  `json:"revenue_cents"`
	Orders  int64  `json:"orders"`
}

func dashboardMetrics(c echo.Context) error {
	db := GetDB(c)

	var userTotal, productTotal, orderTotal, openTickets, pendingIntents int64
	db.Model(&domain.User{}).Count(&userTotal)
	db.Model(&domain.Product{}).Count(&productTotal)
	db.Model(&domain.Order{}).Count(&orderTotal)
	db.Model(&domain.Ticket{}).Where("status = ?", domain.TicketOpen).Count(&openTickets)
	db.Model(&domain.PaymentIntent{}).Where("status = ?", domain.IntentPending).Count(&pendingIntents)

	since := time.Now().AddDate(0, 0, -30)

	// daily revenue from debit payments, wallet top-ups excluded
	var dailyOrders []domain.Order
	db.Where("created_at >= ? AND status IN ?", since,
		[]string{domain.OrderPaid, domain.OrderDelivered}).
		Order("created_at ASC").Find(&dailyOrders)

	byDay := map[string]*revenuePoint{}
	amounts := make([]float64, 0, len(dailyOrders))
	var revenueTotal int64
	for _, o := range dailyOrders {
		day := o.CreatedAt.Format("2006-01-02")
		p, exists := byDay[day]
		if !exists {
			p = &revenuePoint{Day: day}
			byDay[day] = p
		}
		p.Revenue += o.AmountCents
		p.Orders++
		revenueTotal += o.AmountCents
		amounts = append(amounts, float64(o.AmountCents))
	}

	series := make([]revenuePoint, 0, len(byDay))
	for d := 0; d <= 30; d++ {
		day := since.AddDate(0, 0, d).Format("2006-01-02")
		if p, exists := byDay[day]; exists {
			series = append(series, *p)
		}
	}

	var avgOrder, p95Order float64
	if len(amounts) > 0 {
		avgOrder, _ = stats.Mean(amounts)
		p95Order, _ = stats.Percentile(amounts, 95)
	}

	return ok(c, map[string]interface{}{
		"totals": map[string]interface{}{
			"users":           userTotal,
			"products":        productTotal,
			"orders":          orderTotal,
			"open_tickets":    openTickets,
			"pending_intents": pendingIntents,
			"revenue_cents":   revenueTotal,
		},
		"avg_order_cents": int64(avgOrder),
		"p95_order_cents": int64(p95Order),
		"revenue_series":  series,
	})
}

type gaugeSeries struct {
	Metric string          `json:"metric"`
	Points []gaugeSeriesPt `json:"points"`
}

type gaugeSeriesPt struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

func dashboardSystem(c echo.Context) error {
	end := time.Now().Unix()
	start := end - 3600

	out := make([]gaugeSeries, 0, 4)
	for _, name := range []string{
		"system_cpuuse",
		"system_memuse",
		"accstore_cpuuse",
		"accstore_memuse",
	} {
		points, err := metrics.Select(name, start, end)
		if err != nil {
			continue
		}
		s := gaugeSeries{Metric: name, Points: make([]gaugeSeriesPt, 0, len(points))}
		for _, p := range points {
			s.Points = append(s.Points, gaugeSeriesPt{Timestamp: p.Timestamp, Value: p.Value})
		}
		out = append(out, s)
	}

	if len(out) == 0 {
		return fail(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "Metrics storage not ready", nil)
	}
	return ok(c, out)
}
