package metrics

import (
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats/view"
)

var log = logging.Logger("metrics")

// LogExporter writes every reported view row through the logger.
type LogExporter struct{}

func (LogExporter) ExportView(vd *view.Data) {
	for _, row := range vd.Rows {
		tags := make([]string, 0, len(row.Tags))
		for _, t := range row.Tags {
			tags = append(tags, t.Key.Name()+"="+t.Value)
		}

		var value interface{}
		switch d := row.Data.(type) {
		case *view.CountData:
			value = d.Value
		case *view.DistributionData:
			value = d.Mean
		case *view.SumData:
			value = d.Value
		case *view.LastValueData:
			value = d.Value
		}
		log.Infow("metric", "view", vd.View.Name, "tags", strings.Join(tags, ","), "value", value)
	}
}

func StartLogExporter(interval time.Duration) func() {
	e := LogExporter{}
	view.RegisterExporter(e)
	view.SetReportingPeriod(interval)
	return func() {
		view.UnregisterExporter(e)
	}
}
