package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hopnetwork/reconciler/log"
)

// Alert is a single finding raised by a watcher check.
type Alert struct {
	Check     string    `json:"check"`
	Severity  string    `json:"severity"`
	ChainID   uint64    `json:"chainId,omitempty"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notifier delivers alerts. Delivery is best effort, a failed notification
// never fails the check that raised it.
type Notifier interface {
	Notify(ctx context.Context, alert Alert)
}

// Webhook POSTs alerts as JSON to a configured endpoint.
type Webhook struct {
	url    string
	client *http.Client
	logger *log.Logger
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: log.WithFields("module", "notifier"),
	}
}

func (w *Webhook) Notify(ctx context.Context, alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(alert)
	if err != nil {
		w.logger.Errorf("error marshalling alert: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Errorf("error building webhook request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warnf("webhook delivery failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		w.logger.Warnf("webhook returned %s for alert %s/%s", resp.Status, alert.Check, alert.Subject)
	}
}

// LogNotifier writes alerts to the log. Used when no webhook is configured.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.WithFields("module", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, alert Alert) {
	msg := fmt.Sprintf("[%s] %s: %s", alert.Check, alert.Subject, alert.Message)
	if alert.Severity == SeverityCritical {
		n.logger.Error(msg)
	} else {
		n.logger.Warn(msg)
	}
}
