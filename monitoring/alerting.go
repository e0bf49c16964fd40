// Package monitoring provides alerting capabilities for the blog generation backend
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertType represents the type of alert
type AlertType string

const (
	AlertTypeJobFailureRate AlertType = "job_failure_rate"
	AlertTypeQueueSaturated AlertType = "queue_saturated"
	AlertTypeTextGeneration AlertType = "text_generation_errors"
	AlertTypeSearchFailure  AlertType = "search_failure"
	AlertTypeArchiveFailure AlertType = "archive_failure"
)

// Rule names bound by the application at startup.
const (
	RuleJobFailureRate = "High Job Failure Rate"
	RuleQueueSaturated = "Job Queue Saturated"
	RuleTextGeneration = "Text Generation Errors"
	RuleSearchFailure  = "Search Stage Failures"
	RuleArchiveFailure = "Archive Write Failures"
)

// Alert represents an alert
type Alert struct {
	ID          string                 `json:"id"`
	Type        AlertType              `json:"type"`
	Severity    AlertSeverity          `json:"severity"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Timestamp   time.Time              `json:"timestamp"`
	Labels      map[string]string      `json:"labels"`
	Annotations map[string]interface{} `json:"annotations"`
	Resolved    bool                   `json:"resolved"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
}

// AlertRule defines a rule for generating alerts
type AlertRule struct {
	Name        string
	Type        AlertType
	Severity    AlertSeverity
	Condition   func() bool
	Title       string
	Description string
	Labels      map[string]string
	Enabled     bool
	Interval    time.Duration
}

// Notifier interface for sending alert notifications
type Notifier interface {
	Send(alert *Alert) error
	Name() string
}

// LogNotifier sends alerts to the log
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string {
	return "log"
}

func (n *LogNotifier) Send(alert *Alert) error {
	level := logrus.InfoLevel
	switch alert.Severity {
	case SeverityHigh:
		level = logrus.WarnLevel
	case SeverityCritical:
		level = logrus.ErrorLevel
	}

	n.logger.WithFields(logrus.Fields{
		"alert_id":    alert.ID,
		"alert_type":  alert.Type,
		"severity":    alert.Severity,
		"labels":      alert.Labels,
		"annotations": alert.Annotations,
	}).Log(level, fmt.Sprintf("ALERT: %s - %s", alert.Title, alert.Description))

	return nil
}

// AlertManager manages alerts and notifications
type AlertManager struct {
	alerts        map[string]*Alert
	mutex         sync.RWMutex
	logger        *logrus.Logger
	rules         []AlertRule
	lastEvaluated map[string]time.Time
	notifiers     []Notifier
	ctx           context.Context
	cancel        context.CancelFunc
	now           func() time.Time
}

// NewAlertManager creates an alert manager and starts its evaluation loop
func NewAlertManager(logger *logrus.Logger) *AlertManager {
	am := newAlertManager(logger)
	go am.evaluateRules()
	return am
}

func newAlertManager(logger *logrus.Logger) *AlertManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &AlertManager{
		alerts:        make(map[string]*Alert),
		logger:        logger,
		rules:         getDefaultAlertRules(),
		lastEvaluated: make(map[string]time.Time),
		notifiers:     []Notifier{NewLogNotifier(logger)},
		ctx:           ctx,
		cancel:        cancel,
		now:           time.Now,
	}
}

// getDefaultAlertRules returns the default rules. Conditions stay false
// until the application binds them with UpdateRuleCondition.
func getDefaultAlertRules() []AlertRule {
	labels := map[string]string{"service": "blog-generator-backend"}
	return []AlertRule{
		{
			Name:        RuleJobFailureRate,
			Type:        AlertTypeJobFailureRate,
			Severity:    SeverityHigh,
			Condition:   func() bool { return false },
			Title:       "High blog job failure rate detected",
			Description: "The share of failed blog generation jobs has exceeded its threshold",
			Labels:      labels,
			Enabled:     true,
			Interval:    5 * time.Minute,
		},
		{
			Name:        RuleQueueSaturated,
			Type:        AlertTypeQueueSaturated,
			Severity:    SeverityMedium,
			Condition:   func() bool { return false },
			Title:       "Job queue is near capacity",
			Description: "New blog generation requests may be rejected",
			Labels:      labels,
			Enabled:     true,
			Interval:    2 * time.Minute,
		},
		{
			Name:        RuleTextGeneration,
			Type:        AlertTypeTextGeneration,
			Severity:    SeverityHigh,
			Condition:   func() bool { return false },
			Title:       "Text generation service failures detected",
			Description: "Summaries or articles could not be generated",
			Labels:      labels,
			Enabled:     true,
			Interval:    3 * time.Minute,
		},
		{
			Name:        RuleSearchFailure,
			Type:        AlertTypeSearchFailure,
			Severity:    SeverityHigh,
			Condition:   func() bool { return false },
			Title:       "Search stage is failing",
			Description: "The browser could not load or read search results",
			Labels:      labels,
			Enabled:     true,
			Interval:    5 * time.Minute,
		},
		{
			Name:        RuleArchiveFailure,
			Type:        AlertTypeArchiveFailure,
			Severity:    SeverityLow,
			Condition:   func() bool { return false },
			Title:       "Article archive writes are failing",
			Description: "Articles are saved locally but not archived",
			Labels:      labels,
			Enabled:     true,
			Interval:    10 * time.Minute,
		},
	}
}

// evaluateRules runs the alert evaluation loop
func (am *AlertManager) evaluateRules() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-am.ctx.Done():
			return
		case <-ticker.C:
			am.EvaluateAll()
		}
	}
}

// EvaluateAll evaluates every enabled rule whose interval has elapsed.
// Firing rules raise an alert; rules that stopped firing resolve theirs.
func (am *AlertManager) EvaluateAll() {
	now := am.now()

	am.mutex.Lock()
	var due []AlertRule
	for _, rule := range am.rules {
		if !rule.Enabled {
			continue
		}
		if last, ok := am.lastEvaluated[rule.Name]; ok && now.Sub(last) < rule.Interval {
			continue
		}
		am.lastEvaluated[rule.Name] = now
		due = append(due, rule)
	}
	am.mutex.Unlock()

	for _, rule := range due {
		if rule.Condition() {
			am.triggerAlert(rule)
		} else {
			am.resolveType(rule.Type)
		}
	}
}

// triggerAlert creates and sends an alert unless one of the same type is active
func (am *AlertManager) triggerAlert(rule AlertRule) {
	alert := &Alert{
		ID:          fmt.Sprintf("%s-%d", rule.Type, am.now().UnixNano()),
		Type:        rule.Type,
		Severity:    rule.Severity,
		Title:       rule.Title,
		Description: rule.Description,
		Timestamp:   am.now(),
		Labels:      rule.Labels,
		Annotations: make(map[string]interface{}),
	}

	am.mutex.Lock()
	for _, existing := range am.alerts {
		if existing.Type == rule.Type && !existing.Resolved {
			am.mutex.Unlock()
			return
		}
	}
	am.alerts[alert.ID] = alert
	am.mutex.Unlock()

	am.sendNotifications(alert)
}

func (am *AlertManager) sendNotifications(alert *Alert) {
	am.mutex.RLock()
	notifiers := append([]Notifier(nil), am.notifiers...)
	am.mutex.RUnlock()

	for _, notifier := range notifiers {
		if err := notifier.Send(alert); err != nil {
			am.logger.WithError(err).WithField("notifier", notifier.Name()).Error("Failed to send alert notification")
		}
	}
}

func (am *AlertManager) resolveType(alertType AlertType) {
	am.mutex.Lock()
	var ids []string
	for id, alert := range am.alerts {
		if alert.Type == alertType && !alert.Resolved {
			ids = append(ids, id)
		}
	}
	am.mutex.Unlock()

	for _, id := range ids {
		am.ResolveAlert(id)
	}
}

// ResolveAlert resolves an alert
func (am *AlertManager) ResolveAlert(alertID string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	if alert, exists := am.alerts[alertID]; exists && !alert.Resolved {
		now := am.now()
		alert.Resolved = true
		alert.ResolvedAt = &now

		am.logger.WithFields(logrus.Fields{
			"alert_id": alertID,
			"type":     alert.Type,
		}).Info("Alert resolved")
	}
}

// GetActiveAlerts returns all active (unresolved) alerts
func (am *AlertManager) GetActiveAlerts() []*Alert {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	var activeAlerts []*Alert
	for _, alert := range am.alerts {
		if !alert.Resolved {
			activeAlerts = append(activeAlerts, alert)
		}
	}
	return activeAlerts
}

// AddNotifier adds a new notifier
func (am *AlertManager) AddNotifier(notifier Notifier) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.notifiers = append(am.notifiers, notifier)
}

// UpdateRuleCondition binds the condition function for a named rule
func (am *AlertManager) UpdateRuleCondition(ruleName string, condition func() bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	for i, rule := range am.rules {
		if rule.Name == ruleName {
			am.rules[i].Condition = condition
			break
		}
	}
}

// Stop stops the alert manager
func (am *AlertManager) Stop() {
	am.cancel()
}
